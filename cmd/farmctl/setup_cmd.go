package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"nftfarm/cmd/internal/passphrase"
	"nftfarm/config"
	"nftfarm/crypto"
)

func runInit(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("init", stderr)
	path := fs.String("config", defaultConfig, "Path of the config file to create")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if _, err := os.Stat(*path); err == nil {
		return fail(stderr, fmt.Errorf("config %s already exists", *path))
	}
	cfg, err := config.Load(*path)
	if err != nil {
		return fail(stderr, err)
	}
	fmt.Fprintf(stdout, "Wrote %s (launch %s, deadline %s, release %s)\n",
		*path, cfg.LaunchTime, cfg.FarmDeadline, cfg.ReleaseTime)
	return 0
}

func runKeygen(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("keygen", stderr)
	out := fs.String("out", "", "Output path for the keystore file")
	passEnv := fs.String("pass-env", defaultPassEnv, "Environment variable containing the keystore passphrase")
	force := fs.Bool("force", false, "Overwrite an existing keystore file")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(*out) == "" {
		return fail(stderr, fmt.Errorf("-out is required"))
	}
	if !*force {
		if _, err := os.Stat(*out); err == nil {
			return fail(stderr, fmt.Errorf("keystore file %s already exists (use -force to overwrite)", *out))
		} else if !os.IsNotExist(err) {
			return fail(stderr, err)
		}
	}
	pass, err := passphrase.NewSource(*passEnv).WithConfirm().Get()
	if err != nil {
		return fail(stderr, err)
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return fail(stderr, err)
	}
	if err := crypto.SaveToKeystore(*out, key, pass); err != nil {
		return fail(stderr, fmt.Errorf("failed to write keystore: %w", err))
	}
	fmt.Fprintf(stdout, "Wrote keystore to %s\nAddress: %s\n", *out, key.PubKey().Address())
	return 0
}

// runBootstrap mints items, credits balances, then admits pools and funds
// rewards from a manifest. Each step commits on its own.
func runBootstrap(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("bootstrap", stderr)
	common := bindCommon(fs)
	manifestPath := fs.String("manifest", "", "Path to the YAML manifest")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	manifest, err := config.LoadManifest(*manifestPath)
	if err != nil {
		return fail(stderr, err)
	}
	return withSigner(common, stderr, func(env *farmEnv, signer [20]byte) error {
		return applyManifest(env, signer, manifest, stdout)
	})
}

func applyManifest(env *farmEnv, signer [20]byte, manifest *config.Manifest, stdout io.Writer) error {
	ctx := context.Background()
	for _, entry := range manifest.Items {
		collection, err := crypto.ParseAddress(entry.Collection)
		if err != nil {
			return fmt.Errorf("item collection: %w", err)
		}
		owner, err := crypto.ParseAddress(entry.Owner)
		if err != nil {
			return fmt.Errorf("item owner: %w", err)
		}
		for _, id := range entry.IDs {
			if err := env.node.MintItem(ctx, signer, collection, id, owner); err != nil {
				return fmt.Errorf("mint %s:%d: %w", entry.Collection, id, err)
			}
		}
		fmt.Fprintf(stdout, "Minted %d item(s) of %s to %s\n", len(entry.IDs), entry.Collection, entry.Owner)
	}
	for _, entry := range manifest.Balances {
		token, err := crypto.ParseAddress(entry.Token)
		if err != nil {
			return fmt.Errorf("balance token: %w", err)
		}
		account, err := crypto.ParseAddress(entry.Account)
		if err != nil {
			return fmt.Errorf("balance account: %w", err)
		}
		amount, err := config.ParseAmount(entry.Amount)
		if err != nil {
			return fmt.Errorf("balance amount: %w", err)
		}
		if err := env.node.CreditTokens(ctx, signer, token, account, amount); err != nil {
			return fmt.Errorf("credit %s: %w", entry.Account, err)
		}
		fmt.Fprintf(stdout, "Credited %s of %s to %s\n", amount, entry.Token, entry.Account)
	}
	for _, entry := range manifest.Pools {
		parsed, err := entry.Parse()
		if err != nil {
			return err
		}
		if _, err := env.node.AddPool(ctx, signer, parsed.Collateral, parsed.Rate, parsed.Capacity, parsed.ShareWeight, parsed.ShareWeightBase); err != nil {
			return fmt.Errorf("add pool %s: %w", entry.Collateral, err)
		}
		fmt.Fprintf(stdout, "Admitted pool %s\n", entry.Collateral)
	}
	for _, entry := range manifest.Rewards {
		parsed, err := entry.Parse()
		if err != nil {
			return err
		}
		if _, err := env.node.AddTokenReward(ctx, signer, parsed.Amount, parsed.PriceInPoints, parsed.Token, parsed.Funder); err != nil {
			return fmt.Errorf("add reward %s: %w", entry.Token, err)
		}
		fmt.Fprintf(stdout, "Funded reward %s with %s\n", entry.Token, parsed.Amount)
	}
	return nil
}
