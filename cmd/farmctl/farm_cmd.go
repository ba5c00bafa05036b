package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"nftfarm/config"
	"nftfarm/crypto"
)

func withEnv(flags *commonFlags, stderr io.Writer, fn func(env *farmEnv) error) int {
	env, err := openEnv(flags, stderr)
	if err != nil {
		return fail(stderr, err)
	}
	defer env.Close()
	if err := fn(env); err != nil {
		return fail(stderr, err)
	}
	return 0
}

func withSigner(flags *commonFlags, stderr io.Writer, fn func(env *farmEnv, signer [20]byte) error) int {
	return withEnv(flags, stderr, func(env *farmEnv) error {
		signer, err := env.signer()
		if err != nil {
			return err
		}
		return fn(env, signer)
	})
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func runAddPool(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("add-pool", stderr)
	common := bindCommon(fs)
	var entry config.PoolEntry
	fs.StringVar(&entry.Collateral, "collateral", "", "Collateral collection address")
	fs.StringVar(&entry.Rate, "rate", "", "Points accrued per staked item per second")
	fs.Uint64Var(&entry.Capacity, "capacity", 0, "Maximum number of staked items")
	fs.StringVar(&entry.ShareWeight, "share-weight", "", "Share weight numerator")
	fs.StringVar(&entry.ShareWeightBase, "share-weight-base", "1", "Share weight denominator")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	parsed, err := entry.Parse()
	if err != nil {
		return fail(stderr, err)
	}
	return withSigner(common, stderr, func(env *farmEnv, signer [20]byte) error {
		pool, err := env.node.AddPool(context.Background(), signer, parsed.Collateral, parsed.Rate, parsed.Capacity, parsed.ShareWeight, parsed.ShareWeightBase)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Pool %s admitted: rate %s, capacity %d, share %s\n",
			crypto.FromArray(pool.Collateral), pool.Rate, pool.Capacity, pool.Share().RatString())
		return nil
	})
}

func runAddReward(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("add-reward", stderr)
	common := bindCommon(fs)
	var entry config.RewardEntry
	fs.StringVar(&entry.Token, "token", "", "Reward token address")
	fs.StringVar(&entry.Funder, "funder", "", "Account the tokens are pulled from")
	fs.StringVar(&entry.Amount, "amount", "", "Token amount to deposit")
	fs.StringVar(&entry.PriceInPoints, "price", "", "Points charged per token unit")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	parsed, err := entry.Parse()
	if err != nil {
		return fail(stderr, err)
	}
	return withSigner(common, stderr, func(env *farmEnv, signer [20]byte) error {
		reward, err := env.node.AddTokenReward(context.Background(), signer, parsed.Amount, parsed.PriceInPoints, parsed.Token, parsed.Funder)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Reward %s funded: remaining %s at %s points each\n",
			crypto.FromArray(reward.Token), reward.Remaining, reward.PriceInPoints)
		return nil
	})
}

func itemFlags(name string, stderr io.Writer) (*flag.FlagSet, *commonFlags, *string) {
	fs := newFlagSet(name, stderr)
	common := bindCommon(fs)
	items := fs.String("items", "", "Comma separated <collection>:<id> pairs")
	return fs, common, items
}

func runStake(args []string, stdout, stderr io.Writer) int {
	fs, common, items := itemFlags("stake", stderr)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	pools, ids, err := parseItems(*items)
	if err != nil {
		return fail(stderr, err)
	}
	return withSigner(common, stderr, func(env *farmEnv, signer [20]byte) error {
		if err := env.node.Stake(context.Background(), signer, pools, ids); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Staked %d item(s) for %s\n", len(ids), crypto.FromArray(signer))
		return nil
	})
}

func runUnstake(args []string, stdout, stderr io.Writer) int {
	fs, common, items := itemFlags("unstake", stderr)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	pools, ids, err := parseItems(*items)
	if err != nil {
		return fail(stderr, err)
	}
	return withSigner(common, stderr, func(env *farmEnv, signer [20]byte) error {
		if err := env.node.Unstake(context.Background(), signer, pools, ids); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Unstaked %d item(s) for %s\n", len(ids), crypto.FromArray(signer))
		return nil
	})
}

func runRedeem(args []string, stdout, stderr io.Writer) int {
	fs, common, items := itemFlags("redeem", stderr)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	pools, ids, err := parseItems(*items)
	if err != nil {
		return fail(stderr, err)
	}
	return withSigner(common, stderr, func(env *farmEnv, signer [20]byte) error {
		points, err := env.node.Redeem(context.Background(), signer, pools, ids)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Redeemed %s points\n", points)
		return nil
	})
}

func runClaim(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("claim", stderr)
	common := bindCommon(fs)
	token := fs.String("token", "", "Reward token address")
	amount := fs.String("amount", "", "Token amount to claim")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	tokenAddr, err := crypto.ParseAddress(*token)
	if err != nil {
		return fail(stderr, fmt.Errorf("token: %w", err))
	}
	value, err := config.ParseAmount(*amount)
	if err != nil {
		return fail(stderr, err)
	}
	return withSigner(common, stderr, func(env *farmEnv, signer [20]byte) error {
		if err := env.node.Claim(context.Background(), signer, tokenAddr, value); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Claimed %s of %s\n", value, crypto.FromArray(tokenAddr))
		return nil
	})
}

func runRedeemAndClaim(args []string, stdout, stderr io.Writer) int {
	fs, common, items := itemFlags("redeem-and-claim", stderr)
	token := fs.String("token", "", "Reward token address")
	amount := fs.String("amount", "", "Token amount to claim")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	pools, ids, err := parseItems(*items)
	if err != nil {
		return fail(stderr, err)
	}
	tokenAddr, err := crypto.ParseAddress(*token)
	if err != nil {
		return fail(stderr, fmt.Errorf("token: %w", err))
	}
	value, err := config.ParseAmount(*amount)
	if err != nil {
		return fail(stderr, err)
	}
	return withSigner(common, stderr, func(env *farmEnv, signer [20]byte) error {
		points, err := env.node.RedeemAndClaim(context.Background(), signer, pools, ids, tokenAddr, value)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Redeemed %s points and claimed %s of %s\n", points, value, crypto.FromArray(tokenAddr))
		return nil
	})
}

func runRecover(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("recover", stderr)
	common := bindCommon(fs)
	token := fs.String("token", "", "Reward token address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	tokenAddr, err := crypto.ParseAddress(*token)
	if err != nil {
		return fail(stderr, fmt.Errorf("token: %w", err))
	}
	return withSigner(common, stderr, func(env *farmEnv, signer [20]byte) error {
		recovered, err := env.node.RecoverRewards(context.Background(), signer, tokenAddr)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Recovered %s of %s to its funder\n", recovered, crypto.FromArray(tokenAddr))
		return nil
	})
}
