package main

import (
	"fmt"
	"io"
	"os"
)

const (
	defaultConfig  = "./config.toml"
	defaultPassEnv = "FARM_KEYSTORE_PASS"
)

type command func(args []string, stdout, stderr io.Writer) int

var commands = map[string]command{
	"init":             runInit,
	"keygen":           runKeygen,
	"bootstrap":        runBootstrap,
	"add-pool":         runAddPool,
	"add-reward":       runAddReward,
	"stake":            runStake,
	"unstake":          runUnstake,
	"redeem":           runRedeem,
	"claim":            runClaim,
	"redeem-and-claim": runRedeemAndClaim,
	"recover":          runRecover,
	"status":           runStatus,
	"export":           runExport,
	"verify-journal":   runVerifyJournal,
}

func main() {
	os.Exit(dispatch(os.Args[1:], os.Stdout, os.Stderr))
}

func dispatch(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 1
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "Error: unknown command %q\n", args[0])
		printUsage(stderr)
		return 1
	}
	return cmd(args[1:], stdout, stderr)
}

func fail(stderr io.Writer, err error) int {
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return 1
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "farmctl <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Setup:")
	fmt.Fprintln(w, "  init               Write a default config.toml")
	fmt.Fprintln(w, "  keygen             Generate an encrypted signer keystore")
	fmt.Fprintln(w, "  bootstrap          Apply a YAML manifest of pools, rewards, items and balances (owner)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Owner:")
	fmt.Fprintln(w, "  add-pool           Admit a collateral collection")
	fmt.Fprintln(w, "  add-reward         Fund or top up a reward allotment")
	fmt.Fprintln(w, "  recover            Return unclaimed reward supply to its funder after release")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Holder:")
	fmt.Fprintln(w, "  stake              Deposit items before launch")
	fmt.Fprintln(w, "  unstake            Withdraw items, redeeming their accrual")
	fmt.Fprintln(w, "  redeem             Convert accrued points into spendable credit")
	fmt.Fprintln(w, "  claim              Spend credit on reward tokens")
	fmt.Fprintln(w, "  redeem-and-claim   Redeem items then claim in one call")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Read:")
	fmt.Fprintln(w, "  status             Print farm totals, pools, rewards or one holder")
	fmt.Fprintln(w, "  export             Write a holder snapshot as csv, jsonl or parquet")
	fmt.Fprintln(w, "  verify-journal     Check the hash chain of the event journal")
}
