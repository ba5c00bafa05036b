package farm

import (
	"errors"
	"math/big"
	"testing"
)

func TestPhaseAtBoundaries(t *testing.T) {
	cases := []struct {
		at   int64
		want Phase
	}{
		{genesis, PhasePreLaunch},
		{launch - 1, PhasePreLaunch},
		{launch, PhaseAccruing},
		{expiry - 1, PhaseAccruing},
		{expiry, PhasePostDeadline},
		{release - 1, PhasePostDeadline},
		{release, PhaseReleased},
	}
	for _, tc := range cases {
		if got := PhaseAt(tc.at, launch, expiry, release); got != tc.want {
			t.Fatalf("at %d: expected %s, got %s", tc.at, tc.want, got)
		}
	}
}

func TestPhasePermits(t *testing.T) {
	for _, phase := range []Phase{PhaseAccruing, PhasePostDeadline, PhaseReleased} {
		if err := phase.Permits(OpStake); !errors.Is(err, ErrStakeWindowClosed) {
			t.Fatalf("%s: expected stake window closed, got %v", phase, err)
		}
	}
	for _, phase := range []Phase{PhasePreLaunch, PhaseAccruing, PhasePostDeadline} {
		if err := phase.Permits(OpRecover); !errors.Is(err, ErrNotReleased) {
			t.Fatalf("%s: expected not released, got %v", phase, err)
		}
	}
	for _, op := range []Operation{OpAddPool, OpAddReward, OpUnstake, OpRedeem, OpClaim, OpRedeemAndClaim} {
		for _, phase := range []Phase{PhasePreLaunch, PhaseAccruing, PhasePostDeadline, PhaseReleased} {
			if err := phase.Permits(op); err != nil {
				t.Fatalf("%s during %s: unexpected %v", op, phase, err)
			}
		}
	}
}

func TestAccrualWindow(t *testing.T) {
	cases := []struct {
		name     string
		from, at int64
		want     int64
	}{
		{"before launch", genesis, launch - 1, 0},
		{"staked before launch", genesis, launch + 10, 10},
		{"checkpoint inside window", launch + 5, launch + 10, 5},
		{"frozen at deadline", genesis, expiry + day, expiry - launch},
		{"checkpoint at deadline", expiry, release, 0},
	}
	for _, tc := range cases {
		if got := accrualWindow(tc.from, tc.at, launch, expiry); got != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, got)
		}
	}
	if got := clampCheckpoint(genesis, launch, expiry); got != launch {
		t.Fatalf("checkpoint before launch should clamp to launch, got %d", got)
	}
	if got := clampCheckpoint(release, launch, expiry); got != expiry {
		t.Fatalf("checkpoint after deadline should clamp to deadline, got %d", got)
	}
}

func TestBoundedArithmetic(t *testing.T) {
	limit := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	if _, err := addBounded(limit, big.NewInt(1)); !errors.Is(err, ErrAmountOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if _, err := mulBounded(limit, big.NewInt(2)); !errors.Is(err, ErrAmountOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if _, err := mulBounded(big.NewInt(-1), big.NewInt(2)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	got, err := mulBounded(exa(5), big.NewInt(day))
	if err != nil {
		t.Fatalf("mul: %v", err)
	}
	if got.Cmp(new(big.Int).Mul(exa(5), big.NewInt(day))) != 0 {
		t.Fatalf("unexpected product %s", got)
	}
}

func TestHolderAccountClaims(t *testing.T) {
	account := newHolderAccount(alice)
	account.RedeemedPoints = big.NewInt(10)
	account.SpentPoints = big.NewInt(4)
	account.addClaim(tokenA, big.NewInt(3))
	account.addClaim(tokenA, big.NewInt(2))
	if account.Claimed(tokenA).Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("expected 5 claimed, got %s", account.Claimed(tokenA))
	}
	if account.UnspentPoints().Cmp(big.NewInt(6)) != 0 {
		t.Fatalf("expected 6 unspent, got %s", account.UnspentPoints())
	}
	clone := account.Clone()
	clone.Claims[0].Amount.SetInt64(99)
	if account.Claimed(tokenA).Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("clone must not alias claims")
	}
}
