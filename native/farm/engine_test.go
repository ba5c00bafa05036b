package farm

import (
	"errors"
	"math/big"
	"testing"

	"nftfarm/core/events"
	nativecommon "nftfarm/native/common"
)

const day = int64(24 * 60 * 60)

var (
	genesis = int64(1_700_000_000)
	launch  = genesis + 2*day
	expiry  = launch + 30*day
	release = expiry + 50*day
)

func addr(b byte) [20]byte {
	var out [20]byte
	out[19] = b
	out[0] = 0xfa
	return out
}

func exa(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000_000))
}

var (
	owner   = addr(1)
	alice   = addr(2)
	bob     = addr(3)
	funder  = addr(4)
	gen0    = addr(10)
	gen1    = addr(11)
	rag     = addr(12)
	tokenA  = addr(20)
	tokenB  = addr(21)
	pctBase = big.NewInt(1)
)

type fixture struct {
	engine   *Engine
	state    *mockState
	custody  *mockCustody
	treasury *mockTreasury
	recorder *events.Recorder
	clock    int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	engine, err := NewEngine(Config{Owner: owner, LaunchTime: launch, FarmDeadline: expiry, ReleaseTime: release})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	f := &fixture{
		engine:   engine,
		state:    newMockState(),
		custody:  newMockCustody(),
		treasury: newMockTreasury(),
		recorder: &events.Recorder{},
		clock:    genesis,
	}
	engine.SetState(f.state)
	engine.SetCustody(f.custody)
	engine.SetTreasury(f.treasury)
	engine.SetEmitter(f.recorder)
	engine.SetNowFunc(func() int64 { return f.clock })
	return f
}

func (f *fixture) addPool(t *testing.T, collateral [20]byte, rate *big.Int, capacity uint64, pct int64) {
	t.Helper()
	if _, err := f.engine.AddPool(owner, collateral, rate, capacity, big.NewInt(pct), pctBase); err != nil {
		t.Fatalf("add pool: %v", err)
	}
}

func (f *fixture) fund(t *testing.T, token [20]byte, amount, price *big.Int) {
	t.Helper()
	f.treasury.mint(token, funder, amount)
	if _, err := f.engine.AddTokenReward(owner, amount, price, token, funder); err != nil {
		t.Fatalf("add reward: %v", err)
	}
}

func (f *fixture) stakeRange(t *testing.T, holder, pool [20]byte, from, n uint64) {
	t.Helper()
	pools := make([][20]byte, 0, n)
	ids := make([]uint64, 0, n)
	for i := uint64(0); i < n; i++ {
		pools = append(pools, pool)
		ids = append(ids, from+i)
	}
	if err := f.engine.StakeBatch(holder, pools, ids); err != nil {
		t.Fatalf("stake batch: %v", err)
	}
}

func (f *fixture) rewards(t *testing.T, holder [20]byte) *big.Int {
	t.Helper()
	out, err := f.engine.UserRewards(holder)
	if err != nil {
		t.Fatalf("user rewards: %v", err)
	}
	return out
}

func (f *fixture) assertConserved(t *testing.T, token [20]byte, holders ...[20]byte) {
	t.Helper()
	reward, err := f.engine.Reward(token)
	if err != nil {
		t.Fatalf("reward: %v", err)
	}
	if !reward.Conserved() {
		t.Fatalf("allotment not conserved: %+v", reward)
	}
	paid := big.NewInt(0)
	for _, holder := range holders {
		account, err := f.engine.Holder(holder)
		if err != nil {
			t.Fatalf("holder: %v", err)
		}
		paid.Add(paid, account.Claimed(token))
	}
	if paid.Cmp(reward.PaidOut) != 0 {
		t.Fatalf("claimed %s, paid out %s", paid, reward.PaidOut)
	}
	if f.treasury.holding(token).Cmp(reward.Remaining) != 0 {
		t.Fatalf("treasury holds %s, vault remaining %s", f.treasury.holding(token), reward.Remaining)
	}
}

func TestNewEngineValidatesConfig(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		want error
	}{
		{"missing owner", Config{LaunchTime: 1, FarmDeadline: 2, ReleaseTime: 3}, ErrInvalidOwner},
		{"deadline before launch", Config{Owner: owner, LaunchTime: 5, FarmDeadline: 4, ReleaseTime: 6}, ErrInvalidTimeWindow},
		{"release equals deadline", Config{Owner: owner, LaunchTime: 1, FarmDeadline: 2, ReleaseTime: 2}, ErrInvalidTimeWindow},
		{"zero ceiling", Config{Owner: owner, LaunchTime: 1, FarmDeadline: 2, ReleaseTime: 3, ShareCeiling: new(big.Rat)}, ErrInvalidCeiling},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewEngine(tc.cfg); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	engine, err := NewEngine(Config{Owner: owner, LaunchTime: launch, FarmDeadline: expiry, ReleaseTime: release})
	if err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	if engine.LaunchTime() != launch || engine.FarmDeadline() != expiry || engine.ReleaseTime() != release {
		t.Fatalf("boundaries not retained")
	}
	if engine.ShareCeiling().Cmp(DefaultShareCeiling) != 0 {
		t.Fatalf("unexpected default ceiling %s", engine.ShareCeiling())
	}
}

func TestEngineWithoutStateFails(t *testing.T) {
	engine, err := NewEngine(Config{Owner: owner, LaunchTime: launch, FarmDeadline: expiry, ReleaseTime: release})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := engine.Stake(alice, gen0, 1); !errors.Is(err, ErrNilState) {
		t.Fatalf("expected nil state error, got %v", err)
	}
	if _, err := engine.Cap(); !errors.Is(err, ErrNilState) {
		t.Fatalf("expected nil state error, got %v", err)
	}
}

func TestAddPoolRequiresOwner(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.AddPool(alice, gen0, exa(5), 10, big.NewInt(20), pctBase); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if _, err := f.engine.AddPool(owner, gen0, big.NewInt(0), 10, big.NewInt(20), pctBase); !errors.Is(err, ErrInvalidPool) {
		t.Fatalf("expected invalid pool for zero rate, got %v", err)
	}
	if _, err := f.engine.AddPool(owner, gen0, exa(5), 0, big.NewInt(20), pctBase); !errors.Is(err, ErrInvalidPool) {
		t.Fatalf("expected invalid pool for zero capacity, got %v", err)
	}
	if f.recorder.Count(events.TypeFarmPoolAdded) != 0 {
		t.Fatalf("rejected admissions must not emit")
	}
}

func TestAddPoolShareCeiling(t *testing.T) {
	f := newFixture(t)
	f.addPool(t, gen0, exa(5), 10, 20)
	f.addPool(t, gen1, exa(5), 30, 30)
	f.addPool(t, rag, exa(10), 100, 30)

	if _, err := f.engine.AddPool(owner, rag, exa(10), 100, big.NewInt(30), pctBase); !errors.Is(err, ErrShareCapExceeded) {
		t.Fatalf("expected share cap exceeded, got %v", err)
	}
	if _, err := f.engine.AddPool(owner, rag, exa(10), 100, big.NewInt(0), pctBase); !errors.Is(err, ErrDuplicatePool) {
		t.Fatalf("expected duplicate pool, got %v", err)
	}
	if _, err := f.engine.AddPool(owner, addr(13), exa(1), 5, big.NewInt(20), pctBase); err != nil {
		t.Fatalf("pool filling the ceiling exactly should be admitted: %v", err)
	}
	share, err := f.engine.ShareTotal()
	if err != nil {
		t.Fatalf("share total: %v", err)
	}
	if share.Cmp(big.NewRat(100, 1)) != 0 {
		t.Fatalf("unexpected share total %s", share)
	}
	if got := f.recorder.Count(events.TypeFarmPoolAdded); got != 4 {
		t.Fatalf("expected 4 admissions, got %d", got)
	}
}

func TestAddPoolFractionalShares(t *testing.T) {
	f := newFixture(t)
	// Thirds sum exactly to the ceiling without rounding.
	for i := byte(0); i < 3; i++ {
		if _, err := f.engine.AddPool(owner, addr(30+i), exa(1), 1, big.NewInt(100), big.NewInt(3)); err != nil {
			t.Fatalf("add third %d: %v", i, err)
		}
	}
	if _, err := f.engine.AddPool(owner, addr(40), exa(1), 1, big.NewInt(1), big.NewInt(1_000_000)); !errors.Is(err, ErrShareCapExceeded) {
		t.Fatalf("expected share cap exceeded, got %v", err)
	}
}

func TestAddTokenRewardMaintainsCap(t *testing.T) {
	f := newFixture(t)
	f.fund(t, tokenA, big.NewInt(1000), exa(100))
	f.fund(t, tokenB, big.NewInt(50), exa(7))
	f.fund(t, tokenA, big.NewInt(500), exa(100))

	want := new(big.Int).Mul(big.NewInt(1500), exa(100))
	want.Add(want, new(big.Int).Mul(big.NewInt(50), exa(7)))
	got, err := f.engine.Cap()
	if err != nil {
		t.Fatalf("cap: %v", err)
	}
	if got.Cmp(want) != 0 {
		t.Fatalf("expected cap %s, got %s", want, got)
	}
	remaining, err := f.engine.RemainingCap()
	if err != nil {
		t.Fatalf("remaining cap: %v", err)
	}
	if remaining.Cmp(want) != 0 {
		t.Fatalf("expected remaining cap %s, got %s", want, remaining)
	}
	reward, err := f.engine.Reward(tokenA)
	if err != nil {
		t.Fatalf("reward: %v", err)
	}
	if reward.TotalFunded.Cmp(big.NewInt(1500)) != 0 || reward.Remaining.Cmp(big.NewInt(1500)) != 0 {
		t.Fatalf("unexpected allotment %+v", reward)
	}
	f.assertConserved(t, tokenA)

	f.treasury.mint(tokenA, funder, big.NewInt(1))
	if _, err := f.engine.AddTokenReward(owner, big.NewInt(1), exa(99), tokenA, funder); !errors.Is(err, ErrPriceMismatch) {
		t.Fatalf("expected price mismatch, got %v", err)
	}
	if _, err := f.engine.AddTokenReward(alice, big.NewInt(1), exa(100), tokenA, funder); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if _, err := f.engine.AddTokenReward(owner, big.NewInt(0), exa(100), tokenA, funder); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
}

func TestAddTokenRewardFailedTransferLeavesVault(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.AddTokenReward(owner, big.NewInt(10), exa(1), tokenA, funder); !errors.Is(err, errTransferFailed) {
		t.Fatalf("expected transfer failure, got %v", err)
	}
	if _, err := f.engine.Reward(tokenA); !errors.Is(err, ErrRewardNotFound) {
		t.Fatalf("allotment should not exist, got %v", err)
	}
	total, err := f.engine.Cap()
	if err != nil {
		t.Fatalf("cap: %v", err)
	}
	if total.Sign() != 0 {
		t.Fatalf("cap should stay zero, got %s", total)
	}
	if f.recorder.Count(events.TypeFarmRewardAdded) != 0 {
		t.Fatalf("failed funding must not emit")
	}
}

func TestFarmLifecycleScenario(t *testing.T) {
	f := newFixture(t)
	f.addPool(t, gen0, exa(5), 10, 20)
	f.addPool(t, gen1, exa(5), 30, 30)
	f.addPool(t, rag, exa(10), 100, 30)
	f.fund(t, tokenA, big.NewInt(1000), exa(100))
	f.fund(t, tokenB, big.NewInt(1), exa(1_000_000_000_000))

	f.stakeRange(t, alice, gen0, 1, 10)
	f.stakeRange(t, alice, gen1, 1, 30)
	f.stakeRange(t, bob, rag, 1, 100)

	if err := f.engine.Stake(bob, gen0, 11); !errors.Is(err, ErrPoolCapacityExceeded) {
		t.Fatalf("expected capacity exceeded, got %v", err)
	}
	if err := f.engine.Stake(bob, gen0, 3); !errors.Is(err, ErrAlreadyStaked) {
		t.Fatalf("expected already staked, got %v", err)
	}
	supply, err := f.engine.TotalSupply()
	if err != nil {
		t.Fatalf("total supply: %v", err)
	}
	if supply != 140 {
		t.Fatalf("expected supply 140, got %d", supply)
	}
	if bal, _ := f.engine.BalanceOf(alice); bal != 40 {
		t.Fatalf("expected alice balance 40, got %d", bal)
	}
	if bal, _ := f.engine.BalanceOf(bob); bal != 100 {
		t.Fatalf("expected bob balance 100, got %d", bal)
	}

	f.clock = launch - 1
	if r := f.rewards(t, alice); r.Sign() != 0 {
		t.Fatalf("no accrual before launch, got %s", r)
	}
	if r := f.rewards(t, bob); r.Sign() != 0 {
		t.Fatalf("no accrual before launch, got %s", r)
	}

	f.clock = launch + 2*day
	wantAlice := new(big.Int).Mul(exa(5*40), big.NewInt(2*day))
	if r := f.rewards(t, alice); r.Cmp(wantAlice) != 0 {
		t.Fatalf("expected alice rewards %s, got %s", wantAlice, r)
	}
	wantBob := new(big.Int).Mul(exa(10*100), big.NewInt(2*day))
	if r := f.rewards(t, bob); r.Cmp(wantBob) != 0 {
		t.Fatalf("expected bob rewards %s, got %s", wantBob, r)
	}

	pools := make([][20]byte, 0, 40)
	ids := make([]uint64, 0, 40)
	for i := uint64(1); i <= 10; i++ {
		pools, ids = append(pools, gen0), append(ids, i)
	}
	for i := uint64(1); i <= 30; i++ {
		pools, ids = append(pools, gen1), append(ids, i)
	}
	credited, err := f.engine.RedeemBatch(alice, pools, ids)
	if err != nil {
		t.Fatalf("redeem batch: %v", err)
	}
	if credited.Cmp(wantAlice) != 0 {
		t.Fatalf("expected credit %s, got %s", wantAlice, credited)
	}
	if r := f.rewards(t, alice); r.Sign() != 0 {
		t.Fatalf("redeemed points must leave user rewards, got %s", r)
	}

	remainingBefore, _ := f.engine.RemainingCap()
	if err := f.engine.Claim(alice, tokenA, big.NewInt(100)); err != nil {
		t.Fatalf("claim: %v", err)
	}
	remainingAfter, _ := f.engine.RemainingCap()
	drop := new(big.Int).Sub(remainingBefore, remainingAfter)
	if want := new(big.Int).Mul(big.NewInt(100), exa(100)); drop.Cmp(want) != 0 {
		t.Fatalf("expected remaining cap to drop by %s, got %s", want, drop)
	}
	reward, _ := f.engine.Reward(tokenA)
	if reward.Remaining.Cmp(big.NewInt(900)) != 0 {
		t.Fatalf("expected 900 remaining, got %s", reward.Remaining)
	}
	if got := f.treasury.balance(tokenA, alice); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected alice to hold 100 tokens, got %s", got)
	}
	capAfter, _ := f.engine.Cap()
	capWant := new(big.Int).Add(new(big.Int).Mul(big.NewInt(1000), exa(100)), exa(1_000_000_000_000))
	if capAfter.Cmp(capWant) != 0 {
		t.Fatalf("cap must not shrink on claim: %s", capAfter)
	}

	if err := f.engine.Claim(alice, tokenB, big.NewInt(1)); !errors.Is(err, ErrInsufficientPoints) {
		t.Fatalf("expected insufficient points, got %v", err)
	}
	if err := f.engine.Claim(alice, tokenA, big.NewInt(901)); !errors.Is(err, ErrInsufficientVaultSupply) {
		t.Fatalf("expected insufficient vault supply, got %v", err)
	}
	if err := f.engine.Claim(bob, tokenA, big.NewInt(1)); !errors.Is(err, ErrInsufficientPoints) {
		t.Fatalf("unredeemed accrual is not spendable, got %v", err)
	}
	f.assertConserved(t, tokenA, alice, bob)
	f.assertConserved(t, tokenB, alice, bob)

	account, _ := f.engine.Holder(alice)
	spent := new(big.Int).Mul(big.NewInt(100), exa(100))
	if account.SpentPoints.Cmp(spent) != 0 {
		t.Fatalf("expected spent %s, got %s", spent, account.SpentPoints)
	}
	if account.UnspentPoints().Cmp(new(big.Int).Sub(wantAlice, spent)) != 0 {
		t.Fatalf("unexpected unspent credit %s", account.UnspentPoints())
	}
	if got := f.recorder.Count(events.TypeFarmRedeem); got != 40 {
		t.Fatalf("expected 40 redeem events, got %d", got)
	}
	if got := f.recorder.Count(events.TypeFarmRewardClaimed); got != 1 {
		t.Fatalf("expected 1 claim event, got %d", got)
	}
}

func TestStakeClosesAtLaunch(t *testing.T) {
	f := newFixture(t)
	f.addPool(t, gen0, exa(5), 10, 20)
	f.clock = launch
	if err := f.engine.Stake(alice, gen0, 1); !errors.Is(err, ErrStakeWindowClosed) {
		t.Fatalf("expected stake window closed, got %v", err)
	}
	f.clock = release + day
	if err := f.engine.Stake(alice, gen0, 1); !errors.Is(err, ErrStakeWindowClosed) {
		t.Fatalf("expected stake window closed, got %v", err)
	}
	if err := f.engine.Stake(alice, addr(99), 1); !errors.Is(err, ErrStakeWindowClosed) {
		t.Fatalf("phase check precedes pool lookup, got %v", err)
	}
}

func TestStakeUnknownPool(t *testing.T) {
	f := newFixture(t)
	if err := f.engine.Stake(alice, gen0, 1); !errors.Is(err, ErrPoolNotFound) {
		t.Fatalf("expected pool not found, got %v", err)
	}
}

func TestAccrualFreezesAtDeadline(t *testing.T) {
	f := newFixture(t)
	f.addPool(t, gen0, exa(5), 10, 20)
	f.stakeRange(t, alice, gen0, 1, 2)

	f.clock = expiry
	atDeadline := f.rewards(t, alice)
	want := new(big.Int).Mul(exa(10), big.NewInt(expiry-launch))
	if atDeadline.Cmp(want) != 0 {
		t.Fatalf("expected %s at deadline, got %s", want, atDeadline)
	}
	for _, at := range []int64{expiry + 1, expiry + 10*day, release + 100*day} {
		f.clock = at
		if r := f.rewards(t, alice); r.Cmp(atDeadline) != 0 {
			t.Fatalf("accrual must be frozen after deadline: %s != %s", r, atDeadline)
		}
	}
	if _, err := f.engine.Redeem(alice, gen0, 1); err != nil {
		t.Fatalf("accrued points stay redeemable after release: %v", err)
	}
}

func TestRedeemIsIdempotentWithoutElapsedTime(t *testing.T) {
	f := newFixture(t)
	f.addPool(t, gen0, exa(5), 10, 20)
	f.stakeRange(t, alice, gen0, 1, 1)

	if _, err := f.engine.Redeem(alice, gen0, 1); !errors.Is(err, ErrNothingToRedeem) {
		t.Fatalf("nothing accrues before launch, got %v", err)
	}
	f.clock = launch + day
	first, err := f.engine.Redeem(alice, gen0, 1)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if first.Cmp(new(big.Int).Mul(exa(5), big.NewInt(day))) != 0 {
		t.Fatalf("unexpected first redemption %s", first)
	}
	if _, err := f.engine.Redeem(alice, gen0, 1); !errors.Is(err, ErrNothingToRedeem) {
		t.Fatalf("expected nothing to redeem, got %v", err)
	}
	f.clock += 10
	second, err := f.engine.Redeem(alice, gen0, 1)
	if err != nil {
		t.Fatalf("redeem after elapsed time: %v", err)
	}
	if second.Cmp(exa(50)) != 0 {
		t.Fatalf("expected 10 seconds of accrual, got %s", second)
	}
	if _, err := f.engine.Redeem(bob, gen0, 1); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected not owner, got %v", err)
	}
	if _, err := f.engine.Redeem(alice, gen0, 2); !errors.Is(err, ErrNoActiveStake) {
		t.Fatalf("expected no active stake, got %v", err)
	}
	account, _ := f.engine.Holder(alice)
	if account.RedeemedPoints.Cmp(new(big.Int).Add(first, second)) != 0 {
		t.Fatalf("redeemed points mismatch: %s", account.RedeemedPoints)
	}
}

func TestPositionAtEvaluatesOneInstant(t *testing.T) {
	f := newFixture(t)
	f.addPool(t, gen0, exa(5), 10, 20)
	f.stakeRange(t, alice, gen0, 1, 2)
	f.clock = launch + 10
	if _, err := f.engine.Redeem(alice, gen0, 1); err != nil {
		t.Fatalf("redeem: %v", err)
	}

	// every clock read advances a second
	f.engine.SetNowFunc(func() int64 {
		f.clock++
		return f.clock
	})
	at := launch + 20
	pos, err := f.engine.PositionAt(alice, at)
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if pos.At != at || pos.Pending.Cmp(exa(200)) != 0 {
		t.Fatalf("unexpected pending %s at %d", pos.Pending, pos.At)
	}
	outstanding := new(big.Int).Sub(pos.Pending, pos.Account.RedeemedPoints)
	if pos.Outstanding.Cmp(outstanding) != 0 {
		t.Fatalf("outstanding %s, pending minus redeemed %s", pos.Outstanding, outstanding)
	}
	if len(pos.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(pos.Items))
	}
	items := new(big.Int).Add(pos.Items[0].Outstanding, pos.Items[1].Outstanding)
	if items.Cmp(pos.Outstanding) != 0 {
		t.Fatalf("item outstanding %s, holder outstanding %s", items, pos.Outstanding)
	}
	if pos.Items[0].Record.ItemID != 1 || pos.Items[0].Outstanding.Cmp(exa(50)) != 0 {
		t.Fatalf("unexpected first item %+v", pos.Items[0])
	}
}

func TestUnstakeAnyTimeKeepsRedeemedPoints(t *testing.T) {
	f := newFixture(t)
	f.addPool(t, gen0, exa(5), 10, 20)
	f.stakeRange(t, alice, gen0, 1, 3)

	if err := f.engine.Unstake(bob, gen0, 1); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected not owner, got %v", err)
	}
	if err := f.engine.Unstake(alice, gen0, 9); !errors.Is(err, ErrNoActiveStake) {
		t.Fatalf("expected no active stake, got %v", err)
	}
	// Before launch: nothing accrued, nothing redeemed.
	if err := f.engine.Unstake(alice, gen0, 3); err != nil {
		t.Fatalf("pre-launch unstake: %v", err)
	}
	if _, ok := f.custody.held[ItemRef{Pool: gen0, ItemID: 3}]; ok {
		t.Fatalf("item should be returned to holder")
	}
	if got := f.recorder.Count(events.TypeFarmRedeem); got != 0 {
		t.Fatalf("zero accrual must not emit redeem, got %d", got)
	}

	f.clock = launch + day
	redeemed, err := f.engine.Redeem(alice, gen0, 1)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	f.clock = launch + 3*day
	if err := f.engine.Unstake(alice, gen0, 1); err != nil {
		t.Fatalf("unstake during accrual: %v", err)
	}
	account, _ := f.engine.Holder(alice)
	wantRedeemed := new(big.Int).Mul(exa(5), big.NewInt(3*day))
	if account.RedeemedPoints.Cmp(wantRedeemed) != 0 {
		t.Fatalf("expected redeemed %s (first %s plus outstanding), got %s", wantRedeemed, redeemed, account.RedeemedPoints)
	}
	if account.SettledPoints.Cmp(wantRedeemed) != 0 {
		t.Fatalf("expected settled %s, got %s", wantRedeemed, account.SettledPoints)
	}

	f.clock = expiry + day
	pendingBefore, _ := f.engine.PendingPoints(alice)
	if err := f.engine.Unstake(alice, gen0, 2); err != nil {
		t.Fatalf("post-deadline unstake: %v", err)
	}
	pendingAfter, _ := f.engine.PendingPoints(alice)
	if pendingBefore.Cmp(pendingAfter) != 0 {
		t.Fatalf("unstake must not change pending points: %s != %s", pendingBefore, pendingAfter)
	}
	if r := f.rewards(t, alice); r.Sign() != 0 {
		t.Fatalf("all accrual redeemed on unstake, got %s", r)
	}
	if bal, _ := f.engine.BalanceOf(alice); bal != 0 {
		t.Fatalf("expected zero balance, got %d", bal)
	}
	pool, _ := f.engine.Pool(gen0)
	if pool.StakedCount != 0 {
		t.Fatalf("expected empty pool, got %d", pool.StakedCount)
	}
	if len(f.custody.held) != 0 {
		t.Fatalf("custody should be empty, holds %d", len(f.custody.held))
	}
}

func TestStakeBatchIsAtomic(t *testing.T) {
	f := newFixture(t)
	f.addPool(t, gen0, exa(5), 3, 20)

	err := f.engine.StakeBatch(alice, [][20]byte{gen0, gen0, gen0}, []uint64{1, 2, 1})
	if !errors.Is(err, ErrAlreadyStaked) {
		t.Fatalf("expected duplicate in batch to fail, got %v", err)
	}
	err = f.engine.StakeBatch(alice, [][20]byte{gen0, gen0, gen0, gen0}, []uint64{1, 2, 3, 4})
	if !errors.Is(err, ErrPoolCapacityExceeded) {
		t.Fatalf("expected capacity exceeded, got %v", err)
	}
	f.custody.fail = true
	if err := f.engine.StakeBatch(alice, [][20]byte{gen0}, []uint64{1}); !errors.Is(err, errTransferFailed) {
		t.Fatalf("expected custody failure, got %v", err)
	}
	f.custody.fail = false

	if supply, _ := f.engine.TotalSupply(); supply != 0 {
		t.Fatalf("failed batches must not change supply, got %d", supply)
	}
	if _, ok, _ := f.engine.StakeOf(gen0, 1); ok {
		t.Fatalf("failed batches must not leave stake records")
	}
	pool, _ := f.engine.Pool(gen0)
	if pool.StakedCount != 0 {
		t.Fatalf("failed batches must not reserve capacity, got %d", pool.StakedCount)
	}
	if f.recorder.Count(events.TypeFarmStake) != 0 {
		t.Fatalf("failed batches must not emit")
	}
	if err := f.engine.StakeBatch(alice, [][20]byte{gen0}, nil); !errors.Is(err, ErrBatchMismatch) {
		t.Fatalf("expected batch mismatch, got %v", err)
	}
	if err := f.engine.StakeBatch(alice, nil, nil); !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("expected empty batch, got %v", err)
	}
}

func TestUnstakeBatchIsAtomic(t *testing.T) {
	f := newFixture(t)
	f.addPool(t, gen0, exa(5), 10, 20)
	f.stakeRange(t, alice, gen0, 1, 2)
	f.stakeRange(t, bob, gen0, 3, 1)
	f.clock = launch + day

	err := f.engine.UnstakeBatch(alice, [][20]byte{gen0, gen0, gen0}, []uint64{1, 2, 3})
	if !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected not owner, got %v", err)
	}
	if bal, _ := f.engine.BalanceOf(alice); bal != 2 {
		t.Fatalf("failed batch must keep stakes, got %d", bal)
	}
	account, _ := f.engine.Holder(alice)
	if account.RedeemedPoints.Sign() != 0 {
		t.Fatalf("failed batch must not redeem, got %s", account.RedeemedPoints)
	}
	if err := f.engine.UnstakeBatch(alice, [][20]byte{gen0, gen0}, []uint64{1, 2}); err != nil {
		t.Fatalf("unstake batch: %v", err)
	}
	if got := f.recorder.Count(events.TypeFarmUnstake); got != 2 {
		t.Fatalf("expected 2 unstake events, got %d", got)
	}
}

func TestRedeemAndClaimIsAtomic(t *testing.T) {
	f := newFixture(t)
	f.addPool(t, gen0, exa(5), 10, 20)
	f.fund(t, tokenA, big.NewInt(10), exa(1))
	f.stakeRange(t, alice, gen0, 1, 1)
	f.clock = launch + 10

	if _, err := f.engine.RedeemAndClaim(alice, [][20]byte{gen0}, []uint64{1}, tokenA, big.NewInt(11)); !errors.Is(err, ErrInsufficientVaultSupply) {
		t.Fatalf("expected insufficient supply, got %v", err)
	}
	if r := f.rewards(t, alice); r.Cmp(exa(50)) != 0 {
		t.Fatalf("failed claim must roll back the redemption, got %s", r)
	}
	if f.recorder.Count(events.TypeFarmRedeem) != 0 {
		t.Fatalf("rolled back redemption must not emit")
	}

	f.treasury.failPay = true
	if _, err := f.engine.RedeemAndClaim(alice, [][20]byte{gen0}, []uint64{1}, tokenA, big.NewInt(5)); !errors.Is(err, errTransferFailed) {
		t.Fatalf("expected payout failure, got %v", err)
	}
	f.treasury.failPay = false
	reward, _ := f.engine.Reward(tokenA)
	if reward.Remaining.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("failed payout must not debit vault, got %s", reward.Remaining)
	}

	credited, err := f.engine.RedeemAndClaim(alice, [][20]byte{gen0}, []uint64{1}, tokenA, big.NewInt(10))
	if err != nil {
		t.Fatalf("redeem and claim: %v", err)
	}
	if credited.Cmp(exa(50)) != 0 {
		t.Fatalf("unexpected credit %s", credited)
	}
	f.assertConserved(t, tokenA, alice)
	account, _ := f.engine.Holder(alice)
	if account.UnspentPoints().Cmp(exa(40)) != 0 {
		t.Fatalf("expected 40e18 unspent, got %s", account.UnspentPoints())
	}
}

func TestRecoverRewardsAfterRelease(t *testing.T) {
	f := newFixture(t)
	f.addPool(t, gen0, exa(5), 10, 20)
	f.fund(t, tokenA, big.NewInt(100), exa(1))
	f.stakeRange(t, alice, gen0, 1, 1)
	f.clock = launch + 10
	if _, err := f.engine.RedeemAndClaim(alice, [][20]byte{gen0}, []uint64{1}, tokenA, big.NewInt(30)); err != nil {
		t.Fatalf("redeem and claim: %v", err)
	}

	f.clock = release - 1
	if _, err := f.engine.RecoverRewards(owner, tokenA); !errors.Is(err, ErrNotReleased) {
		t.Fatalf("expected not released, got %v", err)
	}
	f.clock = release
	if _, err := f.engine.RecoverRewards(alice, tokenA); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	recovered, err := f.engine.RecoverRewards(owner, tokenA)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if recovered.Cmp(big.NewInt(70)) != 0 {
		t.Fatalf("expected 70 recovered, got %s", recovered)
	}
	if got := f.treasury.balance(tokenA, funder); got.Cmp(big.NewInt(70)) != 0 {
		t.Fatalf("funder should hold 70, got %s", got)
	}
	if _, err := f.engine.RecoverRewards(owner, tokenA); !errors.Is(err, ErrNothingToRecover) {
		t.Fatalf("expected nothing to recover, got %v", err)
	}
	if err := f.engine.Claim(alice, tokenA, big.NewInt(1)); !errors.Is(err, ErrInsufficientVaultSupply) {
		t.Fatalf("expected empty vault, got %v", err)
	}
	f.assertConserved(t, tokenA, alice)
	if f.engine.Phase() != PhaseReleased {
		t.Fatalf("unexpected phase %s", f.engine.Phase())
	}
}

func TestTopUpFromOtherFunderRejected(t *testing.T) {
	f := newFixture(t)
	f.fund(t, tokenA, big.NewInt(100), exa(1))
	other := addr(5)
	f.treasury.mint(tokenA, other, big.NewInt(50))
	if _, err := f.engine.AddTokenReward(owner, big.NewInt(50), exa(1), tokenA, other); !errors.Is(err, ErrFunderMismatch) {
		t.Fatalf("expected funder mismatch, got %v", err)
	}
	if got := f.treasury.balance(tokenA, other); got.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("rejected top-up moved tokens: %s", got)
	}
	reward, err := f.engine.Reward(tokenA)
	if err != nil {
		t.Fatalf("reward: %v", err)
	}
	if reward.Remaining.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("vault changed on rejected top-up: %s", reward.Remaining)
	}

	f.clock = release
	if _, err := f.engine.RecoverRewards(owner, tokenA); err != nil {
		t.Fatalf("recover: %v", err)
	}
	if got := f.treasury.balance(tokenA, funder); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("funder should recover 100, got %s", got)
	}
	if got := f.treasury.balance(tokenA, other); got.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("other funder should keep 50, got %s", got)
	}
	f.assertConserved(t, tokenA)
}

func TestPausedFarmRejectsMutations(t *testing.T) {
	f := newFixture(t)
	pauses := nativecommon.NewPauses()
	f.engine.SetPauses(pauses)
	f.addPool(t, gen0, exa(5), 10, 20)

	pauses.Set(ModuleName, true)
	if err := f.engine.Stake(alice, gen0, 1); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected paused, got %v", err)
	}
	if _, err := f.engine.Pool(gen0); err != nil {
		t.Fatalf("reads stay available while paused: %v", err)
	}
	pauses.Set(ModuleName, false)
	if err := f.engine.Stake(alice, gen0, 1); err != nil {
		t.Fatalf("stake after resume: %v", err)
	}
}

func TestCommitFailureDropsEvents(t *testing.T) {
	f := newFixture(t)
	f.state.commitErr = errors.New("disk full")
	if _, err := f.engine.AddPool(owner, gen0, exa(5), 10, big.NewInt(20), pctBase); err == nil {
		t.Fatalf("expected commit failure")
	}
	if f.state.discards == 0 {
		t.Fatalf("failed commit must discard pending writes")
	}
	if f.recorder.Count(events.TypeFarmPoolAdded) != 0 {
		t.Fatalf("uncommitted admission must not emit")
	}
	f.state.commitErr = nil
	if _, err := f.engine.Pool(gen0); !errors.Is(err, ErrPoolNotFound) {
		t.Fatalf("expected pool to be absent, got %v", err)
	}
}

func TestHolderItemsSorted(t *testing.T) {
	f := newFixture(t)
	f.addPool(t, gen1, exa(5), 10, 20)
	f.addPool(t, gen0, exa(5), 10, 20)
	if err := f.engine.StakeBatch(alice, [][20]byte{gen1, gen0, gen0}, []uint64{7, 9, 2}); err != nil {
		t.Fatalf("stake: %v", err)
	}
	account, err := f.engine.Holder(alice)
	if err != nil {
		t.Fatalf("holder: %v", err)
	}
	want := []ItemRef{{Pool: gen0, ItemID: 2}, {Pool: gen0, ItemID: 9}, {Pool: gen1, ItemID: 7}}
	if len(account.Items) != len(want) {
		t.Fatalf("unexpected items %+v", account.Items)
	}
	for i := range want {
		if account.Items[i] != want[i] {
			t.Fatalf("item %d: expected %+v, got %+v", i, want[i], account.Items[i])
		}
	}
	pools, _ := f.engine.Pools()
	if len(pools) != 2 || pools[0].Collateral != gen0 {
		t.Fatalf("pools should be ordered by collateral")
	}
}
