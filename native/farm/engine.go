package farm

import (
	"fmt"
	"math/big"
	"sort"
	"time"

	"nftfarm/core/events"
	nativecommon "nftfarm/native/common"
)

// engineState is the persistence surface the farm needs. Writes issued during
// a call stay pending until Commit; Discard drops them.
type engineState interface {
	FarmPoolGet(collateral [20]byte) (*Pool, bool, error)
	FarmPoolPut(pool *Pool) error
	FarmPoolIDs() ([][20]byte, error)
	FarmRewardGet(token [20]byte) (*RewardAllotment, bool, error)
	FarmRewardPut(reward *RewardAllotment) error
	FarmRewardIDs() ([][20]byte, error)
	FarmStakeGet(pool [20]byte, itemID uint64) (*StakeRecord, bool, error)
	FarmStakePut(record *StakeRecord) error
	FarmStakeDelete(pool [20]byte, itemID uint64) error
	FarmHolderGet(addr [20]byte) (*HolderAccount, bool, error)
	FarmHolderPut(account *HolderAccount) error
	FarmHolderIDs() ([][20]byte, error)
	FarmTotalsGet() (*Totals, error)
	FarmTotalsPut(totals *Totals) error
	Commit() error
	Discard()
}

// Custody moves collateral items between holders and the farm.
type Custody interface {
	Deposit(holder [20]byte, items []ItemRef) error
	Withdraw(holder [20]byte, items []ItemRef) error
}

// Treasury moves reward tokens between funders, holders and the farm.
type Treasury interface {
	Receive(token, from [20]byte, amount *big.Int) error
	Pay(token, to [20]byte, amount *big.Int) error
}

// Engine is the farm orchestrator. Every mutating call is applied as a single
// state transaction; events are only emitted once it has committed.
type Engine struct {
	cfg      Config
	ceiling  *big.Rat
	state    engineState
	custody  Custody
	treasury Treasury
	emitter  events.Emitter
	pauses   nativecommon.PauseView
	nowFn    func() int64
}

// NewEngine validates the configuration and constructs a farm with default
// dependencies. State and collaborators are wired through the setters.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		cfg:     cfg,
		ceiling: cfg.ceiling(),
		emitter: events.NoopEmitter{},
		nowFn: func() int64 {
			return time.Now().Unix()
		},
	}, nil
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetCustody configures the collateral custody collaborator.
func (e *Engine) SetCustody(custody Custody) { e.custody = custody }

// SetTreasury configures the reward token collaborator.
func (e *Engine) SetTreasury(treasury Treasury) { e.treasury = treasury }

// SetPauses wires the pause view consulted before every mutation.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used for deterministic testing.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// Now returns the engine clock in unix seconds.
func (e *Engine) Now() int64 { return e.now() }

// Owner returns the identity allowed to admit pools and rewards.
func (e *Engine) Owner() [20]byte { return e.cfg.Owner }

// LaunchTime returns the instant accrual starts and staking closes.
func (e *Engine) LaunchTime() int64 { return e.cfg.LaunchTime }

// FarmDeadline returns the instant accrual freezes.
func (e *Engine) FarmDeadline() int64 { return e.cfg.FarmDeadline }

// ReleaseTime returns the instant unclaimed supply becomes recoverable.
func (e *Engine) ReleaseTime() int64 { return e.cfg.ReleaseTime }

// ShareCeiling returns the bound on the summed pool shares.
func (e *Engine) ShareCeiling() *big.Rat { return new(big.Rat).Set(e.ceiling) }

// Phase returns the current lifecycle phase.
func (e *Engine) Phase() Phase { return e.phaseAt(e.now()) }

func (e *Engine) phaseAt(now int64) Phase {
	return PhaseAt(now, e.cfg.LaunchTime, e.cfg.FarmDeadline, e.cfg.ReleaseTime)
}

// txn carries the per-call context: the clock reading, the phase resolved
// once for the call, and the events buffered until commit.
type txn struct {
	op     Operation
	now    int64
	phase  Phase
	events []events.Event
}

func (tx *txn) emit(evt events.Event) {
	tx.events = append(tx.events, evt)
}

// apply runs fn as one all-or-nothing state transaction.
func (e *Engine) apply(op Operation, fn func(tx *txn) error) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return err
	}
	now := e.now()
	tx := &txn{op: op, now: now, phase: e.phaseAt(now)}
	if err := tx.phase.Permits(op); err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		e.state.Discard()
		return err
	}
	if err := e.state.Commit(); err != nil {
		e.state.Discard()
		return fmt.Errorf("farm: commit %s: %w", op, err)
	}
	for _, evt := range tx.events {
		e.emitter.Emit(evt)
	}
	return nil
}

func (e *Engine) requireOwner(caller [20]byte) error {
	if caller != e.cfg.Owner {
		return ErrUnauthorized
	}
	return nil
}

func (e *Engine) loadTotals() (*Totals, error) {
	totals, err := e.state.FarmTotalsGet()
	if err != nil {
		return nil, err
	}
	if totals == nil {
		return newTotals(), nil
	}
	if totals.ShareNum == nil || totals.ShareDen == nil || totals.ShareDen.Sign() == 0 {
		totals.ShareNum, totals.ShareDen = big.NewInt(0), big.NewInt(1)
	}
	if totals.Cap == nil {
		totals.Cap = big.NewInt(0)
	}
	return totals, nil
}

func (e *Engine) loadHolder(addr [20]byte) (*HolderAccount, error) {
	account, ok, err := e.state.FarmHolderGet(addr)
	if err != nil {
		return nil, err
	}
	if !ok || account == nil {
		return newHolderAccount(addr), nil
	}
	if account.SettledPoints == nil {
		account.SettledPoints = big.NewInt(0)
	}
	if account.RedeemedPoints == nil {
		account.RedeemedPoints = big.NewInt(0)
	}
	if account.SpentPoints == nil {
		account.SpentPoints = big.NewInt(0)
	}
	return account, nil
}

func validateBatch(pools [][20]byte, itemIDs []uint64) error {
	if len(pools) != len(itemIDs) {
		return ErrBatchMismatch
	}
	if len(pools) == 0 {
		return ErrEmptyBatch
	}
	return nil
}

func itemError(pool [20]byte, itemID uint64, err error) error {
	return fmt.Errorf("%s#%d: %w", hexAddr(pool), itemID, err)
}

// --- reads ---

// Cap returns Σ totalFunded × priceInPoints over every allotment.
func (e *Engine) Cap() (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	totals, err := e.loadTotals()
	if err != nil {
		return nil, err
	}
	return newBigInt(totals.Cap), nil
}

// ShareTotal returns the summed shares of every admitted pool.
func (e *Engine) ShareTotal() (*big.Rat, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	totals, err := e.loadTotals()
	if err != nil {
		return nil, err
	}
	return totals.ShareTotal(), nil
}

// TotalSupply returns the number of items currently staked across all holders.
func (e *Engine) TotalSupply() (uint64, error) {
	if e == nil || e.state == nil {
		return 0, ErrNilState
	}
	totals, err := e.loadTotals()
	if err != nil {
		return 0, err
	}
	return totals.TotalSupply, nil
}

// BalanceOf returns the number of items the holder currently has staked.
func (e *Engine) BalanceOf(holder [20]byte) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, ErrNilState
	}
	account, err := e.loadHolder(holder)
	if err != nil {
		return 0, err
	}
	return account.StakedWeight, nil
}

// Holder returns a copy of the holder account with its items sorted.
func (e *Engine) Holder(holder [20]byte) (*HolderAccount, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	account, err := e.loadHolder(holder)
	if err != nil {
		return nil, err
	}
	clone := account.Clone()
	sort.Slice(clone.Items, func(i, j int) bool { return clone.Items[i].less(clone.Items[j]) })
	return clone, nil
}

// Holders returns every holder address that has interacted with the farm.
func (e *Engine) Holders() ([][20]byte, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	return e.state.FarmHolderIDs()
}

// StakeOf returns the active record for an item.
func (e *Engine) StakeOf(pool [20]byte, itemID uint64) (*StakeRecord, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, ErrNilState
	}
	record, ok, err := e.state.FarmStakeGet(pool, itemID)
	if err != nil || !ok {
		return nil, ok, err
	}
	return record.Clone(), true, nil
}

// Pool returns the configuration and live count of one pool.
func (e *Engine) Pool(collateral [20]byte) (*Pool, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	pool, ok, err := e.state.FarmPoolGet(collateral)
	if err != nil {
		return nil, err
	}
	if !ok || pool == nil {
		return nil, ErrPoolNotFound
	}
	return pool.Clone(), nil
}

// Pools returns every admitted pool ordered by collateral address.
func (e *Engine) Pools() ([]*Pool, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	ids, err := e.state.FarmPoolIDs()
	if err != nil {
		return nil, err
	}
	out := make([]*Pool, 0, len(ids))
	for _, id := range ids {
		pool, err := e.Pool(id)
		if err != nil {
			return nil, err
		}
		out = append(out, pool)
	}
	return out, nil
}

// Reward returns one reward allotment.
func (e *Engine) Reward(token [20]byte) (*RewardAllotment, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	reward, ok, err := e.state.FarmRewardGet(token)
	if err != nil {
		return nil, err
	}
	if !ok || reward == nil {
		return nil, ErrRewardNotFound
	}
	return reward.Clone(), nil
}

// Rewards returns every allotment ordered by token address.
func (e *Engine) Rewards() ([]*RewardAllotment, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	ids, err := e.state.FarmRewardIDs()
	if err != nil {
		return nil, err
	}
	out := make([]*RewardAllotment, 0, len(ids))
	for _, id := range ids {
		reward, err := e.Reward(id)
		if err != nil {
			return nil, err
		}
		out = append(out, reward)
	}
	return out, nil
}
