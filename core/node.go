package core

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"nftfarm/core/events"
	farmstate "nftfarm/core/state"
	"nftfarm/crypto"
	"nftfarm/integrations/exports"
	"nftfarm/native/bank"
	nativecommon "nftfarm/native/common"
	"nftfarm/native/farm"
	"nftfarm/observability/metrics"
	farmotel "nftfarm/observability/otel"
	"nftfarm/storage"
)

// NodeConfig carries the collaborators of a Node.
type NodeConfig struct {
	DB      storage.Database
	Farm    farm.Config
	Paused  bool
	Logger  *slog.Logger
	Metrics *metrics.FarmMetrics
}

// Node owns the farm state and serialises every call against it. Custody and
// token balances live in the same state so each farm call commits or rolls
// back as one batch.
type Node struct {
	db      storage.Database
	manager *farmstate.Manager
	bank    *bank.Ledger
	engine  *farm.Engine
	pauses  *nativecommon.Pauses
	logger  *slog.Logger
	metrics *metrics.FarmMetrics
	tracer  trace.Tracer

	stateMu     sync.Mutex
	subscribers events.Fanout
}

// NewNode wires the farm engine to persistent state.
func NewNode(cfg NodeConfig) (*Node, error) {
	if cfg.DB == nil {
		return nil, fmt.Errorf("node: database required")
	}
	engine, err := farm.NewEngine(cfg.Farm)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	manager := farmstate.NewManager(cfg.DB)
	ledger := bank.NewLedger(manager)
	pauses := nativecommon.NewPauses()
	pauses.Set(farm.ModuleName, cfg.Paused)

	n := &Node{
		db:      cfg.DB,
		manager: manager,
		bank:    ledger,
		engine:  engine,
		pauses:  pauses,
		logger:  logger,
		metrics: cfg.Metrics,
		tracer:  farmotel.Tracer(),
	}
	engine.SetState(manager)
	engine.SetCustody(ledger)
	engine.SetTreasury(ledger)
	engine.SetPauses(pauses)
	engine.SetEmitter(farmEventEmitter{node: n})
	return n, nil
}

// farmEventEmitter counts committed events and forwards them to subscribers.
// It runs while stateMu is held.
type farmEventEmitter struct {
	node *Node
}

func (e farmEventEmitter) Emit(evt events.Event) {
	if e.node == nil || evt == nil {
		return
	}
	e.node.metrics.RecordEvent(evt.EventType())
	e.node.subscribers.Emit(evt)
}

// Subscribe registers an emitter receiving every committed event.
func (n *Node) Subscribe(emitter events.Emitter) {
	if emitter == nil {
		return
	}
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	n.subscribers = append(n.subscribers, emitter)
}

// SetNowFunc overrides the clock used for phase resolution and accrual.
func (n *Node) SetNowFunc(now func() int64) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	n.engine.SetNowFunc(now)
}

// SetPaused toggles the farm pause switch.
func (n *Node) SetPaused(paused bool) {
	n.pauses.Set(farm.ModuleName, paused)
}

// Paused reports whether mutating calls are rejected.
func (n *Node) Paused() bool {
	return n.pauses.IsPaused(farm.ModuleName)
}

// Close releases the database.
func (n *Node) Close() {
	if n == nil || n.db == nil {
		return
	}
	n.db.Close()
}

func (n *Node) run(ctx context.Context, operation string, caller [20]byte, fn func() error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	who := crypto.FromArray(caller).String()
	ctx, span := n.tracer.Start(ctx, "farm."+operation, trace.WithAttributes(
		attribute.String("farm.operation", operation),
		attribute.String("farm.caller", who),
	))
	defer span.End()

	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	start := time.Now()
	err := fn()
	n.metrics.ObserveOperation(operation, err, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		n.logger.WarnContext(ctx, "farm call rejected",
			slog.String("operation", operation),
			slog.String("caller", who),
			slog.Any("error", err))
		return err
	}
	n.logger.InfoContext(ctx, "farm call applied",
		slog.String("operation", operation),
		slog.String("caller", who))
	return nil
}

// AddPool admits a collateral pool.
func (n *Node) AddPool(ctx context.Context, caller, collateral [20]byte, rate *big.Int, capacity uint64, shareWeight, shareWeightBase *big.Int) (*farm.Pool, error) {
	var pool *farm.Pool
	err := n.run(ctx, farm.OpAddPool.String(), caller, func() error {
		var err error
		pool, err = n.engine.AddPool(caller, collateral, rate, capacity, shareWeight, shareWeightBase)
		return err
	})
	return pool, err
}

// AddTokenReward funds or tops up a reward allotment.
func (n *Node) AddTokenReward(ctx context.Context, caller [20]byte, amount, priceInPoints *big.Int, token, funder [20]byte) (*farm.RewardAllotment, error) {
	var reward *farm.RewardAllotment
	err := n.run(ctx, farm.OpAddReward.String(), caller, func() error {
		var err error
		reward, err = n.engine.AddTokenReward(caller, amount, priceInPoints, token, funder)
		return err
	})
	return reward, err
}

// Stake takes the listed items into custody.
func (n *Node) Stake(ctx context.Context, holder [20]byte, pools [][20]byte, itemIDs []uint64) error {
	return n.run(ctx, farm.OpStake.String(), holder, func() error {
		return n.engine.StakeBatch(holder, pools, itemIDs)
	})
}

// Unstake returns the listed items, redeeming what they accrued.
func (n *Node) Unstake(ctx context.Context, holder [20]byte, pools [][20]byte, itemIDs []uint64) error {
	return n.run(ctx, farm.OpUnstake.String(), holder, func() error {
		return n.engine.UnstakeBatch(holder, pools, itemIDs)
	})
}

// Redeem converts the accrual of the listed items into spendable credit.
func (n *Node) Redeem(ctx context.Context, holder [20]byte, pools [][20]byte, itemIDs []uint64) (*big.Int, error) {
	var points *big.Int
	err := n.run(ctx, farm.OpRedeem.String(), holder, func() error {
		var err error
		points, err = n.engine.RedeemBatch(holder, pools, itemIDs)
		return err
	})
	return points, err
}

// Claim exchanges credit for reward tokens.
func (n *Node) Claim(ctx context.Context, holder, token [20]byte, amount *big.Int) error {
	return n.run(ctx, farm.OpClaim.String(), holder, func() error {
		return n.engine.Claim(holder, token, amount)
	})
}

// RedeemAndClaim redeems the listed items and claims in one commit.
func (n *Node) RedeemAndClaim(ctx context.Context, holder [20]byte, pools [][20]byte, itemIDs []uint64, token [20]byte, amount *big.Int) (*big.Int, error) {
	var points *big.Int
	err := n.run(ctx, farm.OpRedeemAndClaim.String(), holder, func() error {
		var err error
		points, err = n.engine.RedeemAndClaim(holder, pools, itemIDs, token, amount)
		return err
	})
	return points, err
}

// RecoverRewards returns the unclaimed supply of token to its funder.
func (n *Node) RecoverRewards(ctx context.Context, caller, token [20]byte) (*big.Int, error) {
	var recovered *big.Int
	err := n.run(ctx, farm.OpRecover.String(), caller, func() error {
		var err error
		recovered, err = n.engine.RecoverRewards(caller, token)
		return err
	})
	return recovered, err
}

// bankCall applies a ledger write outside the engine and commits it.
func (n *Node) bankCall(ctx context.Context, operation string, caller [20]byte, fn func() error) error {
	return n.run(ctx, operation, caller, func() error {
		if caller != n.engine.Owner() {
			return farm.ErrUnauthorized
		}
		if err := fn(); err != nil {
			n.manager.Discard()
			return err
		}
		if err := n.manager.Commit(); err != nil {
			n.manager.Discard()
			return err
		}
		return nil
	})
}

// MintItem registers a collateral item owned by owner. Owner only; used to
// seed holders from a bootstrap manifest.
func (n *Node) MintItem(ctx context.Context, caller, collection [20]byte, itemID uint64, owner [20]byte) error {
	return n.bankCall(ctx, "mint_item", caller, func() error {
		return n.bank.MintItem(collection, itemID, owner)
	})
}

// CreditTokens adds reward tokens to an account balance. Owner only.
func (n *Node) CreditTokens(ctx context.Context, caller, token, account [20]byte, amount *big.Int) error {
	return n.bankCall(ctx, "credit", caller, func() error {
		return n.bank.Credit(token, account, amount)
	})
}

// Snapshot reads every holder position at takenAt.
func (n *Node) Snapshot(takenAt time.Time) (*exports.Snapshot, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return exports.BuildSnapshot(n.engine, takenAt)
}

// RefreshMetrics publishes the aggregate gauges.
func (n *Node) RefreshMetrics() error {
	if n.metrics == nil {
		return nil
	}
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	n.metrics.SetPhase(int(n.engine.Phase()))
	supply, err := n.engine.TotalSupply()
	if err != nil {
		return err
	}
	n.metrics.SetSupply(supply)
	total, err := n.engine.Cap()
	if err != nil {
		return err
	}
	remaining, err := n.engine.RemainingCap()
	if err != nil {
		return err
	}
	n.metrics.SetCaps(total, remaining)
	pools, err := n.engine.Pools()
	if err != nil {
		return err
	}
	for _, pool := range pools {
		n.metrics.SetPoolStaked(crypto.FromArray(pool.Collateral).String(), pool.StakedCount)
	}
	rewards, err := n.engine.Rewards()
	if err != nil {
		return err
	}
	for _, reward := range rewards {
		n.metrics.SetRewardRemaining(crypto.FromArray(reward.Token).String(), reward.Remaining)
	}
	return nil
}
