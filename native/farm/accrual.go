package farm

import (
	"math/big"
)

// accrued returns rate × seconds of [max(from, launch), min(now, deadline)].
func (e *Engine) accrued(rate *big.Int, from, now int64) (*big.Int, error) {
	window := accrualWindow(from, now, e.cfg.LaunchTime, e.cfg.FarmDeadline)
	if window == 0 {
		return big.NewInt(0), nil
	}
	return mulBounded(rate, big.NewInt(window))
}

// pendingAt sums the settled points of the holder and the lifetime accrual of
// every item still staked.
func (e *Engine) pendingAt(account *HolderAccount, now int64) (*big.Int, error) {
	total := newBigInt(account.SettledPoints)
	for _, ref := range account.Items {
		record, ok, err := e.state.FarmStakeGet(ref.Pool, ref.ItemID)
		if err != nil {
			return nil, err
		}
		if !ok || record == nil {
			continue
		}
		rate, err := e.poolRate(ref.Pool)
		if err != nil {
			return nil, err
		}
		points, err := e.accrued(rate, record.StakedAt, now)
		if err != nil {
			return nil, err
		}
		if total, err = addBounded(total, points); err != nil {
			return nil, err
		}
	}
	return total, nil
}

// outstandingAt clamps pending minus redeemed at zero.
func outstandingAt(account *HolderAccount, pending *big.Int) *big.Int {
	out := new(big.Int).Sub(pending, newBigInt(account.RedeemedPoints))
	if out.Sign() < 0 {
		return big.NewInt(0)
	}
	return out
}

// PendingPoints returns every point the holder has ever accrued, redeemed or
// not, evaluated at the current instant.
func (e *Engine) PendingPoints(holder [20]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	account, err := e.loadHolder(holder)
	if err != nil {
		return nil, err
	}
	return e.pendingAt(account, e.now())
}

// UserRewards returns the accrued points the holder has not redeemed yet.
func (e *Engine) UserRewards(holder [20]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	account, err := e.loadHolder(holder)
	if err != nil {
		return nil, err
	}
	pending, err := e.pendingAt(account, e.now())
	if err != nil {
		return nil, err
	}
	return outstandingAt(account, pending), nil
}

// ItemPoints returns the points an active item would yield if redeemed now.
func (e *Engine) ItemPoints(pool [20]byte, itemID uint64) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	record, ok, err := e.state.FarmStakeGet(pool, itemID)
	if err != nil {
		return nil, err
	}
	if !ok || record == nil {
		return nil, ErrNoActiveStake
	}
	rate, err := e.poolRate(pool)
	if err != nil {
		return nil, err
	}
	return e.accrued(rate, record.CheckpointAt, e.now())
}

// ItemPosition is one staked item evaluated at a HolderPosition's instant.
type ItemPosition struct {
	Record      *StakeRecord
	Outstanding *big.Int
}

// HolderPosition is a holder's account with every accrual figure computed
// at the same instant.
type HolderPosition struct {
	At          int64
	Account     *HolderAccount
	Pending     *big.Int
	Outstanding *big.Int
	Items       []ItemPosition
}

// PositionAt evaluates the holder at a single instant so the pending,
// outstanding and per-item figures agree with each other.
func (e *Engine) PositionAt(holder [20]byte, at int64) (*HolderPosition, error) {
	account, err := e.Holder(holder)
	if err != nil {
		return nil, err
	}
	pending, err := e.pendingAt(account, at)
	if err != nil {
		return nil, err
	}
	pos := &HolderPosition{
		At:          at,
		Account:     account,
		Pending:     pending,
		Outstanding: outstandingAt(account, pending),
		Items:       make([]ItemPosition, 0, len(account.Items)),
	}
	for _, ref := range account.Items {
		record, ok, err := e.state.FarmStakeGet(ref.Pool, ref.ItemID)
		if err != nil {
			return nil, err
		}
		if !ok || record == nil {
			continue
		}
		rate, err := e.poolRate(ref.Pool)
		if err != nil {
			return nil, err
		}
		points, err := e.accrued(rate, record.CheckpointAt, at)
		if err != nil {
			return nil, err
		}
		pos.Items = append(pos.Items, ItemPosition{Record: record.Clone(), Outstanding: points})
	}
	return pos, nil
}
