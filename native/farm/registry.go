package farm

import (
	"math/big"

	"nftfarm/core/events"
)

// AddPool admits a collateral collection. The running share total including
// the candidate must stay within the ceiling, and each collection can only be
// admitted once.
func (e *Engine) AddPool(caller, collateral [20]byte, rate *big.Int, capacity uint64, shareWeight, shareWeightBase *big.Int) (*Pool, error) {
	var admitted *Pool
	err := e.apply(OpAddPool, func(tx *txn) error {
		if err := e.requireOwner(caller); err != nil {
			return err
		}
		pool, err := NewPool(collateral, rate, capacity, shareWeight, shareWeightBase)
		if err != nil {
			return err
		}
		totals, err := e.loadTotals()
		if err != nil {
			return err
		}
		next := new(big.Rat).Add(totals.ShareTotal(), pool.Share())
		if next.Cmp(e.ceiling) > 0 {
			return ErrShareCapExceeded
		}
		_, exists, err := e.state.FarmPoolGet(collateral)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicatePool
		}
		pool.AddedAt = tx.now
		if err := e.state.FarmPoolPut(pool); err != nil {
			return err
		}
		totals.setShareTotal(next)
		if err := e.state.FarmTotalsPut(totals); err != nil {
			return err
		}
		tx.emit(events.FarmPoolAdded{
			Pool:            pool.Collateral,
			Rate:            newBigInt(pool.Rate),
			Capacity:        pool.Capacity,
			ShareWeight:     newBigInt(pool.ShareWeight),
			ShareWeightBase: newBigInt(pool.ShareWeightBase),
		})
		admitted = pool.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return admitted, nil
}

// recordStake reserves n slots of pool capacity.
func (e *Engine) recordStake(collateral [20]byte, n uint64) (*Pool, error) {
	pool, ok, err := e.state.FarmPoolGet(collateral)
	if err != nil {
		return nil, err
	}
	if !ok || pool == nil {
		return nil, ErrPoolNotFound
	}
	if n > pool.Available() {
		return nil, ErrPoolCapacityExceeded
	}
	pool.StakedCount += n
	if err := e.state.FarmPoolPut(pool); err != nil {
		return nil, err
	}
	return pool, nil
}

// recordUnstake releases n slots of pool capacity.
func (e *Engine) recordUnstake(collateral [20]byte, n uint64) (*Pool, error) {
	pool, ok, err := e.state.FarmPoolGet(collateral)
	if err != nil {
		return nil, err
	}
	if !ok || pool == nil {
		return nil, ErrPoolNotFound
	}
	if n > pool.StakedCount {
		pool.StakedCount = 0
	} else {
		pool.StakedCount -= n
	}
	if err := e.state.FarmPoolPut(pool); err != nil {
		return nil, err
	}
	return pool, nil
}
