package farm

import (
	"math/big"

	"nftfarm/core/events"
)

// Stake takes custody of one collateral item on behalf of holder.
func (e *Engine) Stake(holder, pool [20]byte, itemID uint64) error {
	return e.StakeBatch(holder, [][20]byte{pool}, []uint64{itemID})
}

// StakeBatch takes custody of every listed item. Any failing item aborts the
// whole batch.
func (e *Engine) StakeBatch(holder [20]byte, pools [][20]byte, itemIDs []uint64) error {
	if err := validateBatch(pools, itemIDs); err != nil {
		return err
	}
	return e.apply(OpStake, func(tx *txn) error {
		if isZeroAddress(holder) {
			return ErrUnauthorized
		}
		if e.custody == nil {
			return ErrCustodyNotSet
		}
		account, err := e.loadHolder(holder)
		if err != nil {
			return err
		}
		totals, err := e.loadTotals()
		if err != nil {
			return err
		}
		refs := make([]ItemRef, 0, len(pools))
		for i := range pools {
			pool, itemID := pools[i], itemIDs[i]
			_, staked, err := e.state.FarmStakeGet(pool, itemID)
			if err != nil {
				return err
			}
			if staked {
				return itemError(pool, itemID, ErrAlreadyStaked)
			}
			if _, err := e.recordStake(pool, 1); err != nil {
				return itemError(pool, itemID, err)
			}
			record := &StakeRecord{
				Pool:         pool,
				ItemID:       itemID,
				Owner:        holder,
				StakedAt:     tx.now,
				CheckpointAt: tx.now,
			}
			if err := e.state.FarmStakePut(record); err != nil {
				return err
			}
			account.addItem(record.Ref())
			totals.TotalSupply++
			refs = append(refs, record.Ref())
			tx.emit(events.FarmStake{Holder: holder, Pool: pool, ItemID: itemID, StakedAt: tx.now})
		}
		if err := e.state.FarmHolderPut(account); err != nil {
			return err
		}
		if err := e.state.FarmTotalsPut(totals); err != nil {
			return err
		}
		return e.custody.Deposit(holder, refs)
	})
}

// Unstake returns one collateral item to its owner. Outstanding accrual on
// the item is redeemed first so no earned points are lost.
func (e *Engine) Unstake(holder, pool [20]byte, itemID uint64) error {
	return e.UnstakeBatch(holder, [][20]byte{pool}, []uint64{itemID})
}

// UnstakeBatch returns every listed item to its owner atomically.
func (e *Engine) UnstakeBatch(holder [20]byte, pools [][20]byte, itemIDs []uint64) error {
	if err := validateBatch(pools, itemIDs); err != nil {
		return err
	}
	return e.apply(OpUnstake, func(tx *txn) error {
		if e.custody == nil {
			return ErrCustodyNotSet
		}
		account, err := e.loadHolder(holder)
		if err != nil {
			return err
		}
		totals, err := e.loadTotals()
		if err != nil {
			return err
		}
		refs := make([]ItemRef, 0, len(pools))
		for i := range pools {
			pool, itemID := pools[i], itemIDs[i]
			record, err := e.ownedRecord(holder, pool, itemID)
			if err != nil {
				return itemError(pool, itemID, err)
			}
			rate, err := e.poolRate(pool)
			if err != nil {
				return itemError(pool, itemID, err)
			}
			lifetime, err := e.accrued(rate, record.StakedAt, tx.now)
			if err != nil {
				return err
			}
			outstanding, err := e.accrued(rate, record.CheckpointAt, tx.now)
			if err != nil {
				return err
			}
			if outstanding.Sign() > 0 {
				if account.RedeemedPoints, err = addBounded(account.RedeemedPoints, outstanding); err != nil {
					return err
				}
				tx.emit(events.FarmRedeem{
					Holder:        holder,
					Pool:          pool,
					ItemID:        itemID,
					Points:        newBigInt(outstanding),
					TotalRedeemed: newBigInt(account.RedeemedPoints),
				})
			}
			if account.SettledPoints, err = addBounded(account.SettledPoints, lifetime); err != nil {
				return err
			}
			if err := e.state.FarmStakeDelete(pool, itemID); err != nil {
				return err
			}
			if _, err := e.recordUnstake(pool, 1); err != nil {
				return err
			}
			account.removeItem(record.Ref())
			if totals.TotalSupply > 0 {
				totals.TotalSupply--
			}
			refs = append(refs, record.Ref())
			tx.emit(events.FarmUnstake{Holder: holder, Pool: pool, ItemID: itemID, Accrued: newBigInt(lifetime)})
		}
		if err := e.state.FarmHolderPut(account); err != nil {
			return err
		}
		if err := e.state.FarmTotalsPut(totals); err != nil {
			return err
		}
		return e.custody.Withdraw(holder, refs)
	})
}

// ownedRecord loads the active record of an item and checks its owner.
func (e *Engine) ownedRecord(holder, pool [20]byte, itemID uint64) (*StakeRecord, error) {
	record, ok, err := e.state.FarmStakeGet(pool, itemID)
	if err != nil {
		return nil, err
	}
	if !ok || record == nil {
		return nil, ErrNoActiveStake
	}
	if record.Owner != holder {
		return nil, ErrNotOwner
	}
	return record, nil
}

func (e *Engine) poolRate(collateral [20]byte) (*big.Int, error) {
	pool, ok, err := e.state.FarmPoolGet(collateral)
	if err != nil {
		return nil, err
	}
	if !ok || pool == nil {
		return nil, ErrPoolNotFound
	}
	return newBigInt(pool.Rate), nil
}
