package farm

import (
	"math/big"

	"nftfarm/core/events"
)

// Redeem converts the outstanding accrual of one item into spendable credit.
func (e *Engine) Redeem(holder, pool [20]byte, itemID uint64) (*big.Int, error) {
	return e.RedeemBatch(holder, [][20]byte{pool}, []uint64{itemID})
}

// RedeemBatch redeems every listed item and returns the total credited. An
// item with nothing outstanding fails the whole batch.
func (e *Engine) RedeemBatch(holder [20]byte, pools [][20]byte, itemIDs []uint64) (*big.Int, error) {
	if err := validateBatch(pools, itemIDs); err != nil {
		return nil, err
	}
	var credited *big.Int
	err := e.apply(OpRedeem, func(tx *txn) error {
		var err error
		credited, err = e.redeemItems(tx, holder, pools, itemIDs)
		return err
	})
	if err != nil {
		return nil, err
	}
	return credited, nil
}

func (e *Engine) redeemItems(tx *txn, holder [20]byte, pools [][20]byte, itemIDs []uint64) (*big.Int, error) {
	account, err := e.loadHolder(holder)
	if err != nil {
		return nil, err
	}
	credited := big.NewInt(0)
	for i := range pools {
		pool, itemID := pools[i], itemIDs[i]
		record, err := e.ownedRecord(holder, pool, itemID)
		if err != nil {
			return nil, itemError(pool, itemID, err)
		}
		rate, err := e.poolRate(pool)
		if err != nil {
			return nil, itemError(pool, itemID, err)
		}
		points, err := e.accrued(rate, record.CheckpointAt, tx.now)
		if err != nil {
			return nil, err
		}
		if points.Sign() == 0 {
			return nil, itemError(pool, itemID, ErrNothingToRedeem)
		}
		if account.RedeemedPoints, err = addBounded(account.RedeemedPoints, points); err != nil {
			return nil, err
		}
		record.CheckpointAt = clampCheckpoint(tx.now, e.cfg.LaunchTime, e.cfg.FarmDeadline)
		if err := e.state.FarmStakePut(record); err != nil {
			return nil, err
		}
		credited.Add(credited, points)
		tx.emit(events.FarmRedeem{
			Holder:        holder,
			Pool:          pool,
			ItemID:        itemID,
			Points:        newBigInt(points),
			TotalRedeemed: newBigInt(account.RedeemedPoints),
		})
	}
	if err := e.state.FarmHolderPut(account); err != nil {
		return nil, err
	}
	return credited, nil
}

// Claim exchanges amount × priceInPoints of the holder's unspent credit for
// amount units of token, paid out immediately.
func (e *Engine) Claim(holder, token [20]byte, amount *big.Int) error {
	return e.apply(OpClaim, func(tx *txn) error {
		return e.claimTokens(tx, holder, token, amount)
	})
}

// RedeemAndClaim redeems the listed items and claims amount of token in one
// transaction.
func (e *Engine) RedeemAndClaim(holder [20]byte, pools [][20]byte, itemIDs []uint64, token [20]byte, amount *big.Int) (*big.Int, error) {
	if err := validateBatch(pools, itemIDs); err != nil {
		return nil, err
	}
	var credited *big.Int
	err := e.apply(OpRedeemAndClaim, func(tx *txn) error {
		var err error
		if credited, err = e.redeemItems(tx, holder, pools, itemIDs); err != nil {
			return err
		}
		return e.claimTokens(tx, holder, token, amount)
	})
	if err != nil {
		return nil, err
	}
	return credited, nil
}

func (e *Engine) claimTokens(tx *txn, holder, token [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if e.treasury == nil {
		return ErrTreasuryNotSet
	}
	reward, ok, err := e.state.FarmRewardGet(token)
	if err != nil {
		return err
	}
	if !ok || reward == nil {
		return ErrRewardNotFound
	}
	points, err := mulBounded(amount, reward.PriceInPoints)
	if err != nil {
		return err
	}
	account, err := e.loadHolder(holder)
	if err != nil {
		return err
	}
	if account.UnspentPoints().Cmp(points) < 0 {
		return ErrInsufficientPoints
	}
	reward, err = e.debit(token, amount)
	if err != nil {
		return err
	}
	account.SpentPoints = new(big.Int).Add(account.SpentPoints, points)
	account.addClaim(token, amount)
	if err := e.state.FarmHolderPut(account); err != nil {
		return err
	}
	if err := e.treasury.Pay(token, holder, amount); err != nil {
		return err
	}
	tx.emit(events.FarmRewardClaimed{
		Holder:    holder,
		Token:     token,
		Amount:    new(big.Int).Set(amount),
		Points:    points,
		Remaining: newBigInt(reward.Remaining),
	})
	return nil
}
