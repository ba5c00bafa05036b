package farm

import (
	"math/big"

	"nftfarm/core/events"
)

// AddTokenReward funds or tops up the allotment for token. The funder's
// deposit is pulled through the treasury inside the same transaction, so a
// failed transfer leaves the vault untouched.
func (e *Engine) AddTokenReward(caller [20]byte, amount, priceInPoints *big.Int, token, funder [20]byte) (*RewardAllotment, error) {
	var funded *RewardAllotment
	err := e.apply(OpAddReward, func(tx *txn) error {
		if err := e.requireOwner(caller); err != nil {
			return err
		}
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
			reward, err = NewRewardAllotment(token, funder, priceInPoints)
			if err != nil {
				return err
			}
		} else if priceInPoints == nil || reward.PriceInPoints.Cmp(priceInPoints) != 0 {
			return ErrPriceMismatch
		} else if reward.Funder != funder {
			return ErrFunderMismatch
		}
		value, err := mulBounded(amount, reward.PriceInPoints)
		if err != nil {
			return err
		}
		if reward.TotalFunded, err = addBounded(reward.TotalFunded, amount); err != nil {
			return err
		}
		if reward.Remaining, err = addBounded(reward.Remaining, amount); err != nil {
			return err
		}
		totals, err := e.loadTotals()
		if err != nil {
			return err
		}
		if totals.Cap, err = addBounded(totals.Cap, value); err != nil {
			return err
		}
		if err := e.state.FarmRewardPut(reward); err != nil {
			return err
		}
		if err := e.state.FarmTotalsPut(totals); err != nil {
			return err
		}
		if err := e.treasury.Receive(token, funder, amount); err != nil {
			return err
		}
		tx.emit(events.FarmRewardAdded{
			Token:         token,
			Funder:        funder,
			Amount:        new(big.Int).Set(amount),
			PriceInPoints: newBigInt(reward.PriceInPoints),
			Cap:           newBigInt(totals.Cap),
		})
		funded = reward.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return funded, nil
}

// debit removes amount tokens from the allotment's remaining supply.
func (e *Engine) debit(token [20]byte, amount *big.Int) (*RewardAllotment, error) {
	reward, ok, err := e.state.FarmRewardGet(token)
	if err != nil {
		return nil, err
	}
	if !ok || reward == nil {
		return nil, ErrRewardNotFound
	}
	if amount.Cmp(newBigInt(reward.Remaining)) > 0 {
		return nil, ErrInsufficientVaultSupply
	}
	reward.Remaining = new(big.Int).Sub(reward.Remaining, amount)
	reward.PaidOut = new(big.Int).Add(newBigInt(reward.PaidOut), amount)
	if err := e.state.FarmRewardPut(reward); err != nil {
		return nil, err
	}
	return reward, nil
}

// RemainingCap returns Σ remaining × priceInPoints, the point value still
// redeemable against the vault.
func (e *Engine) RemainingCap() (*big.Int, error) {
	rewards, err := e.Rewards()
	if err != nil {
		return nil, err
	}
	total := big.NewInt(0)
	for _, reward := range rewards {
		value := new(big.Int).Mul(newBigInt(reward.Remaining), newBigInt(reward.PriceInPoints))
		total.Add(total, value)
	}
	return total, nil
}

// RecoverRewards returns the unclaimed supply of token to its funder once the
// release time has passed.
func (e *Engine) RecoverRewards(caller, token [20]byte) (*big.Int, error) {
	var recovered *big.Int
	err := e.apply(OpRecover, func(tx *txn) error {
		if err := e.requireOwner(caller); err != nil {
			return err
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
		amount := newBigInt(reward.Remaining)
		if amount.Sign() == 0 {
			return ErrNothingToRecover
		}
		reward.Remaining = big.NewInt(0)
		reward.Recovered = new(big.Int).Add(newBigInt(reward.Recovered), amount)
		if err := e.state.FarmRewardPut(reward); err != nil {
			return err
		}
		if err := e.treasury.Pay(token, reward.Funder, amount); err != nil {
			return err
		}
		tx.emit(events.FarmRewardRecovered{Token: token, Funder: reward.Funder, Amount: new(big.Int).Set(amount)})
		recovered = amount
		return nil
	})
	if err != nil {
		return nil, err
	}
	return recovered, nil
}
