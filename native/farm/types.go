package farm

import (
	"bytes"
	"math/big"
)

// Pool is the rate and capacity configuration for one collateral collection.
type Pool struct {
	Collateral      [20]byte `json:"collateral"`
	Rate            *big.Int `json:"rate"`
	Capacity        uint64   `json:"capacity"`
	ShareWeight     *big.Int `json:"shareWeight"`
	ShareWeightBase *big.Int `json:"shareWeightBase"`
	StakedCount     uint64   `json:"stakedCount"`
	AddedAt         int64    `json:"addedAt"`
}

// NewPool validates the admission parameters and returns an empty pool.
func NewPool(collateral [20]byte, rate *big.Int, capacity uint64, shareWeight, shareWeightBase *big.Int) (*Pool, error) {
	if isZeroAddress(collateral) {
		return nil, ErrInvalidPool
	}
	if rate == nil || rate.Sign() <= 0 || capacity == 0 {
		return nil, ErrInvalidPool
	}
	if shareWeight == nil || shareWeight.Sign() < 0 {
		return nil, ErrInvalidPool
	}
	if shareWeightBase == nil || shareWeightBase.Sign() <= 0 {
		return nil, ErrInvalidPool
	}
	if !fits256(rate) || !fits256(shareWeight) || !fits256(shareWeightBase) {
		return nil, ErrAmountOverflow
	}
	return &Pool{
		Collateral:      collateral,
		Rate:            new(big.Int).Set(rate),
		Capacity:        capacity,
		ShareWeight:     new(big.Int).Set(shareWeight),
		ShareWeightBase: new(big.Int).Set(shareWeightBase),
	}, nil
}

// Share returns weight/base, the pool's claim on the share ceiling.
func (p *Pool) Share() *big.Rat {
	if p == nil || p.ShareWeightBase == nil || p.ShareWeightBase.Sign() == 0 {
		return new(big.Rat)
	}
	return new(big.Rat).SetFrac(newBigInt(p.ShareWeight), p.ShareWeightBase)
}

// Available returns the number of items that can still be staked.
func (p *Pool) Available() uint64 {
	if p == nil || p.StakedCount >= p.Capacity {
		return 0
	}
	return p.Capacity - p.StakedCount
}

// Clone returns a deep copy of the pool.
func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Rate = newBigInt(p.Rate)
	clone.ShareWeight = newBigInt(p.ShareWeight)
	clone.ShareWeightBase = newBigInt(p.ShareWeightBase)
	return &clone
}

// RewardAllotment tracks the funded supply of one reward token.
type RewardAllotment struct {
	Token         [20]byte `json:"token"`
	Funder        [20]byte `json:"funder"`
	PriceInPoints *big.Int `json:"priceInPoints"`
	TotalFunded   *big.Int `json:"totalFunded"`
	Remaining     *big.Int `json:"remaining"`
	PaidOut       *big.Int `json:"paidOut"`
	Recovered     *big.Int `json:"recovered"`
}

// NewRewardAllotment returns an unfunded allotment priced in points per unit.
func NewRewardAllotment(token, funder [20]byte, priceInPoints *big.Int) (*RewardAllotment, error) {
	if isZeroAddress(token) || isZeroAddress(funder) {
		return nil, ErrInvalidReward
	}
	if priceInPoints == nil || priceInPoints.Sign() <= 0 {
		return nil, ErrInvalidReward
	}
	if !fits256(priceInPoints) {
		return nil, ErrAmountOverflow
	}
	return &RewardAllotment{
		Token:         token,
		Funder:        funder,
		PriceInPoints: new(big.Int).Set(priceInPoints),
		TotalFunded:   big.NewInt(0),
		Remaining:     big.NewInt(0),
		PaidOut:       big.NewInt(0),
		Recovered:     big.NewInt(0),
	}, nil
}

// Conserved reports whether Remaining + PaidOut + Recovered == TotalFunded.
func (r *RewardAllotment) Conserved() bool {
	if r == nil {
		return false
	}
	sum := new(big.Int).Add(newBigInt(r.Remaining), newBigInt(r.PaidOut))
	sum.Add(sum, newBigInt(r.Recovered))
	return sum.Cmp(newBigInt(r.TotalFunded)) == 0
}

// Clone returns a deep copy of the allotment.
func (r *RewardAllotment) Clone() *RewardAllotment {
	if r == nil {
		return nil
	}
	clone := *r
	clone.PriceInPoints = newBigInt(r.PriceInPoints)
	clone.TotalFunded = newBigInt(r.TotalFunded)
	clone.Remaining = newBigInt(r.Remaining)
	clone.PaidOut = newBigInt(r.PaidOut)
	clone.Recovered = newBigInt(r.Recovered)
	return &clone
}

// ItemRef identifies one collateral item.
type ItemRef struct {
	Pool   [20]byte `json:"pool"`
	ItemID uint64   `json:"itemId"`
}

func (r ItemRef) less(o ItemRef) bool {
	if c := bytes.Compare(r.Pool[:], o.Pool[:]); c != 0 {
		return c < 0
	}
	return r.ItemID < o.ItemID
}

// StakeRecord is the custody record of one staked item. CheckpointAt marks the
// instant up to which the item's accrual has already been redeemed.
type StakeRecord struct {
	Pool         [20]byte `json:"pool"`
	ItemID       uint64   `json:"itemId"`
	Owner        [20]byte `json:"owner"`
	StakedAt     int64    `json:"stakedAt"`
	CheckpointAt int64    `json:"checkpointAt"`
}

// Ref returns the item reference of the record.
func (s *StakeRecord) Ref() ItemRef {
	return ItemRef{Pool: s.Pool, ItemID: s.ItemID}
}

// Clone returns a copy of the record.
func (s *StakeRecord) Clone() *StakeRecord {
	if s == nil {
		return nil
	}
	clone := *s
	return &clone
}

// TokenClaim is the cumulative amount of one token paid out to a holder.
type TokenClaim struct {
	Token  [20]byte `json:"token"`
	Amount *big.Int `json:"amount"`
}

// HolderAccount aggregates a holder's stake weight and point balances.
type HolderAccount struct {
	Address        [20]byte     `json:"address"`
	StakedWeight   uint64       `json:"stakedWeight"`
	SettledPoints  *big.Int     `json:"settledPoints"`
	RedeemedPoints *big.Int     `json:"redeemedPoints"`
	SpentPoints    *big.Int     `json:"spentPoints"`
	Items          []ItemRef    `json:"items"`
	Claims         []TokenClaim `json:"claims"`
}

func newHolderAccount(addr [20]byte) *HolderAccount {
	return &HolderAccount{
		Address:        addr,
		SettledPoints:  big.NewInt(0),
		RedeemedPoints: big.NewInt(0),
		SpentPoints:    big.NewInt(0),
	}
}

// UnspentPoints returns the redeemed credit not yet exchanged for tokens.
func (h *HolderAccount) UnspentPoints() *big.Int {
	if h == nil {
		return big.NewInt(0)
	}
	out := new(big.Int).Sub(newBigInt(h.RedeemedPoints), newBigInt(h.SpentPoints))
	if out.Sign() < 0 {
		return big.NewInt(0)
	}
	return out
}

// Claimed returns the cumulative amount of token paid out to the holder.
func (h *HolderAccount) Claimed(token [20]byte) *big.Int {
	if h == nil {
		return big.NewInt(0)
	}
	for _, c := range h.Claims {
		if c.Token == token {
			return newBigInt(c.Amount)
		}
	}
	return big.NewInt(0)
}

func (h *HolderAccount) addClaim(token [20]byte, amount *big.Int) {
	for i := range h.Claims {
		if h.Claims[i].Token == token {
			h.Claims[i].Amount = new(big.Int).Add(newBigInt(h.Claims[i].Amount), amount)
			return
		}
	}
	h.Claims = append(h.Claims, TokenClaim{Token: token, Amount: new(big.Int).Set(amount)})
}

func (h *HolderAccount) addItem(ref ItemRef) {
	h.Items = append(h.Items, ref)
	h.StakedWeight++
}

func (h *HolderAccount) removeItem(ref ItemRef) {
	for i, item := range h.Items {
		if item == ref {
			h.Items = append(h.Items[:i], h.Items[i+1:]...)
			if h.StakedWeight > 0 {
				h.StakedWeight--
			}
			return
		}
	}
}

// Clone returns a deep copy of the account.
func (h *HolderAccount) Clone() *HolderAccount {
	if h == nil {
		return nil
	}
	clone := *h
	clone.SettledPoints = newBigInt(h.SettledPoints)
	clone.RedeemedPoints = newBigInt(h.RedeemedPoints)
	clone.SpentPoints = newBigInt(h.SpentPoints)
	clone.Items = append([]ItemRef(nil), h.Items...)
	clone.Claims = make([]TokenClaim, len(h.Claims))
	for i, c := range h.Claims {
		clone.Claims[i] = TokenClaim{Token: c.Token, Amount: newBigInt(c.Amount)}
	}
	return &clone
}

// Totals holds the farm-wide aggregates. The share total is kept as a reduced
// fraction ShareNum/ShareDen.
type Totals struct {
	ShareNum    *big.Int `json:"shareNum"`
	ShareDen    *big.Int `json:"shareDen"`
	Cap         *big.Int `json:"cap"`
	TotalSupply uint64   `json:"totalSupply"`
}

func newTotals() *Totals {
	return &Totals{ShareNum: big.NewInt(0), ShareDen: big.NewInt(1), Cap: big.NewInt(0)}
}

// ShareTotal returns the summed pool shares.
func (t *Totals) ShareTotal() *big.Rat {
	if t == nil || t.ShareDen == nil || t.ShareDen.Sign() == 0 {
		return new(big.Rat)
	}
	return new(big.Rat).SetFrac(newBigInt(t.ShareNum), t.ShareDen)
}

func (t *Totals) setShareTotal(share *big.Rat) {
	t.ShareNum = new(big.Int).Set(share.Num())
	t.ShareDen = new(big.Int).Set(share.Denom())
}

// Clone returns a deep copy of the totals.
func (t *Totals) Clone() *Totals {
	if t == nil {
		return nil
	}
	clone := *t
	clone.ShareNum = newBigInt(t.ShareNum)
	clone.ShareDen = newBigInt(t.ShareDen)
	clone.Cap = newBigInt(t.Cap)
	return &clone
}
