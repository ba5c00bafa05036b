package events

import (
	"math/big"

	"nftfarm/core/types"
)

const (
	// TypeFarmPoolAdded is emitted when the owner admits a collateral pool.
	TypeFarmPoolAdded = "farm.pool.added"
	// TypeFarmRewardAdded is emitted when a reward allotment is funded or topped up.
	TypeFarmRewardAdded = "farm.reward.added"
	// TypeFarmStake is emitted for every collateral item taken into custody.
	TypeFarmStake = "farm.stake"
	// TypeFarmUnstake is emitted for every collateral item returned to its holder.
	TypeFarmUnstake = "farm.unstake"
	// TypeFarmRedeem is emitted when an item's accrued points become spendable credit.
	TypeFarmRedeem = "farm.redeem"
	// TypeFarmRewardClaimed is emitted when credit is exchanged for reward tokens.
	TypeFarmRewardClaimed = "farm.reward.claimed"
	// TypeFarmRewardRecovered is emitted when unclaimed supply is returned to its funder.
	TypeFarmRewardRecovered = "farm.reward.recovered"
)

// FarmPoolAdded captures pool admission.
type FarmPoolAdded struct {
	Pool            [20]byte
	Rate            *big.Int
	Capacity        uint64
	ShareWeight     *big.Int
	ShareWeightBase *big.Int
}

// EventType satisfies the Event interface.
func (FarmPoolAdded) EventType() string { return TypeFarmPoolAdded }

// Event converts the structured payload into a broadcastable event.
func (e FarmPoolAdded) Event() *types.Event {
	return &types.Event{Type: TypeFarmPoolAdded, Attributes: map[string]string{
		"pool":            formatAddr(e.Pool),
		"rate":            formatAmount(e.Rate),
		"capacity":        formatUint(e.Capacity),
		"shareWeight":     formatAmount(e.ShareWeight),
		"shareWeightBase": formatAmount(e.ShareWeightBase),
	}}
}

// FarmRewardAdded captures a reward allotment deposit.
type FarmRewardAdded struct {
	Token         [20]byte
	Funder        [20]byte
	Amount        *big.Int
	PriceInPoints *big.Int
	Cap           *big.Int
}

// EventType satisfies the Event interface.
func (FarmRewardAdded) EventType() string { return TypeFarmRewardAdded }

// Event converts the structured payload into a broadcastable event.
func (e FarmRewardAdded) Event() *types.Event {
	return &types.Event{Type: TypeFarmRewardAdded, Attributes: map[string]string{
		"token":         formatAddr(e.Token),
		"funder":        formatAddr(e.Funder),
		"amount":        formatAmount(e.Amount),
		"priceInPoints": formatAmount(e.PriceInPoints),
		"cap":           formatAmount(e.Cap),
	}}
}

// FarmStake captures a single item entering custody.
type FarmStake struct {
	Holder   [20]byte
	Pool     [20]byte
	ItemID   uint64
	StakedAt int64
}

// EventType satisfies the Event interface.
func (FarmStake) EventType() string { return TypeFarmStake }

// Event converts the structured payload into a broadcastable event.
func (e FarmStake) Event() *types.Event {
	return &types.Event{Type: TypeFarmStake, Attributes: map[string]string{
		"holder":   formatAddr(e.Holder),
		"pool":     formatAddr(e.Pool),
		"itemId":   formatUint(e.ItemID),
		"stakedAt": formatInt(e.StakedAt),
	}}
}

// FarmUnstake captures a single item leaving custody. Accrued reports the
// item's lifetime accrual folded into the holder's settled points.
type FarmUnstake struct {
	Holder  [20]byte
	Pool    [20]byte
	ItemID  uint64
	Accrued *big.Int
}

// EventType satisfies the Event interface.
func (FarmUnstake) EventType() string { return TypeFarmUnstake }

// Event converts the structured payload into a broadcastable event.
func (e FarmUnstake) Event() *types.Event {
	return &types.Event{Type: TypeFarmUnstake, Attributes: map[string]string{
		"holder":  formatAddr(e.Holder),
		"pool":    formatAddr(e.Pool),
		"itemId":  formatUint(e.ItemID),
		"accrued": formatAmount(e.Accrued),
	}}
}

// FarmRedeem captures points moved from an item into the holder's credit.
type FarmRedeem struct {
	Holder        [20]byte
	Pool          [20]byte
	ItemID        uint64
	Points        *big.Int
	TotalRedeemed *big.Int
}

// EventType satisfies the Event interface.
func (FarmRedeem) EventType() string { return TypeFarmRedeem }

// Event converts the structured payload into a broadcastable event.
func (e FarmRedeem) Event() *types.Event {
	return &types.Event{Type: TypeFarmRedeem, Attributes: map[string]string{
		"holder":        formatAddr(e.Holder),
		"pool":          formatAddr(e.Pool),
		"itemId":        formatUint(e.ItemID),
		"points":        formatAmount(e.Points),
		"totalRedeemed": formatAmount(e.TotalRedeemed),
	}}
}

// FarmRewardClaimed captures a credit-for-token exchange.
type FarmRewardClaimed struct {
	Holder    [20]byte
	Token     [20]byte
	Amount    *big.Int
	Points    *big.Int
	Remaining *big.Int
}

// EventType satisfies the Event interface.
func (FarmRewardClaimed) EventType() string { return TypeFarmRewardClaimed }

// Event converts the structured payload into a broadcastable event.
func (e FarmRewardClaimed) Event() *types.Event {
	return &types.Event{Type: TypeFarmRewardClaimed, Attributes: map[string]string{
		"holder":    formatAddr(e.Holder),
		"token":     formatAddr(e.Token),
		"amount":    formatAmount(e.Amount),
		"points":    formatAmount(e.Points),
		"remaining": formatAmount(e.Remaining),
	}}
}

// FarmRewardRecovered captures unclaimed supply returned after release.
type FarmRewardRecovered struct {
	Token  [20]byte
	Funder [20]byte
	Amount *big.Int
}

// EventType satisfies the Event interface.
func (FarmRewardRecovered) EventType() string { return TypeFarmRewardRecovered }

// Event converts the structured payload into a broadcastable event.
func (e FarmRewardRecovered) Event() *types.Event {
	return &types.Event{Type: TypeFarmRewardRecovered, Attributes: map[string]string{
		"token":  formatAddr(e.Token),
		"funder": formatAddr(e.Funder),
		"amount": formatAmount(e.Amount),
	}}
}
