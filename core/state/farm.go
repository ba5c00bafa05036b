package state

import (
	"bytes"
	"fmt"
	"math/big"
	"sort"

	"github.com/holiman/uint256"

	"nftfarm/native/farm"
)

var (
	farmPoolPrefix    = []byte("farm/pool/")
	farmRewardPrefix  = []byte("farm/reward/")
	farmStakePrefix   = []byte("farm/stake/")
	farmHolderPrefix  = []byte("farm/holder/")
	farmPoolIndexKey  = []byte("farm/index/pools")
	farmRewardIndex   = []byte("farm/index/rewards")
	farmHolderIndex   = []byte("farm/index/holders")
	farmTotalsKeyByte = []byte("farm/totals")
)

func farmPoolKey(collateral [20]byte) []byte {
	return append(append([]byte(nil), farmPoolPrefix...), collateral[:]...)
}

func farmRewardKey(token [20]byte) []byte {
	return append(append([]byte(nil), farmRewardPrefix...), token[:]...)
}

func farmStakeKey(pool [20]byte, itemID uint64) []byte {
	key := append(append([]byte(nil), farmStakePrefix...), pool[:]...)
	return append(key, []byte(fmt.Sprintf("/%d", itemID))...)
}

func farmHolderKey(addr [20]byte) []byte {
	return append(append([]byte(nil), farmHolderPrefix...), addr[:]...)
}

type storedFarmPool struct {
	Collateral      [20]byte
	Rate            *big.Int
	Capacity        uint64
	ShareWeight     *big.Int
	ShareWeightBase *big.Int
	StakedCount     uint64
	AddedAt         uint64
}

type storedFarmReward struct {
	Token         [20]byte
	Funder        [20]byte
	PriceInPoints *big.Int
	TotalFunded   *big.Int
	Remaining     *big.Int
	PaidOut       *big.Int
	Recovered     *big.Int
}

type storedFarmStake struct {
	Pool         [20]byte
	ItemID       uint64
	Owner        [20]byte
	StakedAt     uint64
	CheckpointAt uint64
}

type storedFarmItem struct {
	Pool   [20]byte
	ItemID uint64
}

type storedFarmClaim struct {
	Token  [20]byte
	Amount *big.Int
}

type storedFarmHolder struct {
	Address        [20]byte
	StakedWeight   uint64
	SettledPoints  *big.Int
	RedeemedPoints *big.Int
	SpentPoints    *big.Int
	Items          []storedFarmItem
	Claims         []storedFarmClaim
}

type storedFarmTotals struct {
	ShareNum    *big.Int
	ShareDen    *big.Int
	Cap         *big.Int
	TotalSupply uint64
}

// storedAmount normalises nil to zero and rejects values that do not fit an
// unsigned 256-bit word.
func storedAmount(v *big.Int) (*big.Int, error) {
	if v == nil {
		return big.NewInt(0), nil
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("farm: negative amount %s", v)
	}
	if _, overflow := uint256.FromBig(v); overflow {
		return nil, fmt.Errorf("farm: amount %s exceeds 256 bits", v)
	}
	return new(big.Int).Set(v), nil
}

func storedAmounts(values ...**big.Int) error {
	for _, v := range values {
		normalized, err := storedAmount(*v)
		if err != nil {
			return err
		}
		*v = normalized
	}
	return nil
}

func storedTime(ts int64) (uint64, error) {
	if ts < 0 {
		return 0, fmt.Errorf("farm: negative timestamp %d", ts)
	}
	return uint64(ts), nil
}

func (m *Manager) farmIndex(key []byte) ([][20]byte, error) {
	var raw [][]byte
	if err := m.KVGetList(key, &raw); err != nil {
		return nil, err
	}
	out := make([][20]byte, 0, len(raw))
	for _, entry := range raw {
		if len(entry) != 20 {
			return nil, fmt.Errorf("farm: malformed index entry %x", entry)
		}
		var id [20]byte
		copy(id[:], entry)
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out, nil
}

// FarmPoolGet loads a pool by collateral address. A missing pool returns
// (nil, false, nil).
func (m *Manager) FarmPoolGet(collateral [20]byte) (*farm.Pool, bool, error) {
	if m == nil {
		return nil, false, fmt.Errorf("farm: state manager not initialised")
	}
	var stored storedFarmPool
	ok, err := m.KVGet(farmPoolKey(collateral), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &farm.Pool{
		Collateral:      stored.Collateral,
		Rate:            stored.Rate,
		Capacity:        stored.Capacity,
		ShareWeight:     stored.ShareWeight,
		ShareWeightBase: stored.ShareWeightBase,
		StakedCount:     stored.StakedCount,
		AddedAt:         int64(stored.AddedAt),
	}, true, nil
}

// FarmPoolPut persists the pool and records it in the pool index.
func (m *Manager) FarmPoolPut(pool *farm.Pool) error {
	if m == nil {
		return fmt.Errorf("farm: state manager not initialised")
	}
	if pool == nil {
		return fmt.Errorf("farm: pool required")
	}
	stored := &storedFarmPool{
		Collateral:      pool.Collateral,
		Rate:            pool.Rate,
		Capacity:        pool.Capacity,
		ShareWeight:     pool.ShareWeight,
		ShareWeightBase: pool.ShareWeightBase,
		StakedCount:     pool.StakedCount,
	}
	if err := storedAmounts(&stored.Rate, &stored.ShareWeight, &stored.ShareWeightBase); err != nil {
		return err
	}
	addedAt, err := storedTime(pool.AddedAt)
	if err != nil {
		return err
	}
	stored.AddedAt = addedAt
	if err := m.KVPut(farmPoolKey(pool.Collateral), stored); err != nil {
		return err
	}
	return m.KVAppend(farmPoolIndexKey, pool.Collateral[:])
}

// FarmPoolIDs lists every admitted pool in ascending address order.
func (m *Manager) FarmPoolIDs() ([][20]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("farm: state manager not initialised")
	}
	return m.farmIndex(farmPoolIndexKey)
}

// FarmRewardGet loads a reward allotment by token address.
func (m *Manager) FarmRewardGet(token [20]byte) (*farm.RewardAllotment, bool, error) {
	if m == nil {
		return nil, false, fmt.Errorf("farm: state manager not initialised")
	}
	var stored storedFarmReward
	ok, err := m.KVGet(farmRewardKey(token), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &farm.RewardAllotment{
		Token:         stored.Token,
		Funder:        stored.Funder,
		PriceInPoints: stored.PriceInPoints,
		TotalFunded:   stored.TotalFunded,
		Remaining:     stored.Remaining,
		PaidOut:       stored.PaidOut,
		Recovered:     stored.Recovered,
	}, true, nil
}

// FarmRewardPut persists the allotment and records it in the reward index.
func (m *Manager) FarmRewardPut(reward *farm.RewardAllotment) error {
	if m == nil {
		return fmt.Errorf("farm: state manager not initialised")
	}
	if reward == nil {
		return fmt.Errorf("farm: reward required")
	}
	stored := &storedFarmReward{
		Token:         reward.Token,
		Funder:        reward.Funder,
		PriceInPoints: reward.PriceInPoints,
		TotalFunded:   reward.TotalFunded,
		Remaining:     reward.Remaining,
		PaidOut:       reward.PaidOut,
		Recovered:     reward.Recovered,
	}
	if err := storedAmounts(&stored.PriceInPoints, &stored.TotalFunded, &stored.Remaining, &stored.PaidOut, &stored.Recovered); err != nil {
		return err
	}
	if err := m.KVPut(farmRewardKey(reward.Token), stored); err != nil {
		return err
	}
	return m.KVAppend(farmRewardIndex, reward.Token[:])
}

// FarmRewardIDs lists every funded token in ascending address order.
func (m *Manager) FarmRewardIDs() ([][20]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("farm: state manager not initialised")
	}
	return m.farmIndex(farmRewardIndex)
}

// FarmStakeGet loads the active record of an item.
func (m *Manager) FarmStakeGet(pool [20]byte, itemID uint64) (*farm.StakeRecord, bool, error) {
	if m == nil {
		return nil, false, fmt.Errorf("farm: state manager not initialised")
	}
	var stored storedFarmStake
	ok, err := m.KVGet(farmStakeKey(pool, itemID), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &farm.StakeRecord{
		Pool:         stored.Pool,
		ItemID:       stored.ItemID,
		Owner:        stored.Owner,
		StakedAt:     int64(stored.StakedAt),
		CheckpointAt: int64(stored.CheckpointAt),
	}, true, nil
}

// FarmStakePut persists a stake record.
func (m *Manager) FarmStakePut(record *farm.StakeRecord) error {
	if m == nil {
		return fmt.Errorf("farm: state manager not initialised")
	}
	if record == nil {
		return fmt.Errorf("farm: stake record required")
	}
	stakedAt, err := storedTime(record.StakedAt)
	if err != nil {
		return err
	}
	checkpoint, err := storedTime(record.CheckpointAt)
	if err != nil {
		return err
	}
	return m.KVPut(farmStakeKey(record.Pool, record.ItemID), &storedFarmStake{
		Pool:         record.Pool,
		ItemID:       record.ItemID,
		Owner:        record.Owner,
		StakedAt:     stakedAt,
		CheckpointAt: checkpoint,
	})
}

// FarmStakeDelete removes the record of an item leaving custody.
func (m *Manager) FarmStakeDelete(pool [20]byte, itemID uint64) error {
	if m == nil {
		return fmt.Errorf("farm: state manager not initialised")
	}
	return m.KVDelete(farmStakeKey(pool, itemID))
}

// FarmHolderGet loads a holder account.
func (m *Manager) FarmHolderGet(addr [20]byte) (*farm.HolderAccount, bool, error) {
	if m == nil {
		return nil, false, fmt.Errorf("farm: state manager not initialised")
	}
	var stored storedFarmHolder
	ok, err := m.KVGet(farmHolderKey(addr), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	account := &farm.HolderAccount{
		Address:        stored.Address,
		StakedWeight:   stored.StakedWeight,
		SettledPoints:  stored.SettledPoints,
		RedeemedPoints: stored.RedeemedPoints,
		SpentPoints:    stored.SpentPoints,
		Items:          make([]farm.ItemRef, 0, len(stored.Items)),
		Claims:         make([]farm.TokenClaim, 0, len(stored.Claims)),
	}
	for _, item := range stored.Items {
		account.Items = append(account.Items, farm.ItemRef{Pool: item.Pool, ItemID: item.ItemID})
	}
	for _, claim := range stored.Claims {
		account.Claims = append(account.Claims, farm.TokenClaim{Token: claim.Token, Amount: claim.Amount})
	}
	return account, true, nil
}

// FarmHolderPut persists a holder account and records it in the holder index.
func (m *Manager) FarmHolderPut(account *farm.HolderAccount) error {
	if m == nil {
		return fmt.Errorf("farm: state manager not initialised")
	}
	if account == nil {
		return fmt.Errorf("farm: holder account required")
	}
	stored := &storedFarmHolder{
		Address:        account.Address,
		StakedWeight:   account.StakedWeight,
		SettledPoints:  account.SettledPoints,
		RedeemedPoints: account.RedeemedPoints,
		SpentPoints:    account.SpentPoints,
		Items:          make([]storedFarmItem, 0, len(account.Items)),
		Claims:         make([]storedFarmClaim, 0, len(account.Claims)),
	}
	if err := storedAmounts(&stored.SettledPoints, &stored.RedeemedPoints, &stored.SpentPoints); err != nil {
		return err
	}
	for _, item := range account.Items {
		stored.Items = append(stored.Items, storedFarmItem{Pool: item.Pool, ItemID: item.ItemID})
	}
	for _, claim := range account.Claims {
		amount, err := storedAmount(claim.Amount)
		if err != nil {
			return err
		}
		stored.Claims = append(stored.Claims, storedFarmClaim{Token: claim.Token, Amount: amount})
	}
	if err := m.KVPut(farmHolderKey(account.Address), stored); err != nil {
		return err
	}
	return m.KVAppend(farmHolderIndex, account.Address[:])
}

// FarmHolderIDs lists every holder that has interacted with the farm.
func (m *Manager) FarmHolderIDs() ([][20]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("farm: state manager not initialised")
	}
	return m.farmIndex(farmHolderIndex)
}

// FarmTotalsGet loads the farm-wide aggregates. Missing totals return nil.
func (m *Manager) FarmTotalsGet() (*farm.Totals, error) {
	if m == nil {
		return nil, fmt.Errorf("farm: state manager not initialised")
	}
	var stored storedFarmTotals
	ok, err := m.KVGet(farmTotalsKeyByte, &stored)
	if err != nil || !ok {
		return nil, err
	}
	return &farm.Totals{
		ShareNum:    stored.ShareNum,
		ShareDen:    stored.ShareDen,
		Cap:         stored.Cap,
		TotalSupply: stored.TotalSupply,
	}, nil
}

// FarmTotalsPut persists the farm-wide aggregates.
func (m *Manager) FarmTotalsPut(totals *farm.Totals) error {
	if m == nil {
		return fmt.Errorf("farm: state manager not initialised")
	}
	if totals == nil {
		return fmt.Errorf("farm: totals required")
	}
	stored := &storedFarmTotals{
		ShareNum:    totals.ShareNum,
		ShareDen:    totals.ShareDen,
		Cap:         totals.Cap,
		TotalSupply: totals.TotalSupply,
	}
	if err := storedAmounts(&stored.ShareNum, &stored.ShareDen, &stored.Cap); err != nil {
		return err
	}
	return m.KVPut(farmTotalsKeyByte, stored)
}
