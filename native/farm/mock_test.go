package farm

import (
	"bytes"
	"errors"
	"math/big"
	"sort"
)

type snapshot struct {
	pools   map[[20]byte]*Pool
	rewards map[[20]byte]*RewardAllotment
	stakes  map[ItemRef]*StakeRecord
	holders map[[20]byte]*HolderAccount
	totals  *Totals
}

func newSnapshot() *snapshot {
	return &snapshot{
		pools:   make(map[[20]byte]*Pool),
		rewards: make(map[[20]byte]*RewardAllotment),
		stakes:  make(map[ItemRef]*StakeRecord),
		holders: make(map[[20]byte]*HolderAccount),
	}
}

func (s *snapshot) clone() *snapshot {
	out := newSnapshot()
	for k, v := range s.pools {
		out.pools[k] = v.Clone()
	}
	for k, v := range s.rewards {
		out.rewards[k] = v.Clone()
	}
	for k, v := range s.stakes {
		out.stakes[k] = v.Clone()
	}
	for k, v := range s.holders {
		out.holders[k] = v.Clone()
	}
	out.totals = s.totals.Clone()
	return out
}

// mockState keeps a committed snapshot and a copy-on-write pending one.
type mockState struct {
	committed *snapshot
	pending   *snapshot
	commitErr error
	commits   int
	discards  int
}

func newMockState() *mockState {
	return &mockState{committed: newSnapshot()}
}

func (m *mockState) read() *snapshot {
	if m.pending != nil {
		return m.pending
	}
	return m.committed
}

func (m *mockState) write() *snapshot {
	if m.pending == nil {
		m.pending = m.committed.clone()
	}
	return m.pending
}

func sortedKeys(keys [][20]byte) [][20]byte {
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i][:], keys[j][:]) < 0 })
	return keys
}

func (m *mockState) FarmPoolGet(collateral [20]byte) (*Pool, bool, error) {
	pool, ok := m.read().pools[collateral]
	if !ok {
		return nil, false, nil
	}
	return pool.Clone(), true, nil
}

func (m *mockState) FarmPoolPut(pool *Pool) error {
	m.write().pools[pool.Collateral] = pool.Clone()
	return nil
}

func (m *mockState) FarmPoolIDs() ([][20]byte, error) {
	keys := make([][20]byte, 0)
	for k := range m.read().pools {
		keys = append(keys, k)
	}
	return sortedKeys(keys), nil
}

func (m *mockState) FarmRewardGet(token [20]byte) (*RewardAllotment, bool, error) {
	reward, ok := m.read().rewards[token]
	if !ok {
		return nil, false, nil
	}
	return reward.Clone(), true, nil
}

func (m *mockState) FarmRewardPut(reward *RewardAllotment) error {
	m.write().rewards[reward.Token] = reward.Clone()
	return nil
}

func (m *mockState) FarmRewardIDs() ([][20]byte, error) {
	keys := make([][20]byte, 0)
	for k := range m.read().rewards {
		keys = append(keys, k)
	}
	return sortedKeys(keys), nil
}

func (m *mockState) FarmStakeGet(pool [20]byte, itemID uint64) (*StakeRecord, bool, error) {
	record, ok := m.read().stakes[ItemRef{Pool: pool, ItemID: itemID}]
	if !ok {
		return nil, false, nil
	}
	return record.Clone(), true, nil
}

func (m *mockState) FarmStakePut(record *StakeRecord) error {
	m.write().stakes[record.Ref()] = record.Clone()
	return nil
}

func (m *mockState) FarmStakeDelete(pool [20]byte, itemID uint64) error {
	delete(m.write().stakes, ItemRef{Pool: pool, ItemID: itemID})
	return nil
}

func (m *mockState) FarmHolderGet(addr [20]byte) (*HolderAccount, bool, error) {
	account, ok := m.read().holders[addr]
	if !ok {
		return nil, false, nil
	}
	return account.Clone(), true, nil
}

func (m *mockState) FarmHolderPut(account *HolderAccount) error {
	m.write().holders[account.Address] = account.Clone()
	return nil
}

func (m *mockState) FarmHolderIDs() ([][20]byte, error) {
	keys := make([][20]byte, 0)
	for k := range m.read().holders {
		keys = append(keys, k)
	}
	return sortedKeys(keys), nil
}

func (m *mockState) FarmTotalsGet() (*Totals, error) {
	return m.read().totals.Clone(), nil
}

func (m *mockState) FarmTotalsPut(totals *Totals) error {
	m.write().totals = totals.Clone()
	return nil
}

func (m *mockState) Commit() error {
	if m.commitErr != nil {
		return m.commitErr
	}
	if m.pending != nil {
		m.committed = m.pending
		m.pending = nil
	}
	m.commits++
	return nil
}

func (m *mockState) Discard() {
	m.pending = nil
	m.discards++
}

var errTransferFailed = errors.New("transfer failed")

// mockCustody tracks which holder deposited each item.
type mockCustody struct {
	held map[ItemRef][20]byte
	fail bool
}

func newMockCustody() *mockCustody {
	return &mockCustody{held: make(map[ItemRef][20]byte)}
}

func (c *mockCustody) Deposit(holder [20]byte, items []ItemRef) error {
	if c.fail {
		return errTransferFailed
	}
	for _, item := range items {
		c.held[item] = holder
	}
	return nil
}

func (c *mockCustody) Withdraw(holder [20]byte, items []ItemRef) error {
	if c.fail {
		return errTransferFailed
	}
	for _, item := range items {
		if c.held[item] != holder {
			return errTransferFailed
		}
	}
	for _, item := range items {
		delete(c.held, item)
	}
	return nil
}

type tokenKey struct {
	token   [20]byte
	account [20]byte
}

// mockTreasury keeps token balances for funders and holders plus the farm's
// own holdings per token.
type mockTreasury struct {
	balances map[tokenKey]*big.Int
	held     map[[20]byte]*big.Int
	failPay  bool
}

func newMockTreasury() *mockTreasury {
	return &mockTreasury{balances: make(map[tokenKey]*big.Int), held: make(map[[20]byte]*big.Int)}
}

func (t *mockTreasury) balance(token, account [20]byte) *big.Int {
	return newBigInt(t.balances[tokenKey{token, account}])
}

func (t *mockTreasury) holding(token [20]byte) *big.Int {
	return newBigInt(t.held[token])
}

func (t *mockTreasury) mint(token, account [20]byte, amount *big.Int) {
	key := tokenKey{token, account}
	t.balances[key] = new(big.Int).Add(newBigInt(t.balances[key]), amount)
}

func (t *mockTreasury) Receive(token, from [20]byte, amount *big.Int) error {
	key := tokenKey{token, from}
	bal := newBigInt(t.balances[key])
	if bal.Cmp(amount) < 0 {
		return errTransferFailed
	}
	t.balances[key] = bal.Sub(bal, amount)
	t.held[token] = new(big.Int).Add(newBigInt(t.held[token]), amount)
	return nil
}

func (t *mockTreasury) Pay(token, to [20]byte, amount *big.Int) error {
	if t.failPay {
		return errTransferFailed
	}
	held := newBigInt(t.held[token])
	if held.Cmp(amount) < 0 {
		return errTransferFailed
	}
	t.held[token] = held.Sub(held, amount)
	t.mint(token, to, amount)
	return nil
}
