package bank

import (
	"errors"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"nftfarm/native/farm"
)

var (
	ErrNotItemOwner        = errors.New("bank: item not owned by sender")
	ErrItemExists          = errors.New("bank: item already minted")
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
	ErrInvalidAmount       = errors.New("bank: amount must be positive")
)

var (
	itemOwnerPrefix    = []byte("bank/item/")
	tokenBalancePrefix = []byte("bank/balance/")
)

// FarmAccount is the identity holding items and tokens in farm custody.
var FarmAccount = func() [20]byte {
	var out [20]byte
	copy(out[:], ethcrypto.Keccak256([]byte("nftfarm/custody"))[12:])
	return out
}()

// store is the subset of the state manager used by the ledger.
type store interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
}

// Ledger records collateral item ownership and reward token balances. It
// writes through the same state as the farm so custody moves commit or roll
// back together with the farm's own records.
type Ledger struct {
	state   store
	account [20]byte
}

// NewLedger binds a ledger to the supplied state using FarmAccount as the
// custody identity.
func NewLedger(state store) *Ledger {
	return &Ledger{state: state, account: FarmAccount}
}

// Account returns the custody identity.
func (l *Ledger) Account() [20]byte { return l.account }

func itemOwnerKey(pool [20]byte, itemID uint64) []byte {
	key := append(append([]byte(nil), itemOwnerPrefix...), pool[:]...)
	return append(key, []byte(fmt.Sprintf("/%d", itemID))...)
}

func tokenBalanceKey(token, addr [20]byte) []byte {
	key := append(append([]byte(nil), tokenBalancePrefix...), token[:]...)
	key = append(key, '/')
	return append(key, addr[:]...)
}

// OwnerOf returns the current owner of an item.
func (l *Ledger) OwnerOf(pool [20]byte, itemID uint64) ([20]byte, bool, error) {
	var owner [20]byte
	ok, err := l.state.KVGet(itemOwnerKey(pool, itemID), &owner)
	return owner, ok, err
}

// MintItem registers a new collateral item owned by owner.
func (l *Ledger) MintItem(pool [20]byte, itemID uint64, owner [20]byte) error {
	_, exists, err := l.OwnerOf(pool, itemID)
	if err != nil {
		return err
	}
	if exists {
		return ErrItemExists
	}
	return l.state.KVPut(itemOwnerKey(pool, itemID), owner)
}

func (l *Ledger) moveItems(from, to [20]byte, items []farm.ItemRef) error {
	for _, item := range items {
		owner, ok, err := l.OwnerOf(item.Pool, item.ItemID)
		if err != nil {
			return err
		}
		if !ok || owner != from {
			return fmt.Errorf("%w: %x#%d", ErrNotItemOwner, item.Pool, item.ItemID)
		}
		if err := l.state.KVPut(itemOwnerKey(item.Pool, item.ItemID), to); err != nil {
			return err
		}
	}
	return nil
}

// Deposit moves items from holder into custody.
func (l *Ledger) Deposit(holder [20]byte, items []farm.ItemRef) error {
	return l.moveItems(holder, l.account, items)
}

// Withdraw returns items from custody to holder.
func (l *Ledger) Withdraw(holder [20]byte, items []farm.ItemRef) error {
	return l.moveItems(l.account, holder, items)
}

// BalanceOf returns the token balance of addr.
func (l *Ledger) BalanceOf(token, addr [20]byte) (*big.Int, error) {
	balance := new(big.Int)
	ok, err := l.state.KVGet(tokenBalanceKey(token, addr), balance)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return balance, nil
}

func (l *Ledger) setBalance(token, addr [20]byte, amount *big.Int) error {
	if amount.Sign() == 0 {
		return l.state.KVDelete(tokenBalanceKey(token, addr))
	}
	return l.state.KVPut(tokenBalanceKey(token, addr), amount)
}

// Credit mints amount of token to addr.
func (l *Ledger) Credit(token, addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	balance, err := l.BalanceOf(token, addr)
	if err != nil {
		return err
	}
	return l.setBalance(token, addr, balance.Add(balance, amount))
}

func (l *Ledger) transfer(token, from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	balance, err := l.BalanceOf(token, from)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	if err := l.setBalance(token, from, balance.Sub(balance, amount)); err != nil {
		return err
	}
	return l.Credit(token, to, amount)
}

// Receive pulls amount of token from a funder into custody.
func (l *Ledger) Receive(token, from [20]byte, amount *big.Int) error {
	return l.transfer(token, from, l.account, amount)
}

// Pay sends amount of token from custody to addr.
func (l *Ledger) Pay(token, to [20]byte, amount *big.Int) error {
	return l.transfer(token, l.account, to, amount)
}
