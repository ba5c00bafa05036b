package farm

import (
	"encoding/hex"
	"math/big"

	"github.com/holiman/uint256"
)

func newBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func isZeroAddress(addr [20]byte) bool {
	var zero [20]byte
	return addr == zero
}

func hexAddr(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

func fits256(v *big.Int) bool {
	if v == nil {
		return true
	}
	if v.Sign() < 0 {
		return false
	}
	_, overflow := uint256.FromBig(v)
	return !overflow
}

func toU256(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return new(uint256.Int), nil
	}
	if v.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	out, overflow := uint256.FromBig(v)
	if overflow {
		return nil, ErrAmountOverflow
	}
	return out, nil
}

// mulBounded multiplies two non-negative values, failing instead of leaving
// the 256-bit range.
func mulBounded(a, b *big.Int) (*big.Int, error) {
	x, err := toU256(a)
	if err != nil {
		return nil, err
	}
	y, err := toU256(b)
	if err != nil {
		return nil, err
	}
	z, overflow := new(uint256.Int).MulOverflow(x, y)
	if overflow {
		return nil, ErrAmountOverflow
	}
	return z.ToBig(), nil
}

// addBounded adds two non-negative values within the 256-bit range.
func addBounded(a, b *big.Int) (*big.Int, error) {
	x, err := toU256(a)
	if err != nil {
		return nil, err
	}
	y, err := toU256(b)
	if err != nil {
		return nil, err
	}
	z, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, ErrAmountOverflow
	}
	return z.ToBig(), nil
}

// accrualWindow returns the seconds of [max(from, launch), min(now, deadline)],
// or zero when the interval is empty.
func accrualWindow(from, now, launch, deadline int64) int64 {
	start := from
	if launch > start {
		start = launch
	}
	end := now
	if deadline < end {
		end = deadline
	}
	if end <= start {
		return 0
	}
	return end - start
}

// clampCheckpoint maps an instant onto the accrual interval so a checkpoint
// never sits before launch or after the deadline.
func clampCheckpoint(now, launch, deadline int64) int64 {
	if now < launch {
		return launch
	}
	if now > deadline {
		return deadline
	}
	return now
}
