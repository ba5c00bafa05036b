package events

import (
	"math/big"
	"strconv"

	"nftfarm/crypto"
)

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func formatAddr(addr [20]byte) string {
	return crypto.FromArray(addr).String()
}

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func formatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}
