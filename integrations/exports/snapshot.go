package exports

import (
	"fmt"
	"math/big"
	"time"

	"nftfarm/crypto"
	"nftfarm/native/farm"
)

// Source is the read surface of the farm needed to build a snapshot.
type Source interface {
	Phase() farm.Phase
	TotalSupply() (uint64, error)
	Holders() ([][20]byte, error)
	Now() int64
	PositionAt(addr [20]byte, at int64) (*farm.HolderPosition, error)
}

// HolderRow is one holder's position at snapshot time.
type HolderRow struct {
	Address      string
	StakedWeight uint64
	Pending      *big.Int
	Outstanding  *big.Int
	Redeemed     *big.Int
	Spent        *big.Int
	Unspent      *big.Int
}

// Snapshot is a point-in-time view of every holder.
type Snapshot struct {
	TakenAt     time.Time
	Phase       string
	TotalSupply uint64
	Rows        []HolderRow
}

// BuildSnapshot reads every holder from src. All rows are evaluated at the
// same farm instant.
func BuildSnapshot(src Source, takenAt time.Time) (*Snapshot, error) {
	if src == nil {
		return nil, fmt.Errorf("exports: nil source")
	}
	supply, err := src.TotalSupply()
	if err != nil {
		return nil, fmt.Errorf("exports: total supply: %w", err)
	}
	holders, err := src.Holders()
	if err != nil {
		return nil, fmt.Errorf("exports: list holders: %w", err)
	}
	snap := &Snapshot{
		TakenAt:     takenAt.UTC(),
		Phase:       src.Phase().String(),
		TotalSupply: supply,
		Rows:        make([]HolderRow, 0, len(holders)),
	}
	at := src.Now()
	for _, addr := range holders {
		pos, err := src.PositionAt(addr, at)
		if err != nil {
			return nil, fmt.Errorf("exports: holder %x: %w", addr, err)
		}
		account := pos.Account
		snap.Rows = append(snap.Rows, HolderRow{
			Address:      crypto.FromArray(addr).String(),
			StakedWeight: account.StakedWeight,
			Pending:      pos.Pending,
			Outstanding:  pos.Outstanding,
			Redeemed:     account.RedeemedPoints,
			Spent:        account.SpentPoints,
			Unspent:      account.UnspentPoints(),
		})
	}
	return snap, nil
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
