package farm

import "math/big"

// ModuleName identifies the farm in pause toggles and metrics.
const ModuleName = "farm"

// DefaultShareCeiling is the ceiling on the summed pool shares, expressed in
// the same units as shareWeight/shareWeightBase (percentage points).
var DefaultShareCeiling = big.NewRat(100, 1)

// Config carries the construction parameters of a farm.
type Config struct {
	Owner        [20]byte
	LaunchTime   int64
	FarmDeadline int64
	ReleaseTime  int64
	// ShareCeiling bounds the summed pool shares. Nil selects DefaultShareCeiling.
	ShareCeiling *big.Rat
}

// Validate checks the owner and the ordering of the three time boundaries.
func (c Config) Validate() error {
	if isZeroAddress(c.Owner) {
		return ErrInvalidOwner
	}
	if !(c.LaunchTime < c.FarmDeadline && c.FarmDeadline < c.ReleaseTime) {
		return ErrInvalidTimeWindow
	}
	if c.ShareCeiling != nil && c.ShareCeiling.Sign() <= 0 {
		return ErrInvalidCeiling
	}
	return nil
}

func (c Config) ceiling() *big.Rat {
	if c.ShareCeiling == nil {
		return new(big.Rat).Set(DefaultShareCeiling)
	}
	return new(big.Rat).Set(c.ShareCeiling)
}
