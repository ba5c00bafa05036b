package farm

import "errors"

var (
	ErrNilState                = errors.New("farm: state not configured")
	ErrUnauthorized            = errors.New("farm: unauthorized")
	ErrInvalidTimeWindow       = errors.New("farm: launch < deadline < release required")
	ErrInvalidOwner            = errors.New("farm: owner required")
	ErrInvalidCeiling          = errors.New("farm: share ceiling must be positive")
	ErrInvalidPool             = errors.New("farm: invalid pool")
	ErrDuplicatePool           = errors.New("farm: pool already registered")
	ErrPoolNotFound            = errors.New("farm: pool not found")
	ErrShareCapExceeded        = errors.New("farm: share ceiling exceeded")
	ErrPoolCapacityExceeded    = errors.New("farm: pool capacity exceeded")
	ErrInvalidReward           = errors.New("farm: invalid reward allotment")
	ErrRewardNotFound          = errors.New("farm: reward token not registered")
	ErrPriceMismatch           = errors.New("farm: top-up price differs from allotment price")
	ErrFunderMismatch          = errors.New("farm: top-up funder differs from allotment funder")
	ErrInvalidAmount           = errors.New("farm: amount must be positive")
	ErrAmountOverflow          = errors.New("farm: amount exceeds 256 bits")
	ErrStakeWindowClosed       = errors.New("farm: staking closed after launch")
	ErrAlreadyStaked           = errors.New("farm: item already staked")
	ErrNoActiveStake           = errors.New("farm: no active stake for item")
	ErrNotOwner                = errors.New("farm: caller does not own stake")
	ErrNothingToRedeem         = errors.New("farm: nothing to redeem")
	ErrInsufficientPoints      = errors.New("farm: insufficient redeemed points")
	ErrInsufficientVaultSupply = errors.New("farm: insufficient vault supply")
	ErrNotReleased             = errors.New("farm: release time not reached")
	ErrNothingToRecover        = errors.New("farm: nothing to recover")
	ErrBatchMismatch           = errors.New("farm: pools and item ids differ in length")
	ErrEmptyBatch              = errors.New("farm: empty batch")
	ErrCustodyNotSet           = errors.New("farm: custody not configured")
	ErrTreasuryNotSet          = errors.New("farm: treasury not configured")
)
