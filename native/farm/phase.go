package farm

// Phase is the lifecycle stage derived from the clock and the three boundaries.
type Phase uint8

const (
	// PhasePreLaunch precedes launchTime: staking is open, nothing accrues.
	PhasePreLaunch Phase = iota
	// PhaseAccruing spans [launchTime, farmDeadline): staked items accrue points.
	PhaseAccruing
	// PhasePostDeadline spans [farmDeadline, releaseTime): accrual is frozen.
	PhasePostDeadline
	// PhaseReleased starts at releaseTime: unclaimed supply may be recovered.
	PhaseReleased
)

func (p Phase) String() string {
	switch p {
	case PhasePreLaunch:
		return "pre-launch"
	case PhaseAccruing:
		return "accruing"
	case PhasePostDeadline:
		return "post-deadline"
	case PhaseReleased:
		return "released"
	default:
		return "unknown"
	}
}

// PhaseAt resolves the phase for the supplied instant.
func PhaseAt(now, launch, deadline, release int64) Phase {
	switch {
	case now < launch:
		return PhasePreLaunch
	case now < deadline:
		return PhaseAccruing
	case now < release:
		return PhasePostDeadline
	default:
		return PhaseReleased
	}
}

// Operation names a mutating farm call for phase gating and instrumentation.
type Operation uint8

const (
	OpAddPool Operation = iota + 1
	OpAddReward
	OpStake
	OpUnstake
	OpRedeem
	OpClaim
	OpRedeemAndClaim
	OpRecover
)

func (op Operation) String() string {
	switch op {
	case OpAddPool:
		return "add_pool"
	case OpAddReward:
		return "add_reward"
	case OpStake:
		return "stake"
	case OpUnstake:
		return "unstake"
	case OpRedeem:
		return "redeem"
	case OpClaim:
		return "claim"
	case OpRedeemAndClaim:
		return "redeem_and_claim"
	case OpRecover:
		return "recover"
	default:
		return "unknown"
	}
}

// Permits reports whether op may run during the phase. Staking is a
// pre-launch commitment; recovery waits for release. Everything else is
// always allowed and relies on its own balance checks.
func (p Phase) Permits(op Operation) error {
	switch op {
	case OpStake:
		if p != PhasePreLaunch {
			return ErrStakeWindowClosed
		}
	case OpRecover:
		if p != PhaseReleased {
			return ErrNotReleased
		}
	}
	return nil
}
