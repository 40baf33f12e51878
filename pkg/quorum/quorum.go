// Package quorum decides whether a set of votes satisfies an account's
// approval threshold.
package quorum

// Decision is the outcome of evaluating votes against a threshold
type Decision int

const (
	StillPending Decision = iota
	Approved
	Rejected
)

func (d Decision) String() string {
	switch d {
	case Approved:
		return "approved"
	case Rejected:
		return "rejected"
	default:
		return "still_pending"
	}
}

// UnknownUniverse marks a signer set whose size the caller does not know.
// Without it no amount of rejections can prove the threshold unreachable.
const UnknownUniverse = 0

// Evaluate applies the threshold-gated approval rule. A minority of
// rejections never vetoes; rejection is only decided once the signers that
// have not rejected can no longer reach the threshold.
func Evaluate(approvals, rejections, threshold, universe uint64) Decision {
	if threshold == 0 {
		threshold = 1
	}

	if approvals >= threshold {
		return Approved
	}

	if universe == UnknownUniverse {
		return StillPending
	}

	// Votes counted beyond the universe means the universe is stale, stay conservative
	if approvals+rejections > universe {
		return StillPending
	}

	reachable := universe - rejections
	if reachable < threshold {
		return Rejected
	}
	return StillPending
}
