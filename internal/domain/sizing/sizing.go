// Package sizing computes retry-with-reduction schedules for
// constrained host resources such as hugepages. The calculator is pure
// so the policy can be tested without touching kernel interfaces.
package sizing

import "errors"

// Grade classifies the final allocation of a constrained resource.
type Grade string

const (
	// GradeSuccess means the allocation met or exceeded the target.
	GradeSuccess Grade = "success"
	// GradeDegraded means the allocation is below target but at or
	// above the documented minimum.
	GradeDegraded Grade = "degraded"
	// GradeInsufficient means the allocation fell below the minimum.
	GradeInsufficient Grade = "insufficient"
)

// Policy holds the reduction parameters for one resource. The exact
// step sizes vary between deployments, so they are configuration, not
// constants.
type Policy struct {
	// Factor divides the requested amount on each reduction. Must be
	// greater than 1; the conventional value is 2 (halving).
	Factor int64
	// Floor is the smallest amount a reduction may request.
	Floor int64
	// Minimum is the absolute minimum acceptable allocation. At or
	// below Floor; allocations under it are fatal.
	Minimum int64
	// MaxReductions bounds the number of reduction attempts after the
	// initial request.
	MaxReductions int
}

// Errors for policy validation.
var (
	ErrBadFactor  = errors.New("sizing: reduction factor must be greater than 1")
	ErrBadFloor   = errors.New("sizing: floor must be positive")
	ErrBadMinimum = errors.New("sizing: minimum must be positive and not exceed floor")
)

// Validate checks the policy parameters.
func (p Policy) Validate() error {
	if p.Factor <= 1 {
		return ErrBadFactor
	}
	if p.Floor <= 0 {
		return ErrBadFloor
	}
	if p.Minimum <= 0 || p.Minimum > p.Floor {
		return ErrBadMinimum
	}
	return nil
}

// NextAttempt computes the next amount to request after an attempt at
// `requested` yielded only `observed`. The next request is requested /
// Factor, floored at Policy.Floor. ok is false when the schedule is
// exhausted: the reduction would drop below the floor, or the previous
// request was already at the floor.
func (p Policy) NextAttempt(requested, observed int64) (next int64, ok bool) {
	if observed >= requested {
		return requested, false // nothing to reduce, attempt succeeded
	}
	if requested <= p.Floor {
		return requested, false
	}
	next = requested / p.Factor
	if next < p.Floor {
		next = p.Floor
	}
	return next, true
}

// Schedule returns the full descending sequence of request amounts
// starting from target, assuming every attempt falls short. Useful for
// reporting and tests; the sequence strictly decreases and never goes
// below the floor.
func (p Policy) Schedule(target int64) []int64 {
	amounts := []int64{target}
	requested := target
	for i := 0; i < p.MaxReductions; i++ {
		next, ok := p.NextAttempt(requested, 0)
		if !ok || next == requested {
			break
		}
		amounts = append(amounts, next)
		requested = next
	}
	return amounts
}

// Classify grades a final allocation against the target and the
// policy's minimum.
func (p Policy) Classify(allocated, target int64) Grade {
	switch {
	case allocated >= target:
		return GradeSuccess
	case allocated >= p.Minimum:
		return GradeDegraded
	default:
		return GradeInsufficient
	}
}
