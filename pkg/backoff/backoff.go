package backoff

import "time"

// Join backoff constants.
const (
	// BaseUnit is the delay added per consecutive failed join.
	BaseUnit = 1 * time.Minute

	// Cap is the longest delay between join attempts.
	Cap = 3 * time.Minute
)

// JoinDelay returns the sleep duration after a failed join, given the number
// of consecutive failures that preceded it.
func JoinDelay(streak uint32) time.Duration {
	return DefaultPolicy().Delay(streak)
}

// Policy is a linear-then-capped join backoff.
// The zero value behaves like DefaultPolicy.
type Policy struct {
	// Base is the per-failure increment.
	Base time.Duration

	// Cap bounds the returned delay.
	Cap time.Duration
}

// DefaultPolicy returns the standard one minute / three minute policy.
func DefaultPolicy() Policy {
	return Policy{Base: BaseUnit, Cap: Cap}
}

// Delay returns min((streak+1)*Base, Cap).
func (p Policy) Delay(streak uint32) time.Duration {
	base, limit := p.Base, p.Cap
	if base <= 0 {
		base = BaseUnit
	}
	if limit <= 0 {
		limit = Cap
	}
	if limit < base {
		return limit
	}

	// Compare in steps to avoid overflowing the multiplication.
	steps := uint64(streak) + 1
	if steps > uint64(limit/base) {
		return limit
	}
	d := time.Duration(steps) * base
	if d > limit {
		return limit
	}
	return d
}

// Sequence returns the first n delays of the policy, starting at streak 0.
func (p Policy) Sequence(n int) []time.Duration {
	if n <= 0 {
		return nil
	}
	out := make([]time.Duration, n)
	for i := range out {
		out[i] = p.Delay(uint32(i))
	}
	return out
}
