// Package retry holds the backoff policy shared by the reconnecting stream
// and the outbound queue.
package retry

import (
	"math"
	"time"
)

// Policy describes a bounded exponential backoff.
//
// Attempts are 1-based: Delay(1) is the first retry and always equals Base.
type Policy struct {
	Base        time.Duration
	Factor      float64
	Max         time.Duration
	MaxAttempts uint
}

// Default values match the tracking backend's reconnect guidance.
const (
	DefaultBase        = time.Second
	DefaultFactor      = 1.5
	DefaultMax         = 30 * time.Second
	DefaultMaxAttempts = 10
)

// DefaultPolicy returns the reconnect policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		Base:        DefaultBase,
		Factor:      DefaultFactor,
		Max:         DefaultMax,
		MaxAttempts: DefaultMaxAttempts,
	}
}

// Delay returns min(Base × Factor^(attempt-1), Max). Attempts below 1 are
// treated as 1 so the result never drops under the floor.
func (p Policy) Delay(attempt uint) time.Duration {
	p = p.normalized()
	if attempt < 1 {
		attempt = 1
	}
	scaled := float64(p.Base) * math.Pow(p.Factor, float64(attempt-1))
	if math.IsInf(scaled, 0) || scaled >= float64(p.Max) {
		return p.Max
	}
	return time.Duration(scaled)
}

// Exhausted reports whether attempts has used up the budget.
// A zero MaxAttempts means unlimited.
func (p Policy) Exhausted(attempts uint) bool {
	return p.MaxAttempts > 0 && attempts >= p.MaxAttempts
}

// WithMaxAttempts returns a copy of p with a different attempt budget.
func (p Policy) WithMaxAttempts(n uint) Policy {
	p.MaxAttempts = n
	return p
}

func (p Policy) normalized() Policy {
	if p.Base <= 0 {
		p.Base = DefaultBase
	}
	if p.Factor < 1 {
		p.Factor = DefaultFactor
	}
	if p.Max <= 0 {
		p.Max = DefaultMax
	}
	if p.Max < p.Base {
		p.Max = p.Base
	}
	return p
}
