// Package retry decides when a failed generation or webhook ping may be
// attempted again. Strategies are stateless and safe for concurrent use.
package retry

import (
	"time"

	"pdfbot/internal/models"
)

// Strategy computes the delay that must elapse after attempt n (1-indexed)
// before the next attempt is allowed.
type Strategy interface {
	Delay(job *models.Job, attempt int) time.Duration
}

// StrategyFunc adapts a function to a Strategy.
type StrategyFunc func(job *models.Job, attempt int) time.Duration

func (f StrategyFunc) Delay(job *models.Job, attempt int) time.Duration {
	return f(job, attempt)
}

// DecaySchedule returns Schedule[attempt-1], and 0 once attempts run past
// the end of the schedule.
type DecaySchedule []time.Duration

func (s DecaySchedule) Delay(_ *models.Job, attempt int) time.Duration {
	if attempt < 1 || attempt > len(s) {
		return 0
	}
	return s[attempt-1]
}

// DefaultSchedule is 1m, 3m, 10m, 30m, 1h.
func DefaultSchedule() DecaySchedule {
	return DecaySchedule{
		1 * time.Minute,
		3 * time.Minute,
		10 * time.Minute,
		30 * time.Minute,
		1 * time.Hour,
	}
}

// DefaultMaxTries is the ceiling used for both generations and pings.
const DefaultMaxTries = 5

// Policy pairs a strategy with an attempt ceiling. The two are independent:
// a ceiling above the schedule length retries immediately once the
// schedule is exhausted, until the ceiling is reached.
type Policy struct {
	Strategy Strategy
	MaxTries int
}

// DefaultPolicy returns the default schedule with DefaultMaxTries.
func DefaultPolicy() Policy {
	return Policy{Strategy: DefaultSchedule(), MaxTries: DefaultMaxTries}
}

// Eligible reports whether a job whose prior attempts happened at the given
// times may be attempted at now.
func (p Policy) Eligible(job *models.Job, attempts []time.Time, now time.Time) bool {
	k := len(attempts)
	if k == 0 {
		return true
	}
	if p.Exhausted(k) {
		return false
	}
	strategy := p.Strategy
	if strategy == nil {
		strategy = DefaultSchedule()
	}
	return now.Sub(attempts[k-1]) >= strategy.Delay(job, k)
}

// Exhausted reports whether attempts have reached the ceiling.
func (p Policy) Exhausted(attempts int) bool {
	return attempts >= p.MaxTries
}

// OutlivesSchedule reports whether MaxTries exceeds the number of scheduled
// delays, meaning the tail attempts are retried without waiting.
func (p Policy) OutlivesSchedule() bool {
	s, ok := p.Strategy.(DecaySchedule)
	return ok && p.MaxTries > len(s)+1
}
