package service

import "time"

// RetryPolicy is pure configuration; per-message retry state lives in the
// outbox row (retry_count, retry_at).
type RetryPolicy struct {
	MaxRetries int
	Backoff    []time.Duration
}

// ShouldRetry reports whether a message that already failed prevCount times
// gets another attempt. MaxRetries bounds the clamped tail of the schedule:
// the full schedule is always walked once, then the last delay repeats until
// prevCount exceeds MaxRetries.
func (p RetryPolicy) ShouldRetry(prevCount int) bool {
	return prevCount <= p.MaxRetries
}

// NextDelay returns the backoff before retry number newCount (1-based),
// clamped to the last schedule entry.
func (p RetryPolicy) NextDelay(newCount int) time.Duration {
	if len(p.Backoff) == 0 {
		return time.Minute
	}
	idx := newCount - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(p.Backoff) {
		idx = len(p.Backoff) - 1
	}
	return p.Backoff[idx]
}
