package watermark

import (
	"go.uber.org/atomic"
)

// Tracker derives a bounded-lag watermark for one source partition. Observe
// keeps a running maximum of event timestamps; Current subtracts the allowed
// lag and never goes below zero, so the returned value is non-decreasing as
// long as observations only move the maximum forward.
//
// Current is expected to be sampled periodically by the caller rather than
// after every event.
type Tracker struct {
	maxTimestamp *atomic.Int64
	allowedLag   int64
}

func NewTracker(allowedLagMs int64) *Tracker {
	if allowedLagMs < 0 {
		allowedLagMs = 0
	}
	return &Tracker{
		maxTimestamp: atomic.NewInt64(0),
		allowedLag:   allowedLagMs,
	}
}

func (t *Tracker) Observe(eventTimestamp int64) {
	for {
		current := t.maxTimestamp.Load()
		if eventTimestamp <= current {
			return
		}
		if t.maxTimestamp.CompareAndSwap(current, eventTimestamp) {
			return
		}
	}
}

func (t *Tracker) Current() int64 {
	current := t.maxTimestamp.Load() - t.allowedLag
	if current < 0 {
		return 0
	}
	return current
}
