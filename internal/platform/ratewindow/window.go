// Package ratewindow implements a sliding window counter.
package ratewindow

import (
	"sync"
	"time"
)

// Window admits at most limit events in any span of period.
type Window struct {
	mu         sync.Mutex
	limit      int
	period     time.Duration
	timestamps []time.Time
}

func New(limit int, period time.Duration) *Window {
	return &Window{limit: limit, period: period}
}

// Allow records an event at now and reports whether it fits the window.
// Rejected events are not recorded.
func (w *Window) Allow(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.cleanup(now)
	if len(w.timestamps) >= w.limit {
		return false
	}
	w.timestamps = append(w.timestamps, now)
	return true
}

// Count returns the events currently inside the window.
func (w *Window) Count(now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cleanup(now)
	return len(w.timestamps)
}

// cleanup drops timestamps that left the window. Caller holds w.mu.
func (w *Window) cleanup(now time.Time) {
	cutoff := now.Add(-w.period)
	i := 0
	for ; i < len(w.timestamps); i++ {
		if w.timestamps[i].After(cutoff) {
			break
		}
	}
	w.timestamps = w.timestamps[i:]
}
