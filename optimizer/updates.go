// ABOUTME: Progress update tracking for running optimizations
// ABOUTME: Non-blocking channel sends with iteration speed calculation

package optimizer

import (
	"sync"
	"time"
)

// Update describes the state of a run after one iteration.
type Update struct {
	Algorithm       string
	Iteration       uint32
	BestRaw         float64
	BestTransformed float64
	Stalls          uint32
	IterPerSec      float64
}

// Tracker forwards updates to a consumer channel without ever blocking the
// optimization loop. A full channel drops the update; the next one carries
// fresher state anyway.
type Tracker struct {
	ch        chan Update
	lastTime  time.Time
	lastIter  uint32
	closeOnce sync.Once
}

// NewTracker builds a tracker with a small buffer.
func NewTracker() *Tracker {
	return &Tracker{
		ch:       make(chan Update, 16),
		lastTime: time.Now(),
	}
}

// Updates returns the consumer side of the tracker.
func (t *Tracker) Updates() <-chan Update { return t.ch }

// Send computes the iteration speed and forwards the update if the
// channel has room.
func (t *Tracker) Send(u Update) {
	now := time.Now()

	elapsed := now.Sub(t.lastTime).Seconds()
	if elapsed > 0 {
		u.IterPerSec = float64(u.Iteration-t.lastIter) / elapsed
	}

	select {
	case t.ch <- u:
		t.lastTime = now
		t.lastIter = u.Iteration
	default:
		// Don't block if channel is full
	}
}

// Close ends the update stream exactly once.
func (t *Tracker) Close() {
	t.closeOnce.Do(func() { close(t.ch) })
}
