// Package debounce coalesces bursts of edits into one settled callback.
package debounce

import (
	"sync"
	"time"
)

// DefaultInterval is the quiescence window used for worklist filter edits.
const DefaultInterval = 200 * time.Millisecond

// Debouncer runs only the most recently scheduled callback, once no further
// Trigger call has arrived for the interval.
type Debouncer struct {
	interval time.Duration
	mu       sync.Mutex
	timer    *time.Timer
	pending  func()
	seq      uint64
	stopped  bool
}

// New returns a Debouncer. A zero interval selects DefaultInterval.
func New(interval time.Duration) *Debouncer {
	if interval == 0 {
		interval = DefaultInterval
	}
	return &Debouncer{interval: interval}
}

// Trigger replaces any pending callback with fn.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.seq++
	seq := d.seq
	if d.timer != nil {
		d.timer.Stop()
	}
	d.pending = fn
	d.timer = time.AfterFunc(d.interval, func() {
		d.mu.Lock()
		// Stop() can lose the race with a timer that already fired.
		if seq != d.seq || d.stopped {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.pending = nil
		d.mu.Unlock()
		fn()
	})
}

// Flush runs the pending callback, if any, immediately on the caller's
// goroutine.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	fn := d.pending
	d.pending = nil
	d.seq++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Stop cancels any pending callback and ignores later Trigger calls.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.seq++
	d.pending = nil
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Interval returns the quiescence window.
func (d *Debouncer) Interval() time.Duration {
	return d.interval
}
