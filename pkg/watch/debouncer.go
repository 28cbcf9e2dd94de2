// Package watch re-runs a callback when a compilation database file changes on
// disk, collapsing bursts of file-system events.
package watch

import (
	"sync"
	"time"
)

// Debouncer fires once after a quiet period following one or more triggers.
// Fires that nobody has received yet are coalesced into one.
type Debouncer struct {
	interval time.Duration

	mu    sync.Mutex
	timer *time.Timer
	fired chan struct{}
}

// NewDebouncer creates a debouncer with the given quiet interval.
func NewDebouncer(interval time.Duration) *Debouncer {
	return &Debouncer{
		interval: interval,
		fired:    make(chan struct{}, 1),
	}
}

// C returns the channel that receives a value when the quiet period elapses.
func (d *Debouncer) C() <-chan struct{} {
	return d.fired
}

// Trigger (re)starts the quiet period.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = time.AfterFunc(d.interval, d.fire)
}

// Stop cancels a pending fire.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func (d *Debouncer) fire() {
	select {
	case d.fired <- struct{}{}:
	default:
	}
}
