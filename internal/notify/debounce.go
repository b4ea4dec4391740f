package notify

import (
	"sync"
	"time"
)

// DebounceDelay is the settle time of query subscriptions.
const DebounceDelay = 20 * time.Millisecond

// Debouncer runs fn once activity settles: every Trigger restarts the
// delay, and fn runs when no Trigger arrived for a full delay. Runs of fn
// never overlap.
type Debouncer struct {
	delay time.Duration
	fn    func()

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool

	run sync.Mutex
}

// NewDebouncer creates an idle Debouncer.
func NewDebouncer(delay time.Duration, fn func()) *Debouncer {
	return &Debouncer{delay: delay, fn: fn}
}

// Trigger (re)starts the delay.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.fire)
}

func (d *Debouncer) fire() {
	d.run.Lock()
	defer d.run.Unlock()

	d.mu.Lock()
	stopped := d.stopped
	d.mu.Unlock()
	if stopped {
		return
	}
	d.fn()
}

// Stop cancels any pending run. Trigger after Stop does nothing. A run
// already in progress is not waited for; see Wait.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
}

// Wait blocks until a run in progress, if any, has returned.
func (d *Debouncer) Wait() {
	d.run.Lock()
	defer d.run.Unlock()
}
