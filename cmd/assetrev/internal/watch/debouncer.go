// Package watch rebuilds revisioned assets when producers write new
// outputs into the output root.
package watch

import (
	"slices"
	"sync"
	"time"
)

// MaxPending is the number of pending paths that forces an immediate flush,
// bounding memory while a producer writes many files at once.
const MaxPending = 1000

// Debouncer coalesces bursts of changed paths into one batch. A batch is
// delivered once no new path arrived for the window duration.
type Debouncer struct {
	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
	window  time.Duration
	onFlush func(paths []string)
	stopped bool
}

// NewDebouncer creates a debouncer. onFlush receives each batch sorted and
// is never called concurrently with itself by the timer path.
func NewDebouncer(window time.Duration, onFlush func(paths []string)) *Debouncer {
	return &Debouncer{
		pending: make(map[string]struct{}),
		window:  window,
		onFlush: onFlush,
	}
}

// Add records a changed path and restarts the window.
func (d *Debouncer) Add(p string) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.pending[p] = struct{}{}

	if len(d.pending) >= MaxPending {
		batch := d.takeLocked()
		d.mu.Unlock()
		d.deliver(batch)
		return
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.FlushNow)
	d.mu.Unlock()
}

// FlushNow delivers pending paths immediately.
func (d *Debouncer) FlushNow() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	batch := d.takeLocked()
	d.mu.Unlock()
	d.deliver(batch)
}

// Stop delivers anything pending and ignores later Adds.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	batch := d.takeLocked()
	d.mu.Unlock()
	d.deliver(batch)
}

// PendingCount returns the number of paths waiting to be flushed.
func (d *Debouncer) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// takeLocked stops the timer and drains pending. Caller must hold d.mu.
func (d *Debouncer) takeLocked() []string {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if len(d.pending) == 0 {
		return nil
	}
	batch := make([]string, 0, len(d.pending))
	for p := range d.pending {
		batch = append(batch, p)
	}
	d.pending = make(map[string]struct{})
	slices.Sort(batch)
	return batch
}

func (d *Debouncer) deliver(batch []string) {
	if len(batch) > 0 && d.onFlush != nil {
		d.onFlush(batch)
	}
}
