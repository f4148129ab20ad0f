// Package maintenance turns maintenance button edges into a single flag the
// alarm loop consumes at its own poll point.
//
// The edge reader never touches alarm state, storage or the network. It
// queues a no-argument signal; a worker goroutine debounces the queue and
// sets the flag. The flag is the only datum shared with the alarm loop.
package maintenance

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/nerrad567/doorguard-core/internal/hardware"
)

const (
	// edgeWait bounds each WaitForPress call so the reader notices cancellation.
	edgeWait = 100 * time.Millisecond

	// queueSize is the edge queue depth. Edges beyond it are dropped.
	queueSize = 4
)

// Flag is a one-shot atomic signal.
type Flag struct {
	v atomic.Bool
}

// Signal sets the flag. Safe from any goroutine.
func (f *Flag) Signal() {
	f.v.Store(true)
}

// Consume reports whether the flag was set and clears it.
func (f *Flag) Consume() bool {
	return f.v.Swap(false)
}

// Watcher feeds button presses into a Flag.
type Watcher struct {
	button   hardware.Button
	flag     *Flag
	debounce time.Duration

	edges   chan time.Time
	stopped chan struct{}

	drops   atomic.Uint32
	signals atomic.Uint32
}

// NewWatcher creates a Watcher. Presses closer together than debounce are
// treated as one.
func NewWatcher(button hardware.Button, flag *Flag, debounce time.Duration) *Watcher {
	return &Watcher{
		button:   button,
		flag:     flag,
		debounce: debounce,
		edges:    make(chan time.Time, queueSize),
		stopped:  make(chan struct{}),
	}
}

// Start launches the edge reader and the debounce worker. Both exit when
// ctx is cancelled; Done is closed once they have.
func (w *Watcher) Start(ctx context.Context) {
	readerDone := make(chan struct{})

	go func() {
		defer close(readerDone)
		for ctx.Err() == nil {
			if !w.button.WaitForPress(edgeWait) {
				continue
			}
			select {
			case w.edges <- time.Now():
			default:
				w.drops.Add(1)
			}
		}
	}()

	go func() {
		defer close(w.stopped)
		var last time.Time
		for {
			select {
			case <-ctx.Done():
				<-readerDone
				return
			case ts := <-w.edges:
				if !last.IsZero() && ts.Sub(last) < w.debounce {
					continue
				}
				last = ts
				w.signals.Add(1)
				w.flag.Signal()
			}
		}
	}()
}

// Done is closed after Start's goroutines have exited.
func (w *Watcher) Done() <-chan struct{} {
	return w.stopped
}

// Drops returns the number of edges dropped because the queue was full.
func (w *Watcher) Drops() uint32 { return w.drops.Load() }

// Signals returns the number of debounced presses delivered to the flag.
func (w *Watcher) Signals() uint32 { return w.signals.Load() }
