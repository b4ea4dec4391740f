package docstore

import (
	"context"
	"errors"
	"sync"
)

// Feed is a live, ordered stream of changes.
//
// Changes is closed when the feed stops. After Close returns no further
// change is delivered.
type Feed struct {
	ch     chan Change
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// NewFeed runs produce in its own goroutine. produce hands changes to emit,
// which blocks until the consumer receives and returns false once the feed
// is cancelled.
func NewFeed(parent context.Context, produce func(ctx context.Context, emit func(Change) bool) error) *Feed {
	ctx, cancel := context.WithCancel(parent)
	f := &Feed{
		ch:     make(chan Change),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(f.done)
		defer close(f.ch)

		err := produce(ctx, func(c Change) bool {
			select {
			case f.ch <- c:
				return true
			case <-ctx.Done():
				return false
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			f.mu.Lock()
			f.err = err
			f.mu.Unlock()
		}
	}()

	return f
}

// Changes returns the stream.
func (f *Feed) Changes() <-chan Change {
	return f.ch
}

// Err returns the error that stopped the feed, if any.
func (f *Feed) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Done is closed once the producer has exited.
func (f *Feed) Done() <-chan struct{} {
	return f.done
}

// Close stops the feed and waits for the producer to exit. Safe to call
// more than once.
func (f *Feed) Close() error {
	f.cancel()
	<-f.done
	return nil
}
