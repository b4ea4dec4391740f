package replicate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/roach88/docsync/internal/docstore"
)

// Replication is a background replication started by Start.
type Replication struct {
	source docstore.Database
	target docstore.Database
	opts   Options

	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	result Result
	err    error
}

// Start runs a replication in the background. Without opts.Live it stops
// after one pass; with it, it follows the source feed until cancelled.
func Start(ctx context.Context, source, target docstore.Database, opts Options) *Replication {
	ctx, cancel := context.WithCancel(ctx)
	r := &Replication{
		source: source,
		target: target,
		opts:   opts.withDefaults(),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(r.done)
		err := r.loop(ctx)
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		r.mu.Lock()
		r.err = err
		r.mu.Unlock()
	}()

	return r
}

// Cancel stops the replication and waits for it to exit.
func (r *Replication) Cancel() {
	r.cancel()
	<-r.done
}

// Done is closed when the replication has stopped.
func (r *Replication) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the replication stops and returns its totals and the
// error that stopped it, if any.
func (r *Replication) Wait() (Result, error) {
	<-r.done
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result, r.err
}

// Result returns the totals so far.
func (r *Replication) Result() Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result
}

func (r *Replication) loop(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.opts.RetryMin
	bo.MaxInterval = r.opts.RetryMax
	bo.MaxElapsedTime = 0
	bo.Reset()

	var feed *docstore.Feed
	defer func() {
		if feed != nil {
			feed.Close()
		}
	}()

	for {
		err := r.pass(ctx)
		if err == nil && r.opts.Live && feed == nil {
			feed, err = r.source.Watch(ctx, r.Result().LastSeq)
			if err != nil {
				err = fmt.Errorf("watch source: %w", err)
			}
		}

		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !r.opts.Live || !r.opts.Retry {
				return err
			}
			if r.opts.OnError != nil {
				r.opts.OnError(err)
			}
			if feed != nil {
				feed.Close()
				feed = nil
			}

			wait := bo.NextBackOff()
			r.opts.Logger.Debug("replication retry scheduled", "delay", wait, "error", err)
			if err := sleep(ctx, wait); err != nil {
				return err
			}
			continue
		}

		bo.Reset()
		if !r.opts.Live {
			return nil
		}

		// Any change is a wake-up; the next pass reads from the checkpoint.
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-feed.Changes():
			if !ok {
				feedErr := feed.Err()
				feed.Close()
				feed = nil
				if feedErr == nil {
					feedErr = errors.New("source feed closed")
				}
				if !r.opts.Retry {
					return feedErr
				}
				if r.opts.OnError != nil {
					r.opts.OnError(feedErr)
				}
				if err := sleep(ctx, bo.NextBackOff()); err != nil {
					return err
				}
			}
		}
	}
}

func (r *Replication) pass(ctx context.Context) error {
	id, err := checkpointID(ctx, r.source, r.target, r.opts)
	if err != nil {
		return err
	}

	r.mu.Lock()
	since := r.result.LastSeq
	r.mu.Unlock()
	if since == 0 {
		if since, err = readCheckpoint(ctx, r.source, r.target, id); err != nil {
			return err
		}
	}

	res, err := runFrom(ctx, r.source, r.target, r.opts, id, since)

	r.mu.Lock()
	r.result.DocsRead += res.DocsRead
	r.result.DocsWritten += res.DocsWritten
	if res.LastSeq > r.result.LastSeq {
		r.result.LastSeq = res.LastSeq
	}
	r.mu.Unlock()

	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
