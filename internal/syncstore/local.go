package syncstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/docsync/internal/doc"
	"github.com/roach88/docsync/internal/docstore"
	"github.com/roach88/docsync/internal/meta"
	"github.com/roach88/docsync/internal/notify"
)

const drainPoll = 5 * time.Millisecond

// watchLocal follows the local change feed from since and handles each
// change to completion before reading the next.
func (s *Store) watchLocal(ctx context.Context, since int64) error {
	feed, err := s.local.Watch(ctx, since)
	if err != nil {
		return fmt.Errorf("watch local: %w", err)
	}
	s.localFeed = feed
	s.localDone = make(chan struct{})
	s.handledSeq.Store(since)

	go func() {
		defer close(s.localDone)
		for ch := range feed.Changes() {
			s.handleLocalChange(ctx, ch)
			s.handledSeq.Store(ch.Seq)
		}
		if err := feed.Err(); err != nil {
			s.logger.Error("local change feed stopped", "error", err)
		}
	}()
	return nil
}

// Settle blocks until the local watcher has handled every change committed
// before the call, so the projection, the unuploaded set and subscribers
// reflect those writes.
func (s *Store) Settle(ctx context.Context) error {
	local, err := s.db()
	if err != nil {
		return err
	}
	return s.waitHandled(ctx, local)
}

var errWatcherStopped = errors.New("local watcher stopped")

func (s *Store) waitHandled(ctx context.Context, local docstore.Database) error {
	info, err := local.Info(ctx)
	if err != nil {
		return fmt.Errorf("settle: %w", err)
	}

	ticker := time.NewTicker(drainPoll)
	defer ticker.Stop()
	for s.handledSeq.Load() < info.UpdateSeq {
		select {
		case <-ticker.C:
		case <-s.localDone:
			return errWatcherStopped
		case <-ctx.Done():
			return fmt.Errorf("settle at seq %d (handled %d): %w", info.UpdateSeq, s.handledSeq.Load(), ctx.Err())
		}
	}
	return nil
}

// drainLocal is Settle for shutdown: writes made just before Deinitialize
// still reach the unuploaded set. Gives up after timeout.
func (s *Store) drainLocal(timeout time.Duration) {
	if s.local == nil || s.localFeed == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.waitHandled(ctx, s.local); err != nil && !errors.Is(err, errWatcherStopped) {
		s.logger.Warn("local changes not drained before shutdown", "error", err)
	}
}

// handleLocalChange applies one change: projection first, then the
// unuploaded set, then subscribers. Failures are logged so one bad change
// never stops the feed.
func (s *Store) handleLocalChange(ctx context.Context, ch docstore.Change) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("local change handler panicked", "id", ch.ID, "panic", r)
		}
	}()

	d := changeDocument(ch)
	fromRemote := s.consumeEcho(ch.ID, ch.Rev)

	if s.proj != nil {
		s.proj.Apply(d)
	}

	if !fromRemote {
		s.markDirty(ctx, ch.Seq, d)
	}

	s.logger.Debug("local change applied", "id", ch.ID, "seq", ch.Seq, "remote", fromRemote, "deleted", ch.Deleted)
	s.subs.Notify(notify.Event{Kind: notify.KindChange, Doc: &d})
}

// markDirty updates the unuploaded set for a locally made change.
//
// A hard delete leaves nothing to upload. Any other change enters the set
// when this client made it and no upload has covered its sequence yet.
func (s *Store) markDirty(ctx context.Context, seq int64, d doc.Document) {
	if d.Deleted {
		s.meta.Load().Update(ctx, func(r *meta.Record) bool {
			if !r.Unuploadeds[d.ID] {
				return false
			}
			delete(r.Unuploadeds, d.ID)
			return true
		})
		return
	}

	if d.DirtyBy == nil {
		return
	}
	// pushedSeq is read under the meta lock; Upload advances it there.
	s.meta.Load().Update(ctx, func(r *meta.Record) bool {
		if seq <= s.pushedSeq.Load() || d.DirtyBy.ClientID != r.ClientID || r.Unuploadeds[d.ID] {
			return false
		}
		r.Unuploadeds[d.ID] = true
		return true
	})
}

// changeDocument returns the document a change carries, with the change's
// envelope fields authoritative.
func changeDocument(ch docstore.Change) doc.Document {
	var d doc.Document
	if ch.Doc != nil {
		d = ch.Doc.Clone()
	}
	d.ID, d.Rev, d.Deleted, d.Seq = ch.ID, ch.Rev, ch.Deleted, ch.Seq
	return d
}
