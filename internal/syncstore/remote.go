package syncstore

import (
	"context"
	"fmt"
	"maps"

	"github.com/jellydator/ttlcache/v3"

	"github.com/roach88/docsync/internal/doc"
	"github.com/roach88/docsync/internal/docstore"
	"github.com/roach88/docsync/internal/meta"
	"github.com/roach88/docsync/internal/notify"
	"github.com/roach88/docsync/internal/remote"
	"github.com/roach88/docsync/internal/replicate"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// probe checks that rem answers within the configured timeout.
func (s *Store) probe(ctx context.Context, op string, rem docstore.Database) error {
	timeout := s.opts.Remote.Timeout
	if timeout <= 0 {
		timeout = remote.DefaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var err error
	if p, ok := rem.(pinger); ok {
		err = p.Ping(ctx)
	} else {
		_, err = rem.Info(ctx)
	}
	if err != nil {
		return &Error{Code: CodeConnectivity, Op: op, Err: err}
	}
	return nil
}

func (s *Store) pullOptions(live bool) replicate.Options {
	ro := s.opts.Remote
	opts := replicate.Options{
		BatchSize:    ro.BatchSize,
		BatchesLimit: ro.BatchesLimit,
		RetryMin:     ro.RetryMin,
		RetryMax:     ro.RetryMax,
		Logger:       s.logger,
	}
	if live {
		opts.Live = true
		opts.Retry = true
		opts.BeforeWrite = s.expectEchoes
		opts.AfterWrite = s.settleEchoes
		opts.OnError = func(err error) {
			s.logger.Warn("remote pull failed, retrying", "error", err)
		}
	}
	return opts
}

func (s *Store) pushOptions() replicate.Options {
	return replicate.Options{Logger: s.logger}
}

// catchUp pulls everything the remote has into the local database, then
// rebuilds the unuploaded set against the push checkpoint. It runs before
// the local watcher starts, so pulled documents are never seen as local
// edits.
func (s *Store) catchUp(ctx context.Context) error {
	if err := s.probe(ctx, "catch up", s.remote); err != nil {
		return err
	}

	res, err := replicate.Run(ctx, s.remote, s.local, s.pullOptions(false))
	if err != nil {
		return &Error{Code: CodeReplication, Op: "catch up", Err: err}
	}
	s.logger.Info("remote catch-up complete", "read", res.DocsRead, "written", res.DocsWritten)

	pending, pushed, err := s.pendingUploads(ctx)
	if err != nil {
		return &Error{Code: CodeReplication, Op: "catch up", Err: err}
	}
	s.pushedSeq.Store(pushed)
	s.meta.Load().Update(ctx, func(r *meta.Record) bool {
		if maps.Equal(r.Unuploadeds, pending) {
			return false
		}
		r.Unuploadeds = pending
		return true
	})
	return nil
}

// pendingUploads lists the local documents this client changed since the
// push checkpoint that the remote still lacks, and returns the checkpoint.
func (s *Store) pendingUploads(ctx context.Context) (map[string]bool, int64, error) {
	since, err := replicate.Checkpoint(ctx, s.local, s.remote, s.pushOptions())
	if err != nil {
		return nil, 0, fmt.Errorf("read push checkpoint: %w", err)
	}

	clientID := s.meta.Load().Record().ClientID
	revs := make(map[string]string)
	seq := since
	for {
		page, err := s.local.Changes(ctx, docstore.ChangesOptions{
			Since:       seq,
			Limit:       s.opts.Remote.BatchSize,
			IncludeDocs: true,
		})
		if err != nil {
			return nil, 0, fmt.Errorf("read local changes: %w", err)
		}
		for _, ch := range page.Results {
			if ch.Deleted || ch.Doc == nil || ch.Doc.DirtyBy == nil {
				delete(revs, ch.ID)
				continue
			}
			if ch.Doc.DirtyBy.ClientID == clientID {
				revs[ch.ID] = ch.Rev
			}
		}
		if len(page.Results) < s.opts.Remote.BatchSize {
			break
		}
		seq = page.LastSeq
	}

	pending := make(map[string]bool)
	if len(revs) == 0 {
		return pending, since, nil
	}
	missing, err := s.remote.RevsDiff(ctx, revs)
	if err != nil {
		return nil, 0, fmt.Errorf("diff remote revisions: %w", err)
	}
	for _, id := range missing {
		pending[id] = true
	}
	return pending, since, nil
}

// watchRemote starts the live pull.
func (s *Store) watchRemote(ctx context.Context) {
	s.pull = replicate.ReplicateFrom(ctx, s.local, s.remote, s.pullOptions(true))
	go func(r *replicate.Replication) {
		if _, err := r.Wait(); err != nil {
			s.logger.Error("remote pull stopped", "error", err)
		}
	}(s.pull)
}

// echoKey identifies one pulled revision.
func echoKey(id, rev string) string {
	return id + "\x00" + rev
}

// expectEchoes flags a pulled batch before it is written locally. Every
// revision is flagged on its own, so a later pull of the same id never
// hides an earlier revision the watcher has not handled yet.
func (s *Store) expectEchoes(docs []doc.Document) {
	for _, d := range docs {
		s.echoes.Set(echoKey(d.ID, d.Rev), struct{}{}, ttlcache.DefaultTTL)
	}
}

// settleEchoes unflags the revisions the local database did not apply:
// they will never come through the change feed.
func (s *Store) settleEchoes(docs []doc.Document, applied []string) {
	ok := make(map[string]bool, len(applied))
	for _, id := range applied {
		ok[id] = true
	}
	for _, d := range docs {
		if !ok[d.ID] {
			s.echoes.Delete(echoKey(d.ID, d.Rev))
		}
	}
}

// consumeEcho reports whether rev of id was flagged as pulled, removing the
// flag on a match.
func (s *Store) consumeEcho(id, rev string) bool {
	key := echoKey(id, rev)
	if s.echoes.Get(key) == nil {
		return false
	}
	s.echoes.Delete(key)
	return true
}

// Upload pushes every local change to the remote, then clears the ids the
// push covered and stamps tsUpload. A change committed after the push read
// its document stays unuploaded.
//
// In local-only mode Upload does the bookkeeping alone. On error nothing
// is cleared.
func (s *Store) Upload(ctx context.Context) error {
	local, rem, ch, err := s.handles()
	if err != nil {
		return err
	}

	s.uploadMu.Lock()
	defer s.uploadMu.Unlock()

	var covered int64
	if rem == nil {
		info, err := local.Info(ctx)
		if err != nil {
			return fmt.Errorf("upload: %w", err)
		}
		covered = info.UpdateSeq
	} else {
		if err := s.probe(ctx, "upload", rem); err != nil {
			return err
		}
		res, err := replicate.ReplicateTo(ctx, local, rem, s.pushOptions())
		if err != nil {
			return &Error{Code: CodeReplication, Op: "upload", Err: err}
		}
		covered = res.LastSeq
		s.logger.Info("upload pushed", "read", res.DocsRead, "written", res.DocsWritten, "last_seq", res.LastSeq)
	}

	// Advance under the meta lock before the snapshot: markDirty either
	// added its id already (and the snapshot sees it) or sees covered.
	ch.Update(ctx, func(*meta.Record) bool {
		if covered > s.pushedSeq.Load() {
			s.pushedSeq.Store(covered)
		}
		return false
	})

	var done []string
	for _, id := range ch.Record().IDs() {
		d, err := local.Get(ctx, id)
		switch {
		case docstore.IsNotFound(err):
			done = append(done, id)
		case err != nil:
			return fmt.Errorf("upload: %w", err)
		case d.Seq <= covered:
			done = append(done, id)
		}
	}

	now := s.clock.Now().UTC()
	rec := ch.Update(ctx, func(r *meta.Record) bool {
		for _, id := range done {
			delete(r.Unuploadeds, id)
		}
		r.TsUpload = now
		return true
	})

	s.logger.Info("upload complete", "cleared", len(done), "remaining", len(rec.Unuploadeds))
	s.subs.Notify(notify.Event{Kind: notify.KindUpload})
	return nil
}
