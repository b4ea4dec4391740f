package docstore

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// watchPageSize bounds how many changes a live feed reads per query.
const watchPageSize = 100

// Watch streams changes committed after since, in commit order.
//
// The feed wakes on commits made through this Store and, for file-backed
// stores, on writes to the database file by other processes.
func (s *Store) Watch(ctx context.Context, since int64) (*Feed, error) {
	if err := s.checkOpen(); err != nil {
		return nil, wrap("watch", "", err)
	}

	if since == SinceNow {
		head, err := s.updateSeq(ctx)
		if err != nil {
			return nil, wrap("watch", "", err)
		}
		since = head
	}

	if s.fileWatch {
		if err := s.startFileWatch(); err != nil {
			// In-process commits still wake the feed.
			s.logger.Warn("file watch unavailable", "path", s.path, "error", err)
		}
	}

	wake := s.notify.subscribe()
	f := NewFeed(ctx, func(ctx context.Context, emit func(Change) bool) error {
		defer s.notify.unsubscribe(wake)
		return s.pump(ctx, since, wake, emit)
	})

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		f.Close()
		return nil, wrap("watch", "", ErrClosed)
	}
	s.feeds[f] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-f.Done()
		s.mu.Lock()
		delete(s.feeds, f)
		s.mu.Unlock()
	}()

	return f, nil
}

// pump drains the change log past since, then sleeps until woken.
func (s *Store) pump(ctx context.Context, since int64, wake <-chan struct{}, emit func(Change) bool) error {
	for {
		res, err := s.Changes(ctx, ChangesOptions{Since: since, Limit: watchPageSize, IncludeDocs: true})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		for _, c := range res.Results {
			if !emit(c) {
				return ctx.Err()
			}
		}
		since = res.LastSeq

		if len(res.Results) == watchPageSize {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wake:
		}
	}
}

// startFileWatch watches the directory holding the database file and wakes
// live feeds whenever the file or its WAL changes.
func (s *Store) startFileWatch() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fsw != nil {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		w.Close()
		return err
	}
	s.fsw = w

	dbFile := filepath.Clean(s.path)
	walFile := dbFile + "-wal"
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				name := filepath.Clean(ev.Name)
				if (name == dbFile || name == walFile) && ev.Has(fsnotify.Write|fsnotify.Create) {
					s.notify.broadcast()
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.logger.Debug("file watch error", "path", s.path, "error", err)
			}
		}
	}()
	return nil
}
