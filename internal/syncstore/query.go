package syncstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/docsync/internal/dirty"
	"github.com/roach88/docsync/internal/doc"
	"github.com/roach88/docsync/internal/notify"
	"github.com/roach88/docsync/internal/projection"
	"github.com/roach88/docsync/internal/query"
)

// Data returns the current projection. Both containers are nil when the
// projection is disabled.
func (s *Store) Data() projection.View {
	if s.proj == nil {
		return projection.View{}
	}
	return s.proj.View()
}

// FetchData returns the live documents matching q. Without sort fields the
// result is in id order.
func (s *Store) FetchData(ctx context.Context, q query.Query) ([]doc.Document, error) {
	c, err := query.Compile(q)
	if err != nil {
		return nil, err
	}
	return s.fetch(ctx, c)
}

// GetDocuments is FetchData with the result always ordered: by q.Sort when
// given, by id otherwise.
func (s *Store) GetDocuments(ctx context.Context, q query.Query) ([]doc.Document, error) {
	if len(q.Sort) == 0 {
		q.Sort = []query.SortField{{Field: doc.KeyID}}
	}
	return s.FetchData(ctx, q)
}

func (s *Store) fetch(ctx context.Context, c *query.Compiled) ([]doc.Document, error) {
	local, err := s.db()
	if err != nil {
		return nil, err
	}
	all, err := local.AllDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch data: %w", err)
	}
	live := make([]doc.Document, 0, len(all))
	for _, d := range all {
		if d.IsLive() {
			live = append(live, d)
		}
	}
	return c.Apply(live)
}

// Subscribe registers sub for change, upload and meta events. Registering
// the same subscriber twice is a no-op.
func (s *Store) Subscribe(sub notify.Subscriber) func() {
	return s.subs.Subscribe(sub)
}

// SubscribeFunc registers fn. Every call adds a registration.
func (s *Store) SubscribeFunc(fn func(notify.Event)) func() {
	return s.subs.SubscribeFunc(fn)
}

// SubscribeQuery delivers the result of q now and again after every burst
// of changes, once no change arrived for notify.DebounceDelay.
func (s *Store) SubscribeQuery(ctx context.Context, q query.Query, fn func([]doc.Document, error)) (func(), error) {
	c, err := query.Compile(q)
	if err != nil {
		return nil, err
	}

	deliver := func() {
		docs, err := s.fetch(ctx, c)
		if errors.Is(err, ErrNotInitialized) {
			return
		}
		fn(docs, err)
	}
	deb := notify.NewDebouncer(notify.DebounceDelay, deliver)

	s.mu.Lock()
	if s.state != stateRunning {
		s.mu.Unlock()
		return nil, ErrNotInitialized
	}
	s.debouncers[deb] = struct{}{}
	s.mu.Unlock()

	unsub := s.subs.SubscribeFunc(func(notify.Event) { deb.Trigger() })
	deliver()

	return func() {
		unsub()
		deb.Stop()
		s.mu.Lock()
		delete(s.debouncers, deb)
		s.mu.Unlock()
	}, nil
}

// CountUnuploaded returns the number of documents awaiting upload.
func (s *Store) CountUnuploaded() int {
	return dirty.CountUnuploaded(s.Meta())
}

// IsUploaded reports whether d has no pending local change.
func (s *Store) IsUploaded(d doc.Document) bool {
	return dirty.IsUploaded(d, s.Meta())
}
