package syncstore

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/roach88/docsync/internal/dirty"
	"github.com/roach88/docsync/internal/doc"
	"github.com/roach88/docsync/internal/docstore"
)

// CreateActionBy builds the provenance marker for a mutation made on
// behalf of user: the caller's attributes without envelope keys, plus this
// client's id.
func (s *Store) CreateActionBy(user map[string]any) doc.Actor {
	return doc.NewActor(s.Meta().ClientID, user)
}

// stamp marks d as dirtied by actor at now.
func stamp(d *doc.Document, actor doc.Actor, now time.Time) {
	d.DirtyAt = now
	d.DirtyBy = &actor
}

func (s *Store) validate(op, id string, fields map[string]any) error {
	if s.opts.Schema == nil {
		return nil
	}
	if err := s.opts.Schema.Validate(fields); err != nil {
		return fmt.Errorf("%s %s: %w", op, id, err)
	}
	return nil
}

// AddItem creates a document with a generated id.
func (s *Store) AddItem(ctx context.Context, payload, user map[string]any) (doc.Document, error) {
	return s.create(ctx, "add item", s.ids.Generate(), payload, user)
}

// AddItemWithID creates a document with the caller's id. An existing
// document with that id is a conflict.
func (s *Store) AddItemWithID(ctx context.Context, id string, payload, user map[string]any) (doc.Document, error) {
	if id == "" {
		return doc.Document{}, errors.New("add item: id is required")
	}
	return s.create(ctx, "add item", id, payload, user)
}

func (s *Store) create(ctx context.Context, op, id string, payload, user map[string]any) (doc.Document, error) {
	local, err := s.db()
	if err != nil {
		return doc.Document{}, err
	}

	fields := doc.StripReserved(payload)
	if err := s.validate(op, id, fields); err != nil {
		return doc.Document{}, err
	}

	now := s.clock.Now().UTC()
	actor := s.CreateActionBy(user)
	d := doc.Document{
		ID:        id,
		CreatedAt: now,
		CreatedBy: &actor,
		Fields:    fields,
	}
	stamp(&d, actor, now)

	out, err := local.Put(ctx, d)
	if err != nil {
		return doc.Document{}, writeError(op, id, err)
	}
	return out, nil
}

// EditItem merges payload into the current document. Fields absent from
// payload are kept.
func (s *Store) EditItem(ctx context.Context, id string, payload, user map[string]any) (doc.Document, error) {
	local, err := s.db()
	if err != nil {
		return doc.Document{}, err
	}

	cur, err := local.Get(ctx, id)
	if err != nil {
		return doc.Document{}, fmt.Errorf("edit item %s: %w", id, err)
	}

	fields := maps.Clone(cur.Fields)
	if fields == nil {
		fields = make(map[string]any)
	}
	maps.Copy(fields, doc.StripReserved(payload))
	next := cur.WithPayload(fields)
	return s.update(ctx, local, "edit item", next, user)
}

// UpdateItem writes d as given. d.Rev must be the current revision;
// otherwise the write fails with a conflict.
func (s *Store) UpdateItem(ctx context.Context, d doc.Document, user map[string]any) (doc.Document, error) {
	local, err := s.db()
	if err != nil {
		return doc.Document{}, err
	}
	next := d.WithPayload(d.Fields)
	return s.update(ctx, local, "update item", next, user)
}

func (s *Store) update(ctx context.Context, local docstore.Database, op string, d doc.Document, user map[string]any) (doc.Document, error) {
	if err := s.validate(op, d.ID, d.Fields); err != nil {
		return doc.Document{}, err
	}

	now := s.clock.Now().UTC()
	actor := s.CreateActionBy(user)
	d.UpdatedAt = now
	d.UpdatedBy = &actor
	stamp(&d, actor, now)

	out, err := local.Put(ctx, d)
	if err != nil {
		return doc.Document{}, writeError(op, d.ID, err)
	}
	return out, nil
}

// DeleteItem deletes id. A document the remote never saw, or one already
// tombstoned, is removed physically. Anything else becomes a tombstone
// that stays unuploaded until the next upload.
func (s *Store) DeleteItem(ctx context.Context, id string, user map[string]any) (dirty.DeleteMode, error) {
	local, err := s.db()
	if err != nil {
		return 0, err
	}

	cur, err := local.Get(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("delete item %s: %w", id, err)
	}

	mode := dirty.ClassifyDelete(cur, s.Meta())
	if mode == dirty.Hard {
		if _, err := local.Remove(ctx, cur); err != nil {
			return mode, writeError("delete item", id, err)
		}
		s.logger.Debug("document removed", "id", id)
		return mode, nil
	}

	now := s.clock.Now().UTC()
	actor := s.CreateActionBy(user)
	tomb := cur.Clone()
	tomb.DeletedAt = now
	tomb.DeletedBy = &actor
	stamp(&tomb, actor, now)

	if _, err := local.Put(ctx, tomb); err != nil {
		return mode, writeError("delete item", id, err)
	}
	s.logger.Debug("document tombstoned", "id", id)
	return mode, nil
}

// CheckIDExist reports whether a document with id is stored, tombstones
// included.
func (s *Store) CheckIDExist(ctx context.Context, id string) (bool, error) {
	local, err := s.db()
	if err != nil {
		return false, err
	}
	_, err = local.Get(ctx, id)
	if docstore.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check id %s: %w", id, err)
	}
	return true, nil
}

// GetItem returns the stored document id, tombstones included.
func (s *Store) GetItem(ctx context.Context, id string) (doc.Document, error) {
	local, err := s.db()
	if err != nil {
		return doc.Document{}, err
	}
	d, err := local.Get(ctx, id)
	if err != nil {
		return doc.Document{}, fmt.Errorf("get item %s: %w", id, err)
	}
	return d, nil
}

// SetSingle creates or edits the singleton document.
func (s *Store) SetSingle(ctx context.Context, payload, user map[string]any) (doc.Document, error) {
	id := s.opts.Projection.SingletonID
	if id == "" {
		return doc.Document{}, notConfigured("singleton id is required for single-document access")
	}

	ok, err := s.CheckIDExist(ctx, id)
	if err != nil {
		return doc.Document{}, err
	}
	if ok {
		return s.EditItem(ctx, id, payload, user)
	}
	return s.AddItemWithID(ctx, id, payload, user)
}

// Single returns the singleton document. ok is false when it does not
// exist or is tombstoned.
func (s *Store) Single(ctx context.Context) (d doc.Document, ok bool, err error) {
	id := s.opts.Projection.SingletonID
	if id == "" {
		return doc.Document{}, false, notConfigured("singleton id is required for single-document access")
	}
	d, err = s.GetItem(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return doc.Document{}, false, nil
	}
	if err != nil {
		return doc.Document{}, false, err
	}
	return d, d.IsLive(), nil
}
