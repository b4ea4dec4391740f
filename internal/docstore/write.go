package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/docsync/internal/doc"
)

var errMissingID = errors.New("document id is required")

type revState struct {
	rev     string
	deleted bool
}

// Put writes d under optimistic revision control.
func (s *Store) Put(ctx context.Context, d doc.Document) (doc.Document, error) {
	if d.Deleted {
		return s.Remove(ctx, d)
	}
	if d.ID == "" {
		return doc.Document{}, wrap("put", "", errMissingID)
	}
	if err := s.checkOpen(); err != nil {
		return doc.Document{}, wrap("put", d.ID, err)
	}

	var out doc.Document
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		cur, ok, err := currentRev(ctx, tx, d.ID)
		if err != nil {
			return err
		}

		prev := ""
		switch {
		case ok && !cur.deleted:
			if d.Rev != cur.rev {
				return ErrConflict
			}
			prev = cur.rev
		case ok && cur.deleted:
			// Recreating a removed id continues its revision history.
			if d.Rev != "" && d.Rev != cur.rev {
				return ErrConflict
			}
			prev = cur.rev
		default:
			if d.Rev != "" {
				return ErrConflict
			}
		}

		out, err = commitRevision(ctx, tx, d, prev)
		return err
	})
	if err != nil {
		return doc.Document{}, wrap("put", d.ID, err)
	}

	s.notify.broadcast()
	return out, nil
}

// Remove physically deletes d. The row is replaced by a deleted stub that
// carries only the id and the new revision.
func (s *Store) Remove(ctx context.Context, d doc.Document) (doc.Document, error) {
	if d.ID == "" {
		return doc.Document{}, wrap("remove", "", errMissingID)
	}
	if err := s.checkOpen(); err != nil {
		return doc.Document{}, wrap("remove", d.ID, err)
	}

	var out doc.Document
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		cur, ok, err := currentRev(ctx, tx, d.ID)
		if err != nil {
			return err
		}
		if !ok || cur.deleted {
			return ErrNotFound
		}
		if d.Rev != cur.rev {
			return ErrConflict
		}

		out, err = commitRevision(ctx, tx, doc.Document{ID: d.ID, Deleted: true}, cur.rev)
		return err
	})
	if err != nil {
		return doc.Document{}, wrap("remove", d.ID, err)
	}

	s.notify.broadcast()
	return out, nil
}

// BulkWrite stores replicated revisions verbatim when they win over the
// local revision. Losing and already-present revisions are skipped.
func (s *Store) BulkWrite(ctx context.Context, docs []doc.Document) ([]string, error) {
	if err := s.checkOpen(); err != nil {
		return nil, wrap("bulk write", "", err)
	}

	applied := make([]string, 0, len(docs))
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, d := range docs {
			if d.ID == "" {
				return errMissingID
			}
			if d.Rev == "" {
				return fmt.Errorf("replicated document %s has no revision", d.ID)
			}

			cur, ok, err := currentRev(ctx, tx, d.ID)
			if err != nil {
				return err
			}
			if ok && !Wins(d.Rev, cur.rev) {
				continue
			}

			if d.Deleted {
				d = doc.Document{ID: d.ID, Rev: d.Rev, Deleted: true}
			}
			if _, err := writeRevision(ctx, tx, d); err != nil {
				return err
			}
			applied = append(applied, d.ID)
		}
		return nil
	})
	if err != nil {
		return nil, wrap("bulk write", "", err)
	}

	if len(applied) > 0 {
		s.notify.broadcast()
	}
	return applied, nil
}

// PutLocal stores v as JSON under the local document id.
func (s *Store) PutLocal(ctx context.Context, id string, v any) error {
	if err := s.checkOpen(); err != nil {
		return wrap("put local", id, err)
	}

	body, err := json.Marshal(v)
	if err != nil {
		return wrap("put local", id, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO local_docs (id, body) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET body = excluded.body
	`, id, string(body))
	return wrap("put local", id, err)
}

func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func currentRev(ctx context.Context, tx *sql.Tx, id string) (revState, bool, error) {
	var st revState
	err := tx.QueryRowContext(ctx, `SELECT rev, deleted FROM documents WHERE id = ?`, id).Scan(&st.rev, &st.deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return revState{}, false, nil
	}
	if err != nil {
		return revState{}, false, fmt.Errorf("read revision: %w", err)
	}
	return st, true, nil
}

// commitRevision assigns the revision following prev and writes d.
func commitRevision(ctx context.Context, tx *sql.Tx, d doc.Document, prev string) (doc.Document, error) {
	d.Rev = ""
	d.Seq = 0
	raw, err := json.Marshal(d)
	if err != nil {
		return doc.Document{}, fmt.Errorf("encode document: %w", err)
	}
	d.Rev = nextRevision(prev, raw)
	return writeRevision(ctx, tx, d)
}

// writeRevision appends to the change log and replaces the document row.
func writeRevision(ctx context.Context, tx *sql.Tx, d doc.Document) (doc.Document, error) {
	d.Seq = 0
	body, err := json.Marshal(d)
	if err != nil {
		return doc.Document{}, fmt.Errorf("encode document: %w", err)
	}

	res, err := tx.ExecContext(ctx, `INSERT INTO changes (id, rev, deleted) VALUES (?, ?, ?)`, d.ID, d.Rev, d.Deleted)
	if err != nil {
		return doc.Document{}, fmt.Errorf("append change: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return doc.Document{}, fmt.Errorf("read change seq: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (id, rev, seq, deleted, body)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			rev = excluded.rev,
			seq = excluded.seq,
			deleted = excluded.deleted,
			body = excluded.body
	`, d.ID, d.Rev, seq, d.Deleted, string(body))
	if err != nil {
		return doc.Document{}, fmt.Errorf("write document: %w", err)
	}

	d.Seq = seq
	return d, nil
}
