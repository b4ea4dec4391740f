package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/docsync/internal/doc"
)

// defaultChangesLimit caps a Changes page when the caller sets no limit.
const defaultChangesLimit = 1000

// Get returns the current revision of a live document.
func (s *Store) Get(ctx context.Context, id string) (doc.Document, error) {
	if err := s.checkOpen(); err != nil {
		return doc.Document{}, wrap("get", id, err)
	}

	var (
		body    string
		seq     int64
		deleted bool
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT body, seq, deleted FROM documents WHERE id = ?
	`, id).Scan(&body, &seq, &deleted)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && deleted) {
		return doc.Document{}, wrap("get", id, ErrNotFound)
	}
	if err != nil {
		return doc.Document{}, wrap("get", id, err)
	}

	d, err := decodeBody(body, seq)
	if err != nil {
		return doc.Document{}, wrap("get", id, err)
	}
	return d, nil
}

// AllDocuments returns every live document ordered by id.
// Returns an empty slice (not nil) if there are none.
func (s *Store) AllDocuments(ctx context.Context) ([]doc.Document, error) {
	if err := s.checkOpen(); err != nil {
		return nil, wrap("all documents", "", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT body, seq FROM documents
		WHERE deleted = 0
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, wrap("all documents", "", err)
	}
	defer rows.Close()

	docs := make([]doc.Document, 0)
	for rows.Next() {
		var (
			body string
			seq  int64
		)
		if err := rows.Scan(&body, &seq); err != nil {
			return nil, wrap("all documents", "", err)
		}
		d, err := decodeBody(body, seq)
		if err != nil {
			return nil, wrap("all documents", "", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("all documents", "", err)
	}
	return docs, nil
}

// Changes returns the documents changed after opts.Since, one entry per
// document at its latest revision, in commit order.
func (s *Store) Changes(ctx context.Context, opts ChangesOptions) (ChangesResult, error) {
	if err := s.checkOpen(); err != nil {
		return ChangesResult{}, wrap("changes", "", err)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultChangesLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, rev, deleted, body FROM documents
		WHERE seq > ?
		ORDER BY seq ASC
		LIMIT ?
	`, opts.Since, limit)
	if err != nil {
		return ChangesResult{}, wrap("changes", "", err)
	}
	defer rows.Close()

	res := ChangesResult{Results: make([]Change, 0), LastSeq: opts.Since}
	for rows.Next() {
		var (
			c    Change
			body string
		)
		if err := rows.Scan(&c.Seq, &c.ID, &c.Rev, &c.Deleted, &body); err != nil {
			return ChangesResult{}, wrap("changes", "", err)
		}
		if opts.IncludeDocs {
			d, err := decodeBody(body, c.Seq)
			if err != nil {
				return ChangesResult{}, wrap("changes", c.ID, err)
			}
			c.Doc = &d
		}
		res.Results = append(res.Results, c)
		res.LastSeq = c.Seq
	}
	if err := rows.Err(); err != nil {
		return ChangesResult{}, wrap("changes", "", err)
	}

	return res, nil
}

// RevsDiff returns, in no particular order, the ids for which the given
// revision is absent here and would win over the local one.
func (s *Store) RevsDiff(ctx context.Context, revs map[string]string) ([]string, error) {
	if err := s.checkOpen(); err != nil {
		return nil, wrap("revs diff", "", err)
	}

	missing := make([]string, 0)
	for id, rev := range revs {
		var cur string
		err := s.db.QueryRowContext(ctx, `SELECT rev FROM documents WHERE id = ?`, id).Scan(&cur)
		if errors.Is(err, sql.ErrNoRows) {
			missing = append(missing, id)
			continue
		}
		if err != nil {
			return nil, wrap("revs diff", id, err)
		}
		if Wins(rev, cur) {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

// GetLocal decodes a local document into v.
func (s *Store) GetLocal(ctx context.Context, id string, v any) error {
	if err := s.checkOpen(); err != nil {
		return wrap("get local", id, err)
	}

	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM local_docs WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return wrap("get local", id, ErrNotFound)
	}
	if err != nil {
		return wrap("get local", id, err)
	}
	if err := json.Unmarshal([]byte(body), v); err != nil {
		return wrap("get local", id, fmt.Errorf("decode: %w", err))
	}
	return nil
}

func decodeBody(body string, seq int64) (doc.Document, error) {
	var d doc.Document
	if err := json.Unmarshal([]byte(body), &d); err != nil {
		return doc.Document{}, err
	}
	d.Seq = seq
	return d, nil
}
