package docstore

import (
	"context"

	"github.com/roach88/docsync/internal/doc"
)

// SinceNow asks Watch to start after the current update sequence.
const SinceNow int64 = -1

// Info describes a database.
type Info struct {
	// ID is stable for the lifetime of the database and distinct across
	// databases. Replication checkpoints are keyed on it.
	ID        string `json:"id"`
	UpdateSeq int64  `json:"update_seq"`
	DocCount  int    `json:"doc_count"`
}

// Change is one entry of the change feed: the latest revision of a
// document as of Seq.
type Change struct {
	Seq     int64         `json:"seq"`
	ID      string        `json:"id"`
	Rev     string        `json:"rev"`
	Deleted bool          `json:"deleted,omitempty"`
	Doc     *doc.Document `json:"doc,omitempty"`
}

// ChangesOptions selects a page of the change feed.
type ChangesOptions struct {
	Since       int64
	Limit       int
	IncludeDocs bool
}

// ChangesResult is one page of the change feed. LastSeq is the sequence to
// pass as Since for the next page.
type ChangesResult struct {
	Results []Change `json:"results"`
	LastSeq int64    `json:"last_seq"`
}

// Database is the document store capability set used by the sync layer.
// The SQLite engine and the HTTP remote client both implement it, so
// replication can run between any two of them.
type Database interface {
	Info(ctx context.Context) (Info, error)

	// Get returns ErrNotFound for missing and deleted documents.
	Get(ctx context.Context, id string) (doc.Document, error)

	// Put writes d. d.Rev must equal the current revision, or be empty for
	// a new or previously deleted id; otherwise ErrConflict.
	Put(ctx context.Context, d doc.Document) (doc.Document, error)

	// Remove physically deletes d, leaving a deleted stub in the change feed.
	// d.Rev must equal the current revision.
	Remove(ctx context.Context, d doc.Document) (doc.Document, error)

	// AllDocuments returns every non-deleted document ordered by id.
	AllDocuments(ctx context.Context) ([]doc.Document, error)

	Changes(ctx context.Context, opts ChangesOptions) (ChangesResult, error)

	// Watch streams changes committed after since (SinceNow for "from now").
	// The feed ends when ctx is cancelled or the feed is closed.
	Watch(ctx context.Context, since int64) (*Feed, error)

	// BulkWrite stores replicated revisions as given. A revision is applied
	// only when it wins over the current one. Returns the applied ids.
	BulkWrite(ctx context.Context, docs []doc.Document) ([]string, error)

	// RevsDiff returns the ids whose given revision this database lacks.
	RevsDiff(ctx context.Context, revs map[string]string) ([]string, error)

	// GetLocal decodes the local document id into v, or returns ErrNotFound.
	GetLocal(ctx context.Context, id string, v any) error
	PutLocal(ctx context.Context, id string, v any) error

	Close() error
}
