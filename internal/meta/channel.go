package meta

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/docsync/internal/doc"
	"github.com/roach88/docsync/internal/docstore"
)

// Channel owns the in-memory meta record of a store, persists it to the
// store's meta collection and follows updates written there by others.
//
// Persist failures are logged and never returned: the record can be
// rebuilt from the change history.
type Channel struct {
	db     docstore.Database
	logger *slog.Logger

	mu  sync.Mutex
	rec Record

	feed *docstore.Feed
	done chan struct{}
}

// NewChannel creates a channel over the meta collection db.
func NewChannel(db docstore.Database, logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	return &Channel{db: db, logger: logger}
}

// Load reads the persisted record. ok is false when none exists yet.
func (c *Channel) Load(ctx context.Context) (rec Record, ok bool, err error) {
	d, err := c.db.Get(ctx, RecordID)
	if docstore.IsNotFound(err) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("load meta: %w", err)
	}

	rec, err = decodeRecord(d)
	if err != nil {
		return Record{}, false, fmt.Errorf("load meta: %w", err)
	}
	return rec, true, nil
}

// Init loads the persisted record, or creates and persists one with a
// client id from newClientID, and makes it current.
func (c *Channel) Init(ctx context.Context, newClientID func() string) (Record, error) {
	rec, ok, err := c.Load(ctx)
	if err != nil {
		return Record{}, err
	}
	if !ok {
		rec = NewRecord(newClientID())
		c.logger.Info("meta record created", "client_id", rec.ClientID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.rec = rec.Clone()
	if !ok {
		c.rec = c.persistLocked(ctx, c.rec)
	}
	return c.rec.Clone(), nil
}

// Record returns a copy of the current record.
func (c *Channel) Record() Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rec.Clone()
}

// Update applies fn to a copy of the current record. When fn reports a
// change, the copy becomes current and is persisted. Returns the current
// record after the call.
func (c *Channel) Update(ctx context.Context, fn func(*Record) bool) Record {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.rec.Clone()
	if !fn(&next) {
		return c.rec.Clone()
	}
	c.rec = c.persistLocked(ctx, next)
	return c.rec.Clone()
}

// persistLocked writes rec and returns it with the revision it now has.
// On a revision conflict the stored revision is re-read and the write
// retried once: the in-memory record wins.
func (c *Channel) persistLocked(ctx context.Context, rec Record) Record {
	d, err := encodeRecord(rec)
	if err != nil {
		c.logger.Warn("meta persist failed", "error", err)
		return rec
	}

	out, err := c.db.Put(ctx, d)
	if docstore.IsConflict(err) {
		cur, getErr := c.db.Get(ctx, RecordID)
		switch {
		case getErr == nil:
			d.Rev = cur.Rev
		case docstore.IsNotFound(getErr):
			d.Rev = ""
		default:
			err = getErr
		}
		if getErr == nil || docstore.IsNotFound(getErr) {
			out, err = c.db.Put(ctx, d)
		}
	}
	if err != nil {
		c.logger.Warn("meta persist failed", "client_id", rec.ClientID, "error", err)
		return rec
	}

	rec.Rev = out.Rev
	return rec
}

// Watch follows the meta collection from now on. Updates written by
// another process replace the current record (last writer wins) and are
// passed to onUpdate. The channel's own writes are recognised by their
// revision generation and skipped.
func (c *Channel) Watch(ctx context.Context, onUpdate func(Record)) error {
	feed, err := c.db.Watch(ctx, docstore.SinceNow)
	if err != nil {
		return fmt.Errorf("watch meta: %w", err)
	}

	c.mu.Lock()
	c.feed = feed
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	go func() {
		defer close(done)
		for ch := range feed.Changes() {
			if ch.ID != RecordID || ch.Deleted || ch.Doc == nil {
				continue
			}
			rec, err := decodeRecord(*ch.Doc)
			if err != nil {
				c.logger.Warn("ignoring malformed meta update", "rev", ch.Rev, "error", err)
				continue
			}
			if !c.replace(rec) {
				continue
			}
			c.logger.Debug("meta record replaced by external update", "rev", rec.Rev)
			if onUpdate != nil {
				onUpdate(rec.Clone())
			}
		}
	}()
	return nil
}

func (c *Channel) replace(rec Record) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if docstore.Generation(rec.Rev) <= docstore.Generation(c.rec.Rev) {
		return false
	}
	c.rec = rec
	return true
}

// Close stops the watch and waits for its goroutine to finish.
func (c *Channel) Close() {
	c.mu.Lock()
	feed, done := c.feed, c.done
	c.feed, c.done = nil, nil
	c.mu.Unlock()

	if feed != nil {
		feed.Close()
		<-done
	}
}

func encodeRecord(rec Record) (doc.Document, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return doc.Document{}, fmt.Errorf("encode meta: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return doc.Document{}, fmt.Errorf("encode meta: %w", err)
	}
	return doc.Document{ID: RecordID, Rev: rec.Rev, Fields: fields}, nil
}

func decodeRecord(d doc.Document) (Record, error) {
	raw, err := json.Marshal(d.Fields)
	if err != nil {
		return Record{}, fmt.Errorf("decode meta: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, fmt.Errorf("decode meta: %w", err)
	}
	if rec.Unuploadeds == nil {
		rec.Unuploadeds = make(map[string]bool)
	}
	rec.Rev = d.Rev
	return rec, nil
}
