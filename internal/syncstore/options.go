package syncstore

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/roach88/docsync/internal/doc"
	"github.com/roach88/docsync/internal/docstore"
	"github.com/roach88/docsync/internal/schema"
)

// Pull defaults. Small batches with few in flight cap the memory a large
// catch-up can take.
const (
	DefaultBatchSize    = 1000
	DefaultBatchesLimit = 2
	DefaultEchoTTL      = 5 * time.Minute
)

// DefaultDrainTimeout bounds how long Deinitialize waits for the local
// watcher to catch up with committed writes.
const DefaultDrainTimeout = 2 * time.Second

// Options configure a Store.
type Options struct {
	// Name identifies the store. The local database is opened as Name and
	// its meta collection as "meta_" + Name. Required.
	Name string

	// Engine selects the local storage engine: "sqlite" (default) or
	// "memory". Dir is the sqlite data directory.
	Engine string
	Dir    string

	// ClientID seeds the identity of a newly created meta record. Empty
	// generates one. An existing record keeps its identity.
	ClientID string

	Remote     RemoteOptions
	Projection ProjectionOptions

	// Schema, when set, validates the payload of every local write.
	Schema *schema.Schema
}

// RemoteOptions configure remote sync.
type RemoteOptions struct {
	Enabled bool

	// URL is the remote server base URL. Required when Enabled unless
	// Database is set.
	URL string

	// Database is used as the remote instead of dialing URL. The store does
	// not close it.
	Database docstore.Database

	// Timeout bounds the reachability probe.
	Timeout time.Duration

	BatchSize    int
	BatchesLimit int
	RetryMin     time.Duration
	RetryMax     time.Duration

	HTTPClient *http.Client
}

// ProjectionOptions configure the in-memory projection.
type ProjectionOptions struct {
	Disabled bool

	// SingletonID switches the projection (and SetSingle) to one document.
	SingletonID string

	Compare func(a, b doc.Document) int
	Filter  func(doc.Document) bool
}

// Option tunes collaborators of a Store.
type Option func(*Store)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces the wall clock used for provenance timestamps.
func WithClock(c doc.Clock) Option {
	return func(s *Store) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithIDGenerator replaces the document id generator.
func WithIDGenerator(g doc.IDGenerator) Option {
	return func(s *Store) {
		if g != nil {
			s.ids = g
		}
	}
}

// WithOpener replaces the storage engine selected by Options.Engine.
func WithOpener(o docstore.Opener) Option {
	return func(s *Store) {
		if o != nil {
			s.opener = o
		}
	}
}

// WithEchoTTL bounds how long a pulled revision waits to be recognised by
// the local watcher.
func WithEchoTTL(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.echoTTL = d
		}
	}
}

func (o RemoteOptions) withDefaults() RemoteOptions {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.BatchesLimit <= 0 {
		o.BatchesLimit = DefaultBatchesLimit
	}
	return o
}

func (o Options) validate() error {
	if o.Name == "" {
		return notConfigured("store name is required")
	}
	if o.Remote.Enabled && o.Remote.URL == "" && o.Remote.Database == nil {
		return notConfigured("remote url is required when remote sync is enabled")
	}
	return nil
}
