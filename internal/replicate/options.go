package replicate

import (
	"log/slog"
	"time"

	"github.com/roach88/docsync/internal/doc"
)

// Defaults applied by Options.withDefaults.
const (
	DefaultBatchSize    = 100
	DefaultBatchesLimit = 10
	DefaultRetryMin     = time.Second
	DefaultRetryMax     = time.Minute
)

// Options configure a replication.
type Options struct {
	// Live keeps following the source feed after the first pass (Start only).
	Live bool

	// Retry keeps a live replication running across failures.
	Retry bool

	// BatchSize is the number of changes read per source query.
	BatchSize int

	// BatchesLimit caps how many read batches may wait to be written.
	BatchesLimit int

	RetryMin time.Duration
	RetryMax time.Duration

	// DocIDs restricts replication to these ids.
	DocIDs []string

	// Filter restricts replication to documents it accepts. FilterName
	// identifies the filter in the checkpoint id.
	Filter     func(doc.Document) bool
	FilterName string

	// Selector is hashed into the checkpoint id. It is evaluated by Filter.
	Selector map[string]any

	// BeforeWrite is called with each batch the target lacks, before it is
	// written.
	BeforeWrite func(docs []doc.Document)

	// AfterWrite is called once a batch has been written with the ids the
	// target actually applied.
	AfterWrite func(docs []doc.Document, applied []string)

	// OnError is called for failures a retrying replication recovers from.
	OnError func(err error)

	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.BatchesLimit <= 0 {
		o.BatchesLimit = DefaultBatchesLimit
	}
	if o.RetryMin <= 0 {
		o.RetryMin = DefaultRetryMin
	}
	if o.RetryMax < o.RetryMin {
		o.RetryMax = max(DefaultRetryMax, o.RetryMin)
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

func (o Options) accepts(d doc.Document) bool {
	if len(o.DocIDs) > 0 {
		found := false
		for _, id := range o.DocIDs {
			if id == d.ID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	// Deletions always pass the filter; the target must learn about them.
	if o.Filter != nil && !d.Deleted {
		return o.Filter(d)
	}
	return true
}
