package replicate

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/docsync/internal/doc"
	"github.com/roach88/docsync/internal/docstore"
)

// Result summarises the work of one or more passes.
type Result struct {
	DocsRead    int
	DocsWritten int
	// LastSeq is the source sequence recorded in the checkpoint.
	LastSeq int64
}

type batch struct {
	changes []docstore.Change
	lastSeq int64
}

// Run replicates every source change past the checkpoint into target and
// returns once the source feed is exhausted.
func Run(ctx context.Context, source, target docstore.Database, opts Options) (Result, error) {
	opts = opts.withDefaults()

	id, err := checkpointID(ctx, source, target, opts)
	if err != nil {
		return Result{}, err
	}
	since, err := readCheckpoint(ctx, source, target, id)
	if err != nil {
		return Result{}, err
	}

	return runFrom(ctx, source, target, opts, id, since)
}

// runFrom reads batches in one goroutine and writes them in another, with
// at most opts.BatchesLimit batches queued in between.
func runFrom(ctx context.Context, source, target docstore.Database, opts Options, id string, since int64) (Result, error) {
	res := Result{LastSeq: since}
	batches := make(chan batch, max(opts.BatchesLimit-1, 0))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(batches)
		seq := since
		for {
			page, err := source.Changes(gctx, docstore.ChangesOptions{
				Since:       seq,
				Limit:       opts.BatchSize,
				IncludeDocs: true,
			})
			if err != nil {
				return fmt.Errorf("read source changes: %w", err)
			}
			if len(page.Results) == 0 {
				return nil
			}

			select {
			case batches <- batch{changes: page.Results, lastSeq: page.LastSeq}:
			case <-gctx.Done():
				return gctx.Err()
			}

			seq = page.LastSeq
			if len(page.Results) < opts.BatchSize {
				return nil
			}
		}
	})

	g.Go(func() error {
		for b := range batches {
			written, err := writeBatch(gctx, target, opts, b)
			if err != nil {
				return err
			}
			if err := writeCheckpoint(gctx, source, target, id, b.lastSeq); err != nil {
				return err
			}
			res.DocsRead += len(b.changes)
			res.DocsWritten += written
			res.LastSeq = b.lastSeq
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return res, err
	}
	return res, nil
}

// writeBatch writes the revisions of b that pass the filter and that the
// target lacks. Returns the number of documents the target applied.
func writeBatch(ctx context.Context, target docstore.Database, opts Options, b batch) (int, error) {
	revs := make(map[string]string, len(b.changes))
	byID := make(map[string]doc.Document, len(b.changes))
	for _, c := range b.changes {
		if c.Doc == nil {
			continue
		}
		d := *c.Doc
		d.ID, d.Rev, d.Deleted = c.ID, c.Rev, c.Deleted
		if !opts.accepts(d) {
			continue
		}
		revs[c.ID] = c.Rev
		byID[c.ID] = d
	}
	if len(revs) == 0 {
		return 0, nil
	}

	missing, err := target.RevsDiff(ctx, revs)
	if err != nil {
		return 0, fmt.Errorf("diff target revisions: %w", err)
	}
	if len(missing) == 0 {
		return 0, nil
	}

	// Keep source commit order.
	want := make(map[string]bool, len(missing))
	for _, id := range missing {
		want[id] = true
	}
	docs := make([]doc.Document, 0, len(missing))
	for _, c := range b.changes {
		if want[c.ID] {
			docs = append(docs, byID[c.ID])
		}
	}

	if opts.BeforeWrite != nil {
		opts.BeforeWrite(docs)
	}
	applied, err := target.BulkWrite(ctx, docs)
	if opts.AfterWrite != nil {
		opts.AfterWrite(docs, applied)
	}
	if err != nil {
		return 0, fmt.Errorf("write target: %w", err)
	}
	return len(applied), nil
}
