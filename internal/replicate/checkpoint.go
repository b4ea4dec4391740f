package replicate

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/roach88/docsync/internal/canonical"
	"github.com/roach88/docsync/internal/docstore"
)

// LocalPrefix marks checkpoint document ids.
const LocalPrefix = "_local/"

type checkpoint struct {
	LastSeq int64 `json:"last_seq"`
}

// ID derives the checkpoint document id for replicating sourceID into
// targetID under the filter options in opts.
//
// Layout: "_local/" + base64(md5(source + target + filter + docIDs +
// selector)) with "/" replaced by "." and "+" by "_". The selector is
// serialised canonically so equal selectors always hash equally.
func ID(sourceID, targetID string, opts Options) (string, error) {
	var b strings.Builder
	b.WriteString(sourceID)
	b.WriteString(targetID)
	b.WriteString(opts.FilterName)

	if len(opts.DocIDs) > 0 {
		ids, err := canonical.Marshal(opts.DocIDs)
		if err != nil {
			return "", fmt.Errorf("replication id: %w", err)
		}
		b.Write(ids)
	}
	if opts.Selector != nil {
		sel, err := canonical.Marshal(opts.Selector)
		if err != nil {
			return "", fmt.Errorf("replication id: %w", err)
		}
		b.Write(sel)
	}

	sum := md5.Sum([]byte(b.String()))
	enc := base64.StdEncoding.EncodeToString(sum[:])
	enc = strings.NewReplacer("/", ".", "+", "_").Replace(enc)
	return LocalPrefix + enc, nil
}

// Checkpoint returns the source sequence up to which source has been
// replicated into target, or 0 when no agreeing checkpoint exists.
func Checkpoint(ctx context.Context, source, target docstore.Database, opts Options) (int64, error) {
	id, err := checkpointID(ctx, source, target, opts)
	if err != nil {
		return 0, err
	}
	return readCheckpoint(ctx, source, target, id)
}

func checkpointID(ctx context.Context, source, target docstore.Database, opts Options) (string, error) {
	src, err := source.Info(ctx)
	if err != nil {
		return "", fmt.Errorf("source info: %w", err)
	}
	tgt, err := target.Info(ctx)
	if err != nil {
		return "", fmt.Errorf("target info: %w", err)
	}
	return ID(src.ID, tgt.ID, opts)
}

// readCheckpoint trusts a checkpoint only when both sides agree on it.
func readCheckpoint(ctx context.Context, source, target docstore.Database, id string) (int64, error) {
	var s, t checkpoint
	if err := source.GetLocal(ctx, id, &s); err != nil {
		if docstore.IsNotFound(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read source checkpoint: %w", err)
	}
	if err := target.GetLocal(ctx, id, &t); err != nil {
		if docstore.IsNotFound(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read target checkpoint: %w", err)
	}
	if s.LastSeq != t.LastSeq {
		return 0, nil
	}
	return s.LastSeq, nil
}

func writeCheckpoint(ctx context.Context, source, target docstore.Database, id string, seq int64) error {
	cp := checkpoint{LastSeq: seq}
	if err := target.PutLocal(ctx, id, cp); err != nil {
		return fmt.Errorf("write target checkpoint: %w", err)
	}
	if err := source.PutLocal(ctx, id, cp); err != nil {
		return fmt.Errorf("write source checkpoint: %w", err)
	}
	return nil
}
