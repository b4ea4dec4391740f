package replicate

import (
	"context"

	"github.com/roach88/docsync/internal/docstore"
)

// ReplicateFrom pulls remote into local in the background.
func ReplicateFrom(ctx context.Context, local, remote docstore.Database, opts Options) *Replication {
	return Start(ctx, remote, local, opts)
}

// ReplicateTo pushes local into remote once and returns when done.
func ReplicateTo(ctx context.Context, local, remote docstore.Database, opts Options) (Result, error) {
	return Run(ctx, local, remote, opts)
}
