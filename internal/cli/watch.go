package cli

import (
	"context"
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"github.com/roach88/docsync/internal/doc"
	"github.com/roach88/docsync/internal/syncstore"
)

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print query results whenever they change",
		Long: `Subscribe to a query and print its results on every change, local
or pulled from the remote, until interrupted.

Bursts of changes are coalesced into one delivery.

Example:
  docsync watch --filter 'done == false' --sort title
  docsync watch --remote http://localhost:5984`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, cmd)
		},
	}
	opts.bind(cmd)

	return cmd
}

func runWatch(opts *QueryOptions, cmd *cobra.Command) error {
	q, err := opts.query()
	if err != nil {
		return err
	}

	return opts.withStore(cmd, func(ctx context.Context, s *syncstore.Store) error {
		logger := opts.newLogger(cmd.ErrOrStderr())
		ctx, cancel := signalContext(ctx, logger)
		defer cancel()

		out := opts.formatter(cmd)
		var mu sync.Mutex
		deliveries := 0
		unsubscribe, err := s.SubscribeQuery(ctx, q, func(docs []doc.Document, err error) {
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.Warn("query failed", "error", err)
				return
			}
			deliveries++
			text := fmt.Sprintf("--- %d documents\n%s", len(docs), renderList(docs, s.IsUploaded))
			if err := out.Success(docs, text); err != nil {
				logger.Error("write results", "error", err)
			}
		})
		if err != nil {
			return fail("failed to subscribe", err)
		}
		defer unsubscribe()

		logger.Info("watching", "store", s.Name(), "remote", s.RemoteEnabled())
		<-ctx.Done()

		mu.Lock()
		logger.Debug("watch stopped", "deliveries", deliveries)
		mu.Unlock()
		return nil
	})
}
