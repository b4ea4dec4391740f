package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/docsync/internal/docstore"
	"github.com/roach88/docsync/internal/remote"
)

const shutdownTimeout = 5 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the data directory as a remote endpoint",
		Long: `Expose every database in the data directory over HTTP so other
docsync clients can use it as their remote.

Databases are opened on first use and created when missing.

Example:
  docsync serve --dir /var/lib/docsync --addr :5984`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", ":5984", "listen address")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	logger := opts.newLogger(cmd.ErrOrStderr())

	opener, err := docstore.NewOpener(cfg.Engine, cfg.Dir, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid config", err)
	}
	srv := remote.NewServer(opener, remote.WithServerLogger(logger))
	defer func() {
		if closeErr := srv.Close(); closeErr != nil {
			logger.Error("error closing databases", "error", closeErr)
		}
	}()

	ln, err := net.Listen("tcp", opts.Addr)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}
	httpSrv := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := signalContext(cmd.Context(), logger)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpSrv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	logger.Info("serving", "addr", ln.Addr().String(), "dir", cfg.Dir, "engine", cfg.Engine)
	fmt.Fprintf(cmd.OutOrStdout(), "Serving %s on http://%s\n", cfg.Dir, ln.Addr())
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	if err := g.Wait(); err != nil {
		return WrapExitError(ExitFailure, "server error", err)
	}
	logger.Info("server stopped gracefully")
	return nil
}
