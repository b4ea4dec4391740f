package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/docsync/internal/config"
	"github.com/roach88/docsync/internal/syncstore"
)

// loadConfig resolves the effective config: defaults < file < flags.
// Validation is left to the consumer since serve needs no store name.
func (o *RootOptions) loadConfig() (config.Config, error) {
	load := config.Load
	if o.ConfigPath == config.DefaultPath {
		load = config.LoadOptional
	}
	cfg, err := load(o.ConfigPath)
	if err != nil {
		return cfg, WrapExitError(ExitCommandError, "failed to load config", err)
	}

	if o.Name != "" {
		cfg.Name = o.Name
	}
	if o.Dir != "" {
		cfg.Dir = o.Dir
	}
	if o.Engine != "" {
		cfg.Engine = o.Engine
	}
	if o.ClientID != "" {
		cfg.ClientID = o.ClientID
	}
	if o.Remote != "" {
		cfg.Remote.Enabled = true
		cfg.Remote.URL = o.Remote
	}
	if o.Offline {
		cfg.Remote.Enabled = false
	}
	return cfg, nil
}

// newLogger builds the command logger: text on w, Debug under --verbose.
func (o *RootOptions) newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// withStore opens and initializes the configured store, runs fn, and
// deinitializes the store again.
func (o *RootOptions) withStore(cmd *cobra.Command, fn func(ctx context.Context, s *syncstore.Store) error) error {
	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}
	storeOpts, err := cfg.StoreOptions()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid config", err)
	}

	logger := o.newLogger(cmd.ErrOrStderr())
	options := append([]syncstore.Option{syncstore.WithLogger(logger)}, o.StoreOptions...)
	s, err := syncstore.New(storeOpts, options...)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid config", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	logger.Debug("opening store", "name", cfg.Name, "dir", cfg.Dir, "engine", cfg.Engine, "remote", cfg.Remote.Enabled)
	if err := s.Initialize(ctx); err != nil {
		return WrapExitError(ExitFailure, "failed to open store", err)
	}
	defer func() {
		if closeErr := s.Deinitialize(); closeErr != nil {
			logger.Error("error closing store", "error", closeErr)
		}
	}()

	return fn(ctx, s)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context, logger *slog.Logger) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// parseObject decodes a JSON object flag. Empty means nil.
func parseObject(flag, raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("invalid --%s JSON", flag), err)
	}
	if m == nil {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("--%s must be a JSON object", flag))
	}
	return m, nil
}

// fail wraps an operation error with ExitFailure unless it already carries
// an exit code.
func fail(message string, err error) error {
	if _, ok := err.(*ExitError); ok {
		return err
	}
	return WrapExitError(ExitFailure, message, err)
}
