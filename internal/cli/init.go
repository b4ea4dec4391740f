package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/docsync/internal/config"
)

// InitOptions holds flags for the init command.
type InitOptions struct {
	*RootOptions
	Force bool
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "init <name>",
		Short: "Write a default config file",
		Long: `Write a config file for store <name> with the built-in defaults.

Global store flags (--dir, --engine, --remote, --client-id) are written
into the file.

Example:
  docsync init todos
  docsync init todos --remote http://localhost:5984 -c todos.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Force, "force", false, "overwrite an existing config file")

	return cmd
}

func runInit(opts *InitOptions, name string, cmd *cobra.Command) error {
	path := opts.ConfigPath

	if _, err := os.Stat(path); err == nil && !opts.Force {
		return NewExitError(ExitCommandError, fmt.Sprintf("config %s already exists (use --force to overwrite)", path))
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return WrapExitError(ExitCommandError, "failed to stat config", err)
	}

	cfg := config.Default()
	cfg.Name = name
	if opts.Dir != "" {
		cfg.Dir = opts.Dir
	}
	if opts.Engine != "" {
		cfg.Engine = opts.Engine
	}
	if opts.ClientID != "" {
		cfg.ClientID = opts.ClientID
	}
	if opts.Remote != "" {
		cfg.Remote.Enabled = true
		cfg.Remote.URL = opts.Remote
	}
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid config", err)
	}

	if err := cfg.Write(path); err != nil {
		return WrapExitError(ExitFailure, "failed to write config", err)
	}

	return opts.formatter(cmd).Success(map[string]string{"path": path, "name": name}, "Wrote "+path)
}
