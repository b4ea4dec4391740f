package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/docsync/internal/config"
	"github.com/roach88/docsync/internal/syncstore"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// ConfigPath is the YAML config file. The default path may be absent.
	ConfigPath string

	// Store overrides, applied over the config file when set.
	Name     string
	Dir      string
	Engine   string
	Remote   string
	Offline  bool
	ClientID string

	// StoreOptions are passed to every store the CLI opens (tests inject
	// clocks and id generators here).
	StoreOptions []syncstore.Option
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the docsync CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docsync",
		Short: "docsync - offline-first document store",
		Long: `An offline-first document store that keeps a local database in sync
with a remote endpoint and tracks which local edits are still unuploaded.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return WrapExitError(ExitCommandError, "bad flags",
					fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.StringVarP(&opts.ConfigPath, "config", "c", config.DefaultPath, "config file")
	flags.StringVar(&opts.Name, "name", "", "store name")
	flags.StringVar(&opts.Dir, "dir", "", "data directory")
	flags.StringVar(&opts.Engine, "engine", "", "storage engine (sqlite|memory)")
	flags.StringVar(&opts.Remote, "remote", "", "remote endpoint URL (enables remote sync)")
	flags.BoolVar(&opts.Offline, "offline", false, "disable remote sync")
	flags.StringVar(&opts.ClientID, "client-id", "", "client id for a new store")

	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewAddCommand(opts))
	cmd.AddCommand(NewEditCommand(opts))
	cmd.AddCommand(NewRemoveCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewUploadCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
