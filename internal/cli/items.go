package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/docsync/internal/doc"
	"github.com/roach88/docsync/internal/syncstore"
)

// ItemOptions holds flags shared by the document commands.
type ItemOptions struct {
	*RootOptions
	Data string
	ID   string
	User string
}

func (o *ItemOptions) payloads() (data, user map[string]any, err error) {
	if data, err = parseObject("data", o.Data); err != nil {
		return nil, nil, err
	}
	if user, err = parseObject("user", o.User); err != nil {
		return nil, nil, err
	}
	return data, user, nil
}

// NewAddCommand creates the add command.
func NewAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ItemOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a document",
		Long: `Add a document with the given JSON payload.

Envelope keys (_id, _rev, createdAt, dirtyBy, ...) in the payload are
dropped. Without --id a time-ordered UUIDv7 is generated.

Example:
  docsync add --data '{"title":"milk"}'
  docsync add --id shopping --data '{"title":"milk"}' --user '{"name":"ann"}'`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Data, "data", "{}", "document payload as JSON")
	cmd.Flags().StringVar(&opts.ID, "id", "", "document id (generated when empty)")
	cmd.Flags().StringVar(&opts.User, "user", "", "user attributes recorded in provenance, as JSON")

	return cmd
}

func runAdd(opts *ItemOptions, cmd *cobra.Command) error {
	data, user, err := opts.payloads()
	if err != nil {
		return err
	}

	return opts.withStore(cmd, func(ctx context.Context, s *syncstore.Store) error {
		var d doc.Document
		if opts.ID != "" {
			d, err = s.AddItemWithID(ctx, opts.ID, data, user)
		} else {
			d, err = s.AddItem(ctx, data, user)
		}
		if err != nil {
			return fail("failed to add document", err)
		}
		return opts.formatter(cmd).Success(d, "Added "+d.ID)
	})
}

// NewEditCommand creates the edit command.
func NewEditCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ItemOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Merge fields into a document",
		Long: `Merge the given JSON fields into an existing document.

Example:
  docsync edit shopping --data '{"done":true}'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEdit(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Data, "data", "{}", "fields to merge as JSON")
	cmd.Flags().StringVar(&opts.User, "user", "", "user attributes recorded in provenance, as JSON")

	return cmd
}

func runEdit(opts *ItemOptions, id string, cmd *cobra.Command) error {
	data, user, err := opts.payloads()
	if err != nil {
		return err
	}

	return opts.withStore(cmd, func(ctx context.Context, s *syncstore.Store) error {
		d, err := s.EditItem(ctx, id, data, user)
		if err != nil {
			return fail("failed to edit document", err)
		}
		return opts.formatter(cmd).Success(d, "Updated "+d.ID)
	})
}

// NewRemoveCommand creates the rm command.
func NewRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ItemOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a document",
		Long: `Delete a document.

A document the remote has never seen is removed outright (hard delete).
Otherwise it is tombstoned with deletedAt/deletedBy so the deletion can be
uploaded (soft delete). Removing a tombstone purges it.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemove(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.User, "user", "", "user attributes recorded in provenance, as JSON")

	return cmd
}

func runRemove(opts *ItemOptions, id string, cmd *cobra.Command) error {
	_, user, err := opts.payloads()
	if err != nil {
		return err
	}

	return opts.withStore(cmd, func(ctx context.Context, s *syncstore.Store) error {
		mode, err := s.DeleteItem(ctx, id, user)
		if err != nil {
			return fail("failed to delete document", err)
		}
		return opts.formatter(cmd).Success(
			map[string]string{"id": id, "mode": mode.String()},
			fmt.Sprintf("Deleted %s (%s)", id, mode),
		)
	})
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ItemOptions{RootOptions: rootOpts}

	return &cobra.Command{
		Use:           "get <id>",
		Short:         "Show a document",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withStore(cmd, func(ctx context.Context, s *syncstore.Store) error {
				d, err := s.GetItem(ctx, args[0])
				if err != nil {
					return fail("failed to get document", err)
				}
				return opts.formatter(cmd).Success(d, renderDetail(d, s.IsUploaded(d)))
			})
		},
	}
}
