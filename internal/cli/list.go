package cli

import (
	"context"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/docsync/internal/doc"
	"github.com/roach88/docsync/internal/query"
	"github.com/roach88/docsync/internal/syncstore"
)

// QueryOptions holds the query flags of ls and watch.
type QueryOptions struct {
	*RootOptions
	Filter string
	Sort   string
	Limit  int
	Since  string
}

func (o *QueryOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.Filter, "filter", "", `filter expression, e.g. 'done == false && rank > 2'`)
	cmd.Flags().StringVar(&o.Sort, "sort", "", "comma-separated sort fields, '-' prefix for descending")
	cmd.Flags().IntVar(&o.Limit, "limit", 0, "maximum number of documents (0 = no limit)")
	cmd.Flags().StringVar(&o.Since, "since", "", "only documents touched at or after this RFC 3339 time")
}

func (o *QueryOptions) query() (query.Query, error) {
	sort, err := query.ParseSort(o.Sort)
	if err != nil {
		return query.Query{}, WrapExitError(ExitCommandError, "invalid --sort", err)
	}
	q := query.Query{Filter: o.Filter, Sort: sort, Limit: o.Limit}
	if o.Since != "" {
		since, err := time.Parse(time.RFC3339, o.Since)
		if err != nil {
			return query.Query{}, WrapExitError(ExitCommandError, "invalid --since", err)
		}
		q.Since = since
	}
	if _, err := query.Compile(q); err != nil {
		return query.Query{}, WrapExitError(ExitCommandError, "invalid --filter", err)
	}
	return q, nil
}

func renderList(docs []doc.Document, uploaded func(doc.Document) bool) string {
	if len(docs) == 0 {
		return "No documents"
	}
	lines := make([]string, len(docs))
	for i, d := range docs {
		lines[i] = renderLine(d, uploaded(d))
	}
	return strings.Join(lines, "\n")
}

// NewListCommand creates the ls command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List live documents",
		Long: `List live documents, optionally filtered, sorted and limited.

Filters are expr-lang expressions over the flattened document: payload
fields plus _id, _rev, createdAt, updatedAt and dirtyAt. Missing fields
evaluate to nil. Ties in the sort order are broken by id.

Example:
  docsync ls
  docsync ls --filter 'done == false' --sort '-rank,title' --limit 10`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(opts, cmd)
		},
	}
	opts.bind(cmd)

	return cmd
}

func runList(opts *QueryOptions, cmd *cobra.Command) error {
	q, err := opts.query()
	if err != nil {
		return err
	}

	return opts.withStore(cmd, func(ctx context.Context, s *syncstore.Store) error {
		docs, err := s.GetDocuments(ctx, q)
		if err != nil {
			return fail("failed to list documents", err)
		}
		return opts.formatter(cmd).Success(docs, renderList(docs, s.IsUploaded))
	})
}
