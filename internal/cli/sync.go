package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/docsync/internal/syncstore"
)

// StatusReport is the status command's JSON payload.
type StatusReport struct {
	Name       string    `json:"name"`
	ClientID   string    `json:"client_id"`
	Remote     bool      `json:"remote"`
	TsUpload   time.Time `json:"ts_upload"`
	Unuploaded []string  `json:"unuploaded"`
}

func (r StatusReport) String() string {
	var b strings.Builder
	remote := "disabled"
	if r.Remote {
		remote = "enabled"
	}
	last := "never"
	if r.TsUpload.Unix() > 0 {
		last = r.TsUpload.UTC().Format(time.RFC3339)
	}
	fmt.Fprintf(&b, "store:       %s\n", r.Name)
	fmt.Fprintf(&b, "client:      %s\n", r.ClientID)
	fmt.Fprintf(&b, "remote:      %s\n", remote)
	fmt.Fprintf(&b, "last upload: %s\n", last)
	fmt.Fprintf(&b, "unuploaded:  %d", len(r.Unuploaded))
	for _, id := range r.Unuploaded {
		fmt.Fprintf(&b, "\n  %s", id)
	}
	return b.String()
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "status",
		Short:         "Show client identity and pending uploads",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withStore(cmd, func(ctx context.Context, s *syncstore.Store) error {
				rec := s.Meta()
				report := StatusReport{
					Name:       s.Name(),
					ClientID:   rec.ClientID,
					Remote:     s.RemoteEnabled(),
					TsUpload:   rec.TsUpload,
					Unuploaded: rec.IDs(),
				}
				if report.Unuploaded == nil {
					report.Unuploaded = []string{}
				}
				return rootOpts.formatter(cmd).Success(report, report.String())
			})
		},
	}
}

// NewUploadCommand creates the upload command.
func NewUploadCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "upload",
		Short: "Push local edits to the remote",
		Long: `Push local edits to the remote and clear the unuploaded set.

Without a remote only the bookkeeping runs: the unuploaded set is cleared
and the upload time is stamped.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withStore(cmd, func(ctx context.Context, s *syncstore.Store) error {
				before := s.CountUnuploaded()
				if err := s.Upload(ctx); err != nil {
					return fail("upload failed", err)
				}
				after := s.CountUnuploaded()
				return rootOpts.formatter(cmd).Success(
					map[string]int{"uploaded": before - after, "unuploaded": after},
					fmt.Sprintf("Uploaded %d documents, %d pending", before-after, after),
				)
			})
		},
	}
}
