package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Execute runs the CLI with args and returns the process exit code. Errors
// are reported on stderr, or as a JSON error response on stdout under
// --format json.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts := &RootOptions{}
	cmd := newRootCommand(opts)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Reported {
		return exitErr.Code
	}

	if opts.Format == "json" {
		out := &OutputFormatter{Format: "json", Writer: stdout, ErrWriter: stderr}
		if writeErr := out.Error(ErrorCode(err), err.Error(), nil); writeErr == nil {
			return GetExitCode(err)
		}
	}
	fmt.Fprintln(stderr, "Error:", err)
	return GetExitCode(err)
}
