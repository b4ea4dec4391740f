package syncstore

import (
	"errors"
	"fmt"

	"github.com/roach88/docsync/internal/docstore"
)

// ErrNotFound is returned, wrapped, for reads and edits of ids that do not
// exist. Match it with errors.Is.
var ErrNotFound = docstore.ErrNotFound

// ErrNotInitialized is returned by operations called outside the
// Initialize/Deinitialize window.
var ErrNotInitialized = errors.New("store not initialized")

// ErrorCode categorizes store errors.
type ErrorCode string

const (
	// CodeNotConfigured: a required option is missing. Fatal at startup.
	CodeNotConfigured ErrorCode = "NOT_CONFIGURED"

	// CodeConnectivity: the remote did not answer within the probe timeout.
	CodeConnectivity ErrorCode = "CONNECTIVITY"

	// CodeConflict: a write carried a stale revision. Re-read and retry.
	CodeConflict ErrorCode = "CONFLICT"

	// CodeReplication: a pull or push failed after the remote was reached.
	CodeReplication ErrorCode = "REPLICATION"
)

// Error is a categorized store error.
type Error struct {
	Code ErrorCode
	// Op is the facade operation that failed, e.g. "edit item".
	Op string
	// ID is the document involved, if any.
	ID  string
	Err error
}

func (e *Error) Error() string {
	msg := string(e.Code) + ": " + e.Op
	if e.ID != "" {
		msg += " " + e.ID
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func hasCode(err error, code ErrorCode) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// IsNotConfigured reports whether err is a configuration error.
func IsNotConfigured(err error) bool { return hasCode(err, CodeNotConfigured) }

// IsConnectivity reports whether err is a reachability failure.
func IsConnectivity(err error) bool { return hasCode(err, CodeConnectivity) }

// IsConflict reports whether err is a revision conflict.
func IsConflict(err error) bool { return hasCode(err, CodeConflict) }

// IsReplication reports whether err is a replication failure.
func IsReplication(err error) bool { return hasCode(err, CodeReplication) }

func notConfigured(msg string) error {
	return &Error{Code: CodeNotConfigured, Op: "configure", Err: errors.New(msg)}
}

// writeError maps store write failures onto the facade taxonomy. Conflicts
// become CodeConflict; everything else is wrapped as is.
func writeError(op, id string, err error) error {
	if docstore.IsConflict(err) {
		return &Error{Code: CodeConflict, Op: op, ID: id, Err: err}
	}
	return fmt.Errorf("%s %s: %w", op, id, err)
}
