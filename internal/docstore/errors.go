package docstore

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for reads of missing or deleted documents.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a write carries a revision other than
	// the document's current one.
	ErrConflict = errors.New("document update conflict")

	// ErrClosed is returned by operations on a closed database.
	ErrClosed = errors.New("database closed")
)

// Error wraps a store failure with the operation and document it concerns.
type Error struct {
	Op  string
	ID  string
	Err error
}

func (e *Error) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func wrap(op, id string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, ID: id, Err: err}
}

// IsNotFound reports whether err is, or wraps, ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict reports whether err is, or wraps, ErrConflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
