// Package dirty decides upload state and delete mode from the meta record.
// Every function here is pure.
package dirty

import (
	"github.com/roach88/docsync/internal/doc"
	"github.com/roach88/docsync/internal/meta"
)

// DeleteMode is the outcome of ClassifyDelete.
type DeleteMode int

const (
	// Soft writes a tombstone (deletedAt/deletedBy) that stays dirty until
	// the next upload.
	Soft DeleteMode = iota + 1
	// Hard removes the document from the store.
	Hard
)

func (m DeleteMode) String() string {
	switch m {
	case Soft:
		return "soft"
	case Hard:
		return "hard"
	default:
		return "unknown"
	}
}

// IsUploaded reports whether d has no local edit pending upload.
func IsUploaded(d doc.Document, rec meta.Record) bool {
	return !rec.Unuploadeds[d.ID]
}

// CountUnuploaded returns the number of ids pending upload.
func CountUnuploaded(rec meta.Record) int {
	return len(rec.Unuploadeds)
}

// ClassifyDelete returns Hard when d is already a tombstone or was created
// after the last upload (the remote never saw it), Soft otherwise.
func ClassifyDelete(d doc.Document, rec meta.Record) DeleteMode {
	if !d.DeletedAt.IsZero() {
		return Hard
	}
	if d.CreatedAt.After(rec.TsUpload) {
		return Hard
	}
	return Soft
}
