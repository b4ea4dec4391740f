package docstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/docsync/internal/doc"
)

// createTestStore opens a file-backed store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// mustPut writes a new document with a single payload field.
func mustPut(t *testing.T, s Database, id, title string) doc.Document {
	t.Helper()
	d, err := s.Put(context.Background(), doc.Document{
		ID:     id,
		Fields: map[string]any{"title": title},
	})
	if err != nil {
		t.Fatalf("Put(%s) failed: %v", id, err)
	}
	return d
}
