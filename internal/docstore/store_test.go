package docstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_KeepsInstanceIDAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s1, err := Open(path)
	require.NoError(t, err)
	info1, err := s1.Info(ctx)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()
	info2, err := s2.Info(ctx)
	require.NoError(t, err)

	assert.NotEmpty(t, info1.ID)
	assert.Equal(t, info1.ID, info2.ID)
}

func TestOpen_AppliesPragmas(t *testing.T) {
	s := createTestStore(t)

	var mode string
	require.NoError(t, s.db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	var version int
	require.NoError(t, s.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, currentSchemaVersion, version)
}

func TestOpen_RejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.db.Exec("PRAGMA user_version = 99")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "newer than supported")
}

func TestClose_Idempotent(t *testing.T) {
	s := createTestStore(t)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.Get(context.Background(), "x")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestOpenMemory_SharedByName(t *testing.T) {
	ctx := context.Background()

	a, err := OpenMemory("shared-by-name")
	require.NoError(t, err)
	defer a.Close()
	b, err := OpenMemory("shared-by-name")
	require.NoError(t, err)
	defer b.Close()

	mustPut(t, a, "doc-1", "hello")

	got, err := b.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Fields["title"])
}

func TestNewOpener(t *testing.T) {
	dir := t.TempDir()

	open, err := NewOpener(EngineSQLite, dir, nil)
	require.NoError(t, err)
	db, err := open("notes")
	require.NoError(t, err)
	defer db.Close()
	assert.FileExists(t, filepath.Join(dir, "notes.db"))

	mem, err := NewOpener(EngineMemory, "", nil)
	require.NoError(t, err)
	mdb, err := mem("notes")
	require.NoError(t, err)
	defer mdb.Close()

	_, err = NewOpener("leveldb", dir, nil)
	assert.Error(t, err)
}
