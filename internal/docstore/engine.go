package docstore

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Engine names accepted by NewOpener.
const (
	EngineSQLite = "sqlite"
	EngineMemory = "memory"
)

// Opener opens the named database of one storage engine.
type Opener func(name string) (Database, error)

// NewOpener selects a storage engine. dir is where the sqlite engine keeps
// one "<name>.db" file per database; the memory engine ignores it.
func NewOpener(engine, dir string, logger *slog.Logger) (Opener, error) {
	switch engine {
	case EngineSQLite, "":
		return SQLiteOpener(dir, logger), nil
	case EngineMemory:
		return MemoryOpener(logger), nil
	default:
		return nil, fmt.Errorf("unknown storage engine %q", engine)
	}
}

// SQLiteOpener opens file-backed databases under dir, creating dir if needed.
func SQLiteOpener(dir string, logger *slog.Logger) Opener {
	return func(name string) (Database, error) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		return Open(filepath.Join(dir, name+".db"), WithLogger(logger))
	}
}

// MemoryOpener opens in-memory databases. Each opener has its own
// namespace, so two openers never share contents.
func MemoryOpener(logger *slog.Logger) Opener {
	ns := uuid.NewString()
	return func(name string) (Database, error) {
		return OpenMemory(ns+"-"+name, WithLogger(logger))
	}
}
