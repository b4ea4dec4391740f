package syncstore

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/docsync/internal/doc"
	"github.com/roach88/docsync/internal/docstore"
	"github.com/roach88/docsync/internal/notify"
	"github.com/roach88/docsync/internal/testutil"
)

const testClientID = "client-1"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// createTestStore initializes a store over a fresh sqlite directory and
// deinitializes it at cleanup.
func createTestStore(t *testing.T, opts Options) *Store {
	t.Helper()
	if opts.Name == "" {
		opts.Name = "todos"
	}
	if opts.Dir == "" {
		opts.Dir = t.TempDir()
	}
	if opts.ClientID == "" {
		opts.ClientID = testClientID
	}

	s, err := New(opts,
		WithLogger(quietLogger()),
		WithClock(testutil.NewStepClock(testutil.Epoch, time.Second)),
		WithIDGenerator(testutil.NewCountingIDGenerator("item")),
	)
	require.NoError(t, err)
	require.NoError(t, s.Initialize(context.Background()))
	t.Cleanup(func() { s.Deinitialize() })
	return s
}

// createRemoteDB opens an in-memory database to act as the remote.
func createRemoteDB(t *testing.T) docstore.Database {
	t.Helper()
	db, err := docstore.MemoryOpener(quietLogger())("remote")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// eventFor returns a channel that receives the first change event for id.
func eventFor(t *testing.T, s *Store, id string) <-chan notify.Event {
	t.Helper()
	ch := make(chan notify.Event, 1)
	unsub := s.SubscribeFunc(func(ev notify.Event) {
		if ev.Kind == notify.KindChange && ev.Doc != nil && ev.Doc.ID == id {
			select {
			case ch <- ev:
			default:
			}
		}
	})
	t.Cleanup(unsub)
	return ch
}

func waitEvent(t *testing.T, ch <-chan notify.Event) notify.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change event")
		return notify.Event{}
	}
}

func waitUnuploaded(t *testing.T, s *Store, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return s.CountUnuploaded() == n },
		5*time.Second, 5*time.Millisecond, "want %d unuploaded, have %d", n, s.CountUnuploaded())
}

func itemIDs(items []doc.Document) []string {
	out := []string{}
	for _, d := range items {
		out = append(out, d.ID)
	}
	return out
}
