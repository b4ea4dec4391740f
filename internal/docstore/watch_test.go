package docstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nextChange(t *testing.T, f *Feed) Change {
	t.Helper()
	select {
	case c, ok := <-f.Changes():
		require.True(t, ok, "feed closed unexpectedly")
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change")
		return Change{}
	}
}

func TestWatch_SinceNowSkipsHistory(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	mustPut(t, s, "old", "before watch")

	f, err := s.Watch(ctx, SinceNow)
	require.NoError(t, err)
	defer f.Close()

	mustPut(t, s, "new", "after watch")

	c := nextChange(t, f)
	assert.Equal(t, "new", c.ID)
	require.NotNil(t, c.Doc)
	assert.Equal(t, "after watch", c.Doc.Fields["title"])
}

func TestWatch_DeliversInCommitOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	f, err := s.Watch(ctx, SinceNow)
	require.NoError(t, err)
	defer f.Close()

	a := mustPut(t, s, "a", "1")
	mustPut(t, s, "b", "2")
	_, err = s.Remove(ctx, a)
	require.NoError(t, err)

	first := nextChange(t, f)
	second := nextChange(t, f)
	third := nextChange(t, f)

	assert.Equal(t, "a", first.ID)
	assert.Equal(t, "b", second.ID)
	assert.Equal(t, "a", third.ID)
	assert.True(t, third.Deleted)
	assert.Less(t, first.Seq, second.Seq)
	assert.Less(t, second.Seq, third.Seq)
}

func TestWatch_CloseStopsDelivery(t *testing.T) {
	s := createTestStore(t)

	f, err := s.Watch(context.Background(), SinceNow)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	mustPut(t, s, "a", "1")

	_, ok := <-f.Changes()
	assert.False(t, ok, "closed feed must not deliver")
	assert.NoError(t, f.Err())
}

func TestWatch_StoreCloseEndsFeeds(t *testing.T) {
	s := createTestStore(t)

	f, err := s.Watch(context.Background(), SinceNow)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	select {
	case <-f.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("feed did not stop on store close")
	}

	_, err = s.Watch(context.Background(), SinceNow)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestWatch_SeesWritesFromAnotherHandle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.db")
	ctx := context.Background()

	reader, err := Open(path)
	require.NoError(t, err)
	defer reader.Close()
	writer, err := Open(path)
	require.NoError(t, err)
	defer writer.Close()

	f, err := reader.Watch(ctx, SinceNow)
	require.NoError(t, err)
	defer f.Close()

	mustPut(t, writer, "x", "from another handle")

	c := nextChange(t, f)
	assert.Equal(t, "x", c.ID)
}
