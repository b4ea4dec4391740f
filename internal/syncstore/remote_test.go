package syncstore

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docsync/internal/doc"
	"github.com/roach88/docsync/internal/docstore"
	"github.com/roach88/docsync/internal/notify"
	"github.com/roach88/docsync/internal/testutil"
)

// remoteDoc writes a document to the remote as if another device made it.
func remoteDoc(t *testing.T, db docstore.Database, id, clientID string) doc.Document {
	t.Helper()
	actor := doc.Actor{ClientID: clientID}
	d, err := db.Put(context.Background(), doc.Document{
		ID:        id,
		CreatedAt: time.Now().UTC(),
		CreatedBy: &actor,
		DirtyAt:   time.Now().UTC(),
		DirtyBy:   &actor,
		Fields:    map[string]any{"title": id},
	})
	require.NoError(t, err)
	return d
}

func TestRemote_CatchUpPullsWithoutMarkingDirty(t *testing.T) {
	rem := createRemoteDB(t)
	remoteDoc(t, rem, "pre", testClientID)

	s := createTestStore(t, Options{Remote: RemoteOptions{Enabled: true, Database: rem}})

	assert.Equal(t, []string{"pre"}, itemIDs(s.Data().Items), "catch-up completes before Initialize returns")
	assert.Equal(t, 0, s.CountUnuploaded())
}

func TestRemote_LivePullSuppressesDirtyMarking(t *testing.T) {
	rem := createRemoteDB(t)
	s := createTestStore(t, Options{Remote: RemoteOptions{Enabled: true, Database: rem, RetryMin: 10 * time.Millisecond}})

	// Same client id as ours: a reused identity on another device.
	pulled := eventFor(t, s, "same-client")
	remoteDoc(t, rem, "same-client", testClientID)
	waitEvent(t, pulled)

	assert.Equal(t, 0, s.CountUnuploaded())
	assert.Contains(t, itemIDs(s.Data().Items), "same-client")

	// A later local edit of the pulled document is ours to upload.
	_, err := s.EditItem(context.Background(), "same-client", map[string]any{"title": "mine"}, nil)
	require.NoError(t, err)
	waitUnuploaded(t, s, 1)
}

func TestRemote_UploadPushesAndClears(t *testing.T) {
	ctx := context.Background()
	rem := createRemoteDB(t)
	s := createTestStore(t, Options{Remote: RemoteOptions{Enabled: true, Database: rem}})

	added := eventFor(t, s, "item-0001")
	_, err := s.AddItem(ctx, map[string]any{"title": "a"}, nil)
	require.NoError(t, err)
	waitEvent(t, added)
	require.Equal(t, 1, s.CountUnuploaded())

	require.NoError(t, s.Upload(ctx))
	assert.Equal(t, 0, s.CountUnuploaded())
	assert.True(t, s.Meta().TsUpload.After(time.Unix(0, 0)))

	got, err := rem.Get(ctx, "item-0001")
	require.NoError(t, err)
	assert.Equal(t, "a", got.Fields["title"])
}

func TestRemote_UnuploadedRebuiltFromCheckpoint(t *testing.T) {
	ctx := context.Background()
	rem := createRemoteDB(t)
	dir := t.TempDir()
	opts := Options{Name: "todos", Dir: dir, ClientID: testClientID, Remote: RemoteOptions{Enabled: true, Database: rem}}

	s, err := New(opts, WithLogger(quietLogger()))
	require.NoError(t, err)
	require.NoError(t, s.Initialize(ctx))
	a, err := s.AddItem(ctx, map[string]any{"title": "a"}, nil)
	require.NoError(t, err)
	waitUnuploaded(t, s, 1)
	require.NoError(t, s.Upload(ctx))
	b, err := s.AddItem(ctx, map[string]any{"title": "b"}, nil)
	require.NoError(t, err)
	waitUnuploaded(t, s, 1)
	require.NoError(t, s.Deinitialize())

	// Drop the persisted set to prove it is derived, not just reloaded.
	metaDB, err := docstore.SQLiteOpener(dir, quietLogger())("meta_todos")
	require.NoError(t, err)
	cur, err := metaDB.Get(ctx, "meta")
	require.NoError(t, err)
	cur.Fields["unuploadeds"] = map[string]any{}
	_, err = metaDB.Put(ctx, cur)
	require.NoError(t, err)
	require.NoError(t, metaDB.Close())

	r, err := New(opts, WithLogger(quietLogger()))
	require.NoError(t, err)
	require.NoError(t, r.Initialize(ctx))
	defer r.Deinitialize()

	assert.Equal(t, []string{b.ID}, r.Meta().IDs())
	assert.True(t, r.IsUploaded(a))
}

func TestRemote_UnreachableDegradesToLocalOnly(t *testing.T) {
	ctx := context.Background()
	dead := httptest.NewServer(nil)
	url := dead.URL
	dead.Close()

	s := createTestStore(t, Options{Remote: RemoteOptions{
		Enabled:  true,
		URL:      url,
		Timeout:  200 * time.Millisecond,
		RetryMin: time.Hour,
	}})

	added := eventFor(t, s, "item-0001")
	_, err := s.AddItem(ctx, map[string]any{"title": "a"}, nil)
	require.NoError(t, err)
	waitEvent(t, added)

	err = s.Upload(ctx)
	require.Error(t, err)
	assert.True(t, IsConnectivity(err), "got %v", err)
	assert.Equal(t, 1, s.CountUnuploaded(), "failed upload clears nothing")
	assert.True(t, s.Meta().TsUpload.Equal(time.Unix(0, 0)))
}

func TestEchoes_ConsumedOnceByRevision(t *testing.T) {
	s := createTestStore(t, Options{})

	s.expectEchoes([]doc.Document{{ID: "a", Rev: "1-x"}, {ID: "b", Rev: "1-y"}})
	s.settleEchoes([]doc.Document{{ID: "a", Rev: "1-x"}, {ID: "b", Rev: "1-y"}}, []string{"a"})

	assert.False(t, s.consumeEcho("a", "2-z"), "other revision is a local edit")
	assert.True(t, s.consumeEcho("a", "1-x"))
	assert.False(t, s.consumeEcho("a", "1-x"), "removed on first match")
	assert.False(t, s.consumeEcho("b", "1-y"), "not applied, never echoed")
}

func TestEchoes_KeepsEveryPulledRevision(t *testing.T) {
	s := createTestStore(t, Options{})

	s.expectEchoes([]doc.Document{{ID: "a", Rev: "1-x"}})
	s.expectEchoes([]doc.Document{{ID: "a", Rev: "2-y"}})

	assert.True(t, s.consumeEcho("a", "1-x"))
	assert.True(t, s.consumeEcho("a", "2-y"))
}

// blockOn returns a subscriber hook that blocks the local watcher on the
// first change of id until release is called.
func blockOn(t *testing.T, s *Store, id string) (entered <-chan struct{}, release func()) {
	t.Helper()
	in := make(chan struct{})
	gate := make(chan struct{})
	var once sync.Once
	unsub := s.SubscribeFunc(func(ev notify.Event) {
		if ev.Kind != notify.KindChange || ev.Doc == nil || ev.Doc.ID != id {
			return
		}
		once.Do(func() {
			close(in)
			<-gate
		})
	})
	var releaseOnce sync.Once
	release = func() { releaseOnce.Do(func() { close(gate) }) }
	t.Cleanup(func() {
		release()
		unsub()
	})
	return in, release
}

func TestRemote_RepeatedPullsOfOneIDStayClean(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t, Options{})

	entered, release := blockOn(t, s, "slow")
	_, err := s.AddItemWithID(ctx, "slow", map[string]any{"title": "slow"}, nil)
	require.NoError(t, err)
	<-entered

	// Same client id as ours: only the echo flag keeps these revisions out
	// of the unuploaded set.
	actor := doc.Actor{ClientID: testClientID}
	pulled := func(rev, title string) {
		d := doc.Document{ID: "x", Rev: rev, DirtyBy: &actor, CreatedBy: &actor,
			CreatedAt: testutil.Epoch, DirtyAt: testutil.Epoch, Fields: map[string]any{"title": title}}
		s.expectEchoes([]doc.Document{d})
		applied, err := s.local.BulkWrite(ctx, []doc.Document{d})
		require.NoError(t, err)
		s.settleEchoes([]doc.Document{d}, applied)
	}
	pulled("1-aaaa", "first")
	time.Sleep(100 * time.Millisecond)
	pulled("2-bbbb", "second")

	release()
	require.NoError(t, s.Settle(ctx))

	assert.Equal(t, []string{"slow"}, s.Meta().IDs())
	got, err := s.GetItem(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, "2-bbbb", got.Rev)
}

func TestRemote_UploadCoversChangesHandledLate(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t, Options{})

	entered, release := blockOn(t, s, "slow")
	_, err := s.AddItemWithID(ctx, "slow", map[string]any{"title": "slow"}, nil)
	require.NoError(t, err)
	<-entered

	// Committed but not yet seen by the watcher when the upload runs.
	_, err = s.AddItemWithID(ctx, "late", map[string]any{"title": "late"}, nil)
	require.NoError(t, err)

	require.NoError(t, s.Upload(ctx))
	release()
	require.NoError(t, s.Settle(ctx))

	assert.Empty(t, s.Meta().IDs(), "the upload pushed both documents")
}
