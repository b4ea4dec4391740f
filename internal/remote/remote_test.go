package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docsync/internal/doc"
	"github.com/roach88/docsync/internal/docstore"
	"github.com/roach88/docsync/internal/replicate"
)

// setupTestServer starts a server over in-memory databases.
func setupTestServer(t *testing.T) (*httptest.Server, *Server) {
	t.Helper()
	srv := NewServer(docstore.MemoryOpener(nil))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	return ts, srv
}

func setupTestClient(t *testing.T, name string) *Client {
	t.Helper()
	ts, _ := setupTestServer(t)
	c, err := NewClient(ts.URL, name)
	require.NoError(t, err)
	return c
}

func TestClient_PutGetRemove(t *testing.T) {
	c := setupTestClient(t, "notes")
	ctx := context.Background()

	created, err := c.Put(ctx, doc.Document{ID: "a/b", Fields: map[string]any{"title": "slash id"}})
	require.NoError(t, err)
	assert.Equal(t, 1, docstore.Generation(created.Rev))

	got, err := c.Get(ctx, "a/b")
	require.NoError(t, err)
	assert.Equal(t, "slash id", got.Fields["title"])
	assert.Equal(t, created.Rev, got.Rev)

	_, err = c.Put(ctx, doc.Document{ID: "a/b", Fields: map[string]any{"title": "stale"}})
	assert.True(t, docstore.IsConflict(err))

	_, err = c.Remove(ctx, got)
	require.NoError(t, err)

	_, err = c.Get(ctx, "a/b")
	assert.True(t, docstore.IsNotFound(err))
}

func TestClient_InfoAllDocsChanges(t *testing.T) {
	c := setupTestClient(t, "notes")
	ctx := context.Background()

	for _, id := range []string{"x", "y"} {
		_, err := c.Put(ctx, doc.Document{ID: id, Fields: map[string]any{"n": id}})
		require.NoError(t, err)
	}

	info, err := c.Info(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, info.ID)
	assert.Equal(t, 2, info.DocCount)

	all, err := c.AllDocuments(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	res, err := c.Changes(ctx, docstore.ChangesOptions{Since: 1, IncludeDocs: true})
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "y", res.Results[0].ID)
	assert.Equal(t, "y", res.Results[0].Doc.Fields["n"])
}

func TestClient_LocalDocs(t *testing.T) {
	c := setupTestClient(t, "notes")
	ctx := context.Background()

	var cp map[string]any
	assert.True(t, docstore.IsNotFound(c.GetLocal(ctx, "_local/abc=", &cp)))

	require.NoError(t, c.PutLocal(ctx, "_local/abc=", map[string]any{"last_seq": 4}))
	require.NoError(t, c.GetLocal(ctx, "_local/abc=", &cp))
	assert.Equal(t, float64(4), cp["last_seq"])
}

func TestClient_ReplicatesBothWays(t *testing.T) {
	c := setupTestClient(t, "notes")
	ctx := context.Background()

	local, err := docstore.OpenMemory(t.Name())
	require.NoError(t, err)
	defer local.Close()

	_, err = local.Put(ctx, doc.Document{ID: "from-local", Fields: map[string]any{"v": 1}})
	require.NoError(t, err)
	_, err = c.Put(ctx, doc.Document{ID: "from-remote", Fields: map[string]any{"v": 2}})
	require.NoError(t, err)

	_, err = replicate.ReplicateTo(ctx, local, c, replicate.Options{})
	require.NoError(t, err)
	_, err = replicate.Run(ctx, c, local, replicate.Options{})
	require.NoError(t, err)

	_, err = c.Get(ctx, "from-local")
	assert.NoError(t, err)
	_, err = local.Get(ctx, "from-remote")
	assert.NoError(t, err)

	cp, err := replicate.Checkpoint(ctx, local, c, replicate.Options{})
	require.NoError(t, err)
	assert.Positive(t, cp)
}

func TestClient_WatchStreamsOverWebsocket(t *testing.T) {
	c := setupTestClient(t, "notes")
	ctx := context.Background()

	feed, err := c.Watch(ctx, docstore.SinceNow)
	require.NoError(t, err)
	defer feed.Close()

	// The server subscribes after the upgrade; retry the write until the
	// change is observed.
	deadline := time.After(5 * time.Second)
	_, err = c.Put(ctx, doc.Document{ID: "live", Fields: map[string]any{"v": 1}})
	require.NoError(t, err)

	for {
		select {
		case ch, ok := <-feed.Changes():
			require.True(t, ok, "feed closed: %v", feed.Err())
			if ch.ID == "live" {
				return
			}
		case <-time.After(200 * time.Millisecond):
			cur, err := c.Get(ctx, "live")
			require.NoError(t, err)
			_, err = c.Put(ctx, cur.WithPayload(map[string]any{"v": 2}))
			require.NoError(t, err)
		case <-deadline:
			t.Fatal("no change received")
		}
	}
}

func TestClient_WatchCloseStops(t *testing.T) {
	c := setupTestClient(t, "notes")

	feed, err := c.Watch(context.Background(), 0)
	require.NoError(t, err)
	require.NoError(t, feed.Close())

	_, ok := <-feed.Changes()
	assert.False(t, ok)
}

func TestNewClient_Validates(t *testing.T) {
	_, err := NewClient("ftp://example.com", "db")
	assert.Error(t, err)

	_, err = NewClient("http://example.com", "")
	assert.Error(t, err)

	c, err := NewClient("http://example.com/base/", "db")
	require.NoError(t, err)
	assert.Equal(t, "http://example.com/base/db", c.URL())
}

func TestServer_RejectsBadNames(t *testing.T) {
	ts, _ := setupTestServer(t)

	resp, err := http.Get(ts.URL + "/_system")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestProbe(t *testing.T) {
	ts, _ := setupTestServer(t)
	ctx := context.Background()

	require.NoError(t, Probe(ctx, nil, ts.URL+"/", time.Second))

	dead := httptest.NewServer(http.NotFoundHandler())
	url := dead.URL
	dead.Close()

	err := Probe(ctx, nil, url, time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnreachable)
}

func TestClient_Ping(t *testing.T) {
	c := setupTestClient(t, "notes")
	assert.NoError(t, c.Ping(context.Background()))
}
