package docstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllDocuments_OrderedByID(t *testing.T) {
	s := createTestStore(t)

	mustPut(t, s, "b", "two")
	mustPut(t, s, "a", "one")
	mustPut(t, s, "c", "three")

	docs, err := s.AllDocuments(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "a", docs[0].ID)
	assert.Equal(t, "b", docs[1].ID)
	assert.Equal(t, "c", docs[2].ID)
}

func TestAllDocuments_EmptyIsNotNil(t *testing.T) {
	s := createTestStore(t)

	docs, err := s.AllDocuments(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, docs)
	assert.Empty(t, docs)
}

func TestChanges_LatestRevisionPerDocument(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	a := mustPut(t, s, "a", "one")
	mustPut(t, s, "b", "two")
	_, err := s.Put(ctx, a.WithPayload(map[string]any{"title": "one again"}))
	require.NoError(t, err)

	res, err := s.Changes(ctx, ChangesOptions{IncludeDocs: true})
	require.NoError(t, err)
	require.Len(t, res.Results, 2)
	assert.Equal(t, "b", res.Results[0].ID)
	assert.Equal(t, "a", res.Results[1].ID)
	assert.Equal(t, "one again", res.Results[1].Doc.Fields["title"])
	assert.Equal(t, int64(3), res.LastSeq)
}

func TestChanges_SinceAndLimit(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c", "d"} {
		mustPut(t, s, id, id)
	}

	page, err := s.Changes(ctx, ChangesOptions{Since: 1, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Results, 2)
	assert.Equal(t, "b", page.Results[0].ID)
	assert.Nil(t, page.Results[0].Doc)
	assert.Equal(t, int64(3), page.LastSeq)

	rest, err := s.Changes(ctx, ChangesOptions{Since: page.LastSeq})
	require.NoError(t, err)
	require.Len(t, rest.Results, 1)
	assert.Equal(t, "d", rest.Results[0].ID)
}

func TestRevsDiff(t *testing.T) {
	s := createTestStore(t)

	a := mustPut(t, s, "a", "one")

	missing, err := s.RevsDiff(context.Background(), map[string]string{
		"a":     a.Rev,
		"b":     "1-abc",
		"older": "1-abc",
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"b", "older"}, missing)
}

func TestInfo(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	a := mustPut(t, s, "a", "one")
	mustPut(t, s, "b", "two")
	_, err := s.Remove(ctx, a)
	require.NoError(t, err)

	info, err := s.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), info.UpdateSeq)
	assert.Equal(t, 1, info.DocCount)
}
