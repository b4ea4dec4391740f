package doc

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocument_JSONFlattensEnvelope(t *testing.T) {
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	d := Document{
		ID:        "doc-1",
		Rev:       "1-abc",
		CreatedAt: created,
		CreatedBy: &Actor{ClientID: "client-a", Attrs: map[string]any{"name": "ada"}},
		Fields:    map[string]any{"title": "hello"},
	}

	data, err := json.Marshal(d)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "doc-1", m["_id"])
	assert.Equal(t, "1-abc", m["_rev"])
	assert.Equal(t, "hello", m["title"])
	assert.Equal(t, "2024-03-01T12:00:00.000000000Z", m["createdAt"])
	assert.Equal(t, map[string]any{"clientId": "client-a", "name": "ada"}, m["createdBy"])
	assert.NotContains(t, m, "_deleted")
	assert.NotContains(t, m, "deletedAt")

	var back Document
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, "doc-1", back.ID)
	assert.Equal(t, "1-abc", back.Rev)
	assert.True(t, created.Equal(back.CreatedAt))
	require.NotNil(t, back.CreatedBy)
	assert.Equal(t, "client-a", back.CreatedBy.ClientID)
	assert.Equal(t, "ada", back.CreatedBy.Attrs["name"])
	assert.Equal(t, map[string]any{"title": "hello"}, back.Fields)
	assert.Nil(t, back.DeletedBy)
}

func TestDocument_IsLive(t *testing.T) {
	assert.True(t, Document{ID: "a"}.IsLive())
	assert.False(t, Document{ID: "a", Deleted: true}.IsLive())
	assert.False(t, Document{ID: "a", DeletedAt: time.Now()}.IsLive())
}

func TestDocument_CloneIsIndependent(t *testing.T) {
	orig := Document{
		ID:      "a",
		DirtyBy: &Actor{ClientID: "c1"},
		Fields:  map[string]any{"n": 1},
	}

	c := orig.Clone()
	c.Fields["n"] = 2
	c.DirtyBy.ClientID = "c2"

	assert.Equal(t, 1, orig.Fields["n"])
	assert.Equal(t, "c1", orig.DirtyBy.ClientID)
}

func TestDocument_WithPayloadDropsEnvelopeKeys(t *testing.T) {
	d := Document{ID: "a", Rev: "3-x"}.WithPayload(map[string]any{
		"_id":       "evil",
		"_rev":      "9-y",
		"createdAt": "yesterday",
		"title":     "kept",
	})

	assert.Equal(t, "a", d.ID)
	assert.Equal(t, "3-x", d.Rev)
	assert.Equal(t, map[string]any{"title": "kept"}, d.Fields)
}

func TestDocument_UnmarshalRejectsBadTime(t *testing.T) {
	var d Document
	err := json.Unmarshal([]byte(`{"_id":"a","createdAt":"not a time"}`), &d)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "createdAt")
}

func TestDocument_MapTimestampsSortAsStrings(t *testing.T) {
	whole := time.Date(2024, 1, 1, 0, 0, 5, 0, time.UTC)
	half := whole.Add(500 * time.Millisecond)

	a := Document{ID: "a", CreatedAt: whole}.Map()[KeyCreatedAt].(string)
	b := Document{ID: "b", CreatedAt: half}.Map()[KeyCreatedAt].(string)
	assert.Less(t, a, b)
	assert.Equal(t, "2024-01-01T00:00:05.500000000Z", b)
}
