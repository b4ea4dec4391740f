package doc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewActor_StripsReservedAndSetsClient(t *testing.T) {
	a := NewActor("client-1", map[string]any{
		"_id":      "user-doc",
		"clientId": "spoofed",
		"name":     "grace",
	})

	assert.Equal(t, "client-1", a.ClientID)
	assert.Equal(t, map[string]any{"name": "grace"}, a.Attrs)
}

func TestNewActor_NilUser(t *testing.T) {
	a := NewActor("client-1", nil)
	assert.Equal(t, "client-1", a.ClientID)
	assert.Nil(t, a.Attrs)
	assert.Equal(t, map[string]any{"clientId": "client-1"}, a.Map())
}

func TestNewID_SortsByCreation(t *testing.T) {
	first := NewID()
	second := NewID()
	assert.Len(t, first, 36)
	assert.Less(t, first, second)
}
