package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/docsync/internal/doc"
)

var (
	_ doc.IDGenerator = (*CountingIDGenerator)(nil)
	_ doc.IDGenerator = (*SequenceGenerator)(nil)
)

func TestCountingIDGenerator(t *testing.T) {
	g := NewCountingIDGenerator("item")
	assert.Equal(t, "item-0001", g.Generate())
	assert.Equal(t, "item-0002", g.Generate())

	g.Reset()
	assert.Equal(t, "item-0001", g.Generate())
	assert.Equal(t, "doc-0001", NewCountingIDGenerator("").Generate())
}

func TestSequenceGenerator(t *testing.T) {
	g := NewSequenceGenerator("a", "b")
	assert.Equal(t, "a", g.Generate())
	assert.Equal(t, "b", g.Generate())
	assert.Panics(t, func() { g.Generate() })
}
