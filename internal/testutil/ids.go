package testutil

import (
	"fmt"
	"sync"
)

// CountingIDGenerator generates "<prefix>-0001", "<prefix>-0002", ...
//
// Ids sort in generation order, like the time-prefixed ids of production,
// but are identical across runs, which keeps golden output stable.
//
// Thread-safety: safe for concurrent use.
type CountingIDGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewCountingIDGenerator creates a generator. An empty prefix uses "doc".
func NewCountingIDGenerator(prefix string) *CountingIDGenerator {
	if prefix == "" {
		prefix = "doc"
	}
	return &CountingIDGenerator{prefix: prefix}
}

// Generate returns the next id.
//
// Implements doc.IDGenerator.
func (g *CountingIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}

// Reset restarts the sequence.
func (g *CountingIDGenerator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}

// SequenceGenerator returns predetermined ids in order, then panics: a test
// that asks for more ids than it planned is wrong.
type SequenceGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewSequenceGenerator creates a generator that yields ids in order.
func NewSequenceGenerator(ids ...string) *SequenceGenerator {
	return &SequenceGenerator{ids: ids}
}

// Generate returns the next id.
func (g *SequenceGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("SequenceGenerator: all ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
