// Package projection maintains the in-memory view of a store's live
// documents.
//
// Every mutation that changes the view replaces the container (a new slice
// in collection mode, a new pointer in single mode), so observers can detect
// updates by identity. A change that does not touch the view leaves the
// container as it was.
package projection

import (
	"slices"
	"sync"

	"github.com/roach88/docsync/internal/doc"
)

// Options configure a Projector.
type Options struct {
	// SingletonID switches the projector to single-document mode.
	SingletonID string

	// Compare orders the collection. Nil keeps insertion order.
	Compare func(a, b doc.Document) int

	// Filter drops documents from the collection. Nil keeps all.
	Filter func(doc.Document) bool
}

// View is a snapshot of the projection. Its containers are never mutated
// after being handed out and must not be mutated by the caller.
type View struct {
	Single *doc.Document
	Items  []doc.Document
}

// Projector holds the projection.
type Projector struct {
	opts Options

	mu      sync.RWMutex
	single  *doc.Document
	items   []doc.Document
	version uint64
}

// New creates an empty projector.
func New(opts Options) *Projector {
	return &Projector{opts: opts, items: []doc.Document{}}
}

// SingleMode reports whether the projector tracks a single document.
func (p *Projector) SingleMode() bool {
	return p.opts.SingletonID != ""
}

// Seed replaces the projection with the live documents among docs.
func (p *Projector) Seed(docs []doc.Document) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.SingleMode() {
		p.single = nil
		for _, d := range docs {
			if d.ID == p.opts.SingletonID && d.IsLive() {
				c := d.Clone()
				p.single = &c
			}
		}
	} else {
		items := make([]doc.Document, 0, len(docs))
		for _, d := range docs {
			if d.IsLive() {
				items = append(items, d.Clone())
			}
		}
		p.items = p.arrange(items)
	}
	p.version++
}

// Apply folds one change into the projection and reports whether the view
// changed.
func (p *Projector) Apply(d doc.Document) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.SingleMode() {
		if d.ID != p.opts.SingletonID {
			return false
		}
		if d.IsLive() {
			c := d.Clone()
			p.single = &c
		} else {
			p.single = nil
		}
		p.version++
		return true
	}

	idx := slices.IndexFunc(p.items, func(it doc.Document) bool { return it.ID == d.ID })
	live := d.IsLive()

	var next []doc.Document
	switch {
	case idx >= 0 && live:
		next = slices.Clone(p.items)
		next[idx] = d.Clone()
	case idx >= 0 && !live:
		next = slices.Delete(slices.Clone(p.items), idx, idx+1)
	case idx < 0 && live:
		next = append(slices.Clone(p.items), d.Clone())
	default:
		return false
	}

	p.items = p.arrange(next)
	p.version++
	return true
}

// arrange sorts then filters items in place of a fresh slice.
func (p *Projector) arrange(items []doc.Document) []doc.Document {
	if p.opts.Compare != nil {
		slices.SortStableFunc(items, p.opts.Compare)
	}
	if p.opts.Filter != nil {
		items = slices.DeleteFunc(items, func(d doc.Document) bool { return !p.opts.Filter(d) })
	}
	return items
}

// View returns the current snapshot.
func (p *Projector) View() View {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return View{Single: p.single, Items: p.items}
}

// Version counts view changes since creation.
func (p *Projector) Version() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.version
}
