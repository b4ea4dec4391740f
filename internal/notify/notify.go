// Package notify fans store events out to observers.
package notify

import (
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"sync"

	"github.com/roach88/docsync/internal/doc"
)

// Kind says what produced an Event.
type Kind int

const (
	// KindChange is a document change applied to the projection.
	KindChange Kind = iota
	// KindUpload follows a successful upload. Doc is nil.
	KindUpload
	// KindMeta follows an external Meta Record update. Doc is nil.
	KindMeta
)

func (k Kind) String() string {
	switch k {
	case KindChange:
		return "change"
	case KindUpload:
		return "upload"
	case KindMeta:
		return "meta"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Event is delivered to subscribers.
type Event struct {
	Kind Kind
	Doc  *doc.Document
}

// Subscriber receives events. A returned error is logged and does not
// affect delivery to other subscribers.
type Subscriber interface {
	Notify(Event) error
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(Event) error

func (f SubscriberFunc) Notify(ev Event) error { return f(ev) }

type entry struct {
	sub Subscriber
}

// Manager holds the subscriber list. The list is copy-on-write so Notify
// never holds the lock while calling out.
type Manager struct {
	logger *slog.Logger

	mu      sync.Mutex
	entries []*entry
}

// NewManager creates an empty Manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{logger: logger}
}

// Subscribe registers s and returns its unsubscribe function.
//
// Registering a subscriber that is already present (same comparable value,
// typically the same pointer) is a no-op that returns the existing
// registration's unsubscribe. Non-comparable subscribers are always added.
func (m *Manager) Subscribe(s Subscriber) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if isComparable(s) {
		for _, e := range m.entries {
			if e.sub == s {
				return m.unsubscriber(e)
			}
		}
	}

	e := &entry{sub: s}
	next := slices.Clone(m.entries)
	m.entries = append(next, e)
	return m.unsubscriber(e)
}

// SubscribeFunc registers fn. Every call adds a new registration.
func (m *Manager) SubscribeFunc(fn func(Event)) func() {
	return m.Subscribe(SubscriberFunc(func(ev Event) error {
		fn(ev)
		return nil
	}))
}

func (m *Manager) unsubscriber(e *entry) func() {
	return func() { m.remove(e) }
}

func (m *Manager) remove(e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := slices.Index(m.entries, e)
	if i < 0 {
		return
	}
	m.entries = slices.Delete(slices.Clone(m.entries), i, i+1)
}

// Len returns the number of registrations.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Notify delivers ev to every subscriber in registration order.
func (m *Manager) Notify(ev Event) {
	m.mu.Lock()
	entries := m.entries
	m.mu.Unlock()

	for _, e := range entries {
		m.deliver(e.sub, ev)
	}
}

func (m *Manager) deliver(s Subscriber, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("subscriber panicked", "kind", ev.Kind, "panic", r)
		}
	}()
	if err := s.Notify(ev); err != nil {
		m.logger.Warn("subscriber failed", "kind", ev.Kind, "error", err)
	}
}

func isComparable(s Subscriber) bool {
	t := reflect.TypeOf(s)
	return t != nil && t.Comparable()
}
