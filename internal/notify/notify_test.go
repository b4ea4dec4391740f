package notify

import (
	"bytes"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docsync/internal/doc"
)

type counter struct {
	n atomic.Int32
}

func (c *counter) Notify(Event) error {
	c.n.Add(1)
	return nil
}

func TestManager_SubscribeSameSubscriberOnce(t *testing.T) {
	m := NewManager(nil)
	c := &counter{}

	unsub1 := m.Subscribe(c)
	unsub2 := m.Subscribe(c)
	assert.Equal(t, 1, m.Len())

	m.Notify(Event{Kind: KindUpload})
	assert.EqualValues(t, 1, c.n.Load())

	unsub1()
	unsub2()
	assert.Equal(t, 0, m.Len())
}

func TestManager_SubscribeFuncAddsEachTime(t *testing.T) {
	m := NewManager(nil)
	var calls int
	fn := func(Event) { calls++ }

	m.SubscribeFunc(fn)
	m.SubscribeFunc(fn)
	m.Notify(Event{})
	assert.Equal(t, 2, calls)
}

func TestManager_UnsubscribeIsIdempotent(t *testing.T) {
	m := NewManager(nil)
	unsub := m.SubscribeFunc(func(Event) {})
	unsub()
	unsub()
	assert.Equal(t, 0, m.Len())
}

func TestManager_FailuresAreIsolated(t *testing.T) {
	var buf bytes.Buffer
	m := NewManager(slog.New(slog.NewTextHandler(&buf, nil)))

	var got []string
	m.Subscribe(SubscriberFunc(func(Event) error { panic("boom") }))
	m.Subscribe(SubscriberFunc(func(Event) error { return errors.New("nope") }))
	m.SubscribeFunc(func(ev Event) { got = append(got, ev.Doc.ID) })

	require.NotPanics(t, func() {
		m.Notify(Event{Kind: KindChange, Doc: &doc.Document{ID: "a"}})
	})
	assert.Equal(t, []string{"a"}, got)
	assert.Contains(t, buf.String(), "subscriber panicked")
	assert.Contains(t, buf.String(), "subscriber failed")
}

func TestManager_UnsubscribeDuringNotify(t *testing.T) {
	m := NewManager(nil)
	var second int
	var unsub func()
	unsub = m.SubscribeFunc(func(Event) { unsub() })
	m.SubscribeFunc(func(Event) { second++ })

	m.Notify(Event{})
	m.Notify(Event{})
	assert.Equal(t, 2, second)
	assert.Equal(t, 1, m.Len())
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "change", KindChange.String())
	assert.Equal(t, "upload", KindUpload.String())
	assert.Equal(t, "meta", KindMeta.String())
	assert.Equal(t, "Kind(9)", Kind(9).String())
}

func TestDebouncer_CoalescesBursts(t *testing.T) {
	var runs atomic.Int32
	d := NewDebouncer(DebounceDelay, func() { runs.Add(1) })
	defer d.Stop()

	for range 10 {
		d.Trigger()
		time.Sleep(2 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(3 * DebounceDelay)
	assert.EqualValues(t, 1, runs.Load())
}

func TestDebouncer_StopCancelsPending(t *testing.T) {
	var runs atomic.Int32
	d := NewDebouncer(10*time.Millisecond, func() { runs.Add(1) })

	d.Trigger()
	d.Stop()
	d.Trigger()

	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 0, runs.Load())
}
