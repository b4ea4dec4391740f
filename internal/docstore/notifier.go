package docstore

import "sync"

// notifier wakes every registered watcher after a commit.
//
// Each watcher owns a 1-buffered signal channel; a burst of commits
// coalesces into one pending wake-up per watcher.
type notifier struct {
	mu      sync.Mutex
	signals map[chan struct{}]struct{}
}

func newNotifier() *notifier {
	return &notifier{signals: make(map[chan struct{}]struct{})}
}

func (n *notifier) subscribe() chan struct{} {
	ch := make(chan struct{}, 1)
	n.mu.Lock()
	n.signals[ch] = struct{}{}
	n.mu.Unlock()
	return ch
}

func (n *notifier) unsubscribe(ch chan struct{}) {
	n.mu.Lock()
	delete(n.signals, ch)
	n.mu.Unlock()
}

func (n *notifier) broadcast() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for ch := range n.signals {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
