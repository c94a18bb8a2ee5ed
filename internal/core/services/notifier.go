package services

import (
	"sync"

	"huddle/internal/core/domain"
)

type subscription struct {
	ch     chan struct{}
	closed bool
}

// notifier wakes push subscribers when a signal lands in their mailbox.
// Wake-ups coalesce: a subscriber sees at most one pending value.
type notifier struct {
	mu   sync.Mutex
	subs map[domain.UserID]map[*subscription]struct{}
}

func newNotifier() *notifier {
	return &notifier{subs: make(map[domain.UserID]map[*subscription]struct{})}
}

func (n *notifier) Subscribe(id domain.UserID) (<-chan struct{}, func()) {
	sub := &subscription{ch: make(chan struct{}, 1)}

	n.mu.Lock()
	if n.subs[id] == nil {
		n.subs[id] = make(map[*subscription]struct{})
	}
	n.subs[id][sub] = struct{}{}
	n.mu.Unlock()

	// wake once so anything queued before subscribing gets drained
	sub.ch <- struct{}{}

	cancel := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if sub.closed {
			return
		}
		sub.closed = true
		close(sub.ch)
		if set := n.subs[id]; set != nil {
			delete(set, sub)
			if len(set) == 0 {
				delete(n.subs, id)
			}
		}
	}
	return sub.ch, cancel
}

func (n *notifier) Notify(id domain.UserID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for sub := range n.subs[id] {
		select {
		case sub.ch <- struct{}{}:
		default:
		}
	}
}

// Evict closes every subscription of id.
func (n *notifier) Evict(id domain.UserID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for sub := range n.subs[id] {
		if !sub.closed {
			sub.closed = true
			close(sub.ch)
		}
	}
	delete(n.subs, id)
}

func (n *notifier) Subscribers(id domain.UserID) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs[id])
}
