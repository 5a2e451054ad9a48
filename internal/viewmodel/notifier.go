// Package viewmodel holds observable client-side state: the chat list and an
// open conversation. Observers subscribe for change signals and read
// snapshots; nothing here depends on a UI toolkit.
package viewmodel

import "sync"

// notifier fans a change signal out to subscribers. Signals coalesce: a slow
// observer sees one pending signal, not a backlog.
type notifier struct {
	mu   sync.Mutex
	subs map[int]chan struct{}
	next int
}

// Subscribe returns a channel that receives a value after each change, and
// a function that unsubscribes and closes it.
func (n *notifier) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	n.mu.Lock()
	if n.subs == nil {
		n.subs = make(map[int]chan struct{})
	}
	id := n.next
	n.next++
	n.subs[id] = ch
	n.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs, id)
			n.mu.Unlock()
			close(ch)
		})
	}
}

func (n *notifier) signal() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
