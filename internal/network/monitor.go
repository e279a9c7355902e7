// Package network tracks whether the remote backend is reachable.
package network

import (
	"sync"
)

// Listener receives every connectivity signal, duplicates included.
type Listener func(online bool)

// Monitor holds the connectivity flag for one process. It is created by the
// composition root and passed to whatever needs it.
type Monitor struct {
	mu        sync.Mutex
	online    bool
	nextID    uint64
	listeners []subscription
}

type subscription struct {
	id uint64
	fn Listener
}

func NewMonitor(initial bool) *Monitor {
	return &Monitor{online: initial}
}

func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// SetOnline records the signal and invokes every listener synchronously in
// subscription order. Listeners run without the monitor lock held, so they
// may call back into the monitor.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	m.online = online
	listeners := make([]Listener, 0, len(m.listeners))
	for _, sub := range m.listeners {
		listeners = append(listeners, sub.fn)
	}
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(online)
	}
}

// Subscribe registers fn and returns a function that removes it. The returned
// function is safe to call more than once.
func (m *Monitor) Subscribe(fn Listener) func() {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.listeners = append(m.listeners, subscription{id: id, fn: fn})
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, sub := range m.listeners {
			if sub.id == id {
				m.listeners = append(m.listeners[:i:i], m.listeners[i+1:]...)
				return
			}
		}
	}
}
