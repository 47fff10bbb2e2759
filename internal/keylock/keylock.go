// Package keylock serializes work per key without a global lock.
//
// Each active key owns a FIFO queue of waiters. Callers for the same key acquire it in
// the order their Lock calls registered, while callers for other keys proceed
// independently. Entries are removed once no caller holds or waits for them.
package keylock

import (
	"context"
	"sync"
)

type entry struct {
	held    bool
	waiters []chan struct{}
}

// Map is an arena of per-key sequencing queues. The zero value is not usable; use New.
type Map struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New creates an empty Map.
func New() *Map {
	return &Map{entries: make(map[string]*entry)}
}

// Lock blocks until key is free or ctx is done. Waiters for one key are served in the
// order they called Lock. On success the returned func releases the key and must be
// called exactly once.
func (m *Map) Lock(ctx context.Context, key string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	e, ok := m.entries[key]
	if !ok {
		e = &entry{}
		m.entries[key] = e
	}
	if !e.held {
		e.held = true
		m.mu.Unlock()
		return m.unlocker(key, e), nil
	}
	ready := make(chan struct{})
	e.waiters = append(e.waiters, ready)
	m.mu.Unlock()

	select {
	case <-ready:
		return m.unlocker(key, e), nil
	case <-ctx.Done():
	}

	m.mu.Lock()
	for i, w := range e.waiters {
		if w == ready {
			e.waiters = append(e.waiters[:i], e.waiters[i+1:]...)
			m.mu.Unlock()
			return nil, ctx.Err()
		}
	}
	m.mu.Unlock()
	// The key was handed over while ctx was being cancelled; pass it on.
	m.handOff(key, e)
	return nil, ctx.Err()
}

func (m *Map) unlocker(key string, e *entry) func() {
	var once sync.Once
	return func() {
		once.Do(func() { m.handOff(key, e) })
	}
}

// handOff gives the key to the oldest waiter, or frees it.
func (m *Map) handOff(key string, e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(e.waiters) > 0 {
		next := e.waiters[0]
		e.waiters = e.waiters[1:]
		close(next)
		return
	}
	e.held = false
	delete(m.entries, key)
}

// Len returns the number of keys currently held or awaited.
func (m *Map) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Map) waiting(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok {
		return len(e.waiters)
	}
	return 0
}
