package store

import (
	"context"
	"sync"
)

// Bus is shared in-process storage. Stores created from the same Bus see the
// same data and receive each other's changes, like tabs of one browser.
type Bus struct {
	mu       sync.Mutex
	data     map[string]string
	watchers map[*memWatcher]struct{}
}

// memWatcher queues events without bound so a slow reader never loses the
// last write to a key.
type memWatcher struct {
	owner *MemoryStore
	out   chan Event
	wake  chan struct{}

	mu    sync.Mutex
	queue []Event
}

func newMemWatcher(owner *MemoryStore) *memWatcher {
	return &memWatcher{
		owner: owner,
		out:   make(chan Event),
		wake:  make(chan struct{}, 1),
	}
}

func (w *memWatcher) push(ev Event) {
	w.mu.Lock()
	w.queue = append(w.queue, ev)
	w.mu.Unlock()
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// run forwards queued events to out in order until ctx is cancelled.
func (w *memWatcher) run(ctx context.Context) {
	defer close(w.out)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.wake:
		}
		w.mu.Lock()
		batch := w.queue
		w.queue = nil
		w.mu.Unlock()
		for _, ev := range batch {
			select {
			case w.out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{
		data:     make(map[string]string),
		watchers: make(map[*memWatcher]struct{}),
	}
}

// NewStore attaches a new Store instance to the bus.
func (b *Bus) NewStore() *MemoryStore {
	return &MemoryStore{bus: b}
}

// publish queues ev for every watcher not owned by from. Callers hold b.mu.
func (b *Bus) publish(from *MemoryStore, ev Event) {
	for w := range b.watchers {
		if w.owner == from {
			continue
		}
		w.push(ev)
	}
}

// MemoryStore implements Store on a Bus.
type MemoryStore struct {
	bus *Bus
}

// NewMemoryStore returns a Store on a private Bus.
func NewMemoryStore() *MemoryStore {
	return NewBus().NewStore()
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	m.bus.mu.Lock()
	defer m.bus.mu.Unlock()
	v, ok := m.bus.data[key]
	return v, ok, nil
}

func (m *MemoryStore) Set(_ context.Context, key, value string) error {
	m.bus.mu.Lock()
	defer m.bus.mu.Unlock()
	if old, ok := m.bus.data[key]; ok && old == value {
		return nil
	}
	m.bus.data[key] = value
	m.bus.publish(m, Event{Key: key, NewValue: value})
	return nil
}

func (m *MemoryStore) Remove(_ context.Context, key string) error {
	m.bus.mu.Lock()
	defer m.bus.mu.Unlock()
	if _, ok := m.bus.data[key]; !ok {
		return nil
	}
	delete(m.bus.data, key)
	m.bus.publish(m, Event{Key: key, Removed: true})
	return nil
}

func (m *MemoryStore) Watch(ctx context.Context) (<-chan Event, error) {
	w := newMemWatcher(m)

	m.bus.mu.Lock()
	m.bus.watchers[w] = struct{}{}
	m.bus.mu.Unlock()

	go func() {
		w.run(ctx)
		m.bus.mu.Lock()
		delete(m.bus.watchers, w)
		m.bus.mu.Unlock()
	}()
	return w.out, nil
}

func (m *MemoryStore) Close() error {
	return nil
}
