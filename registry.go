package batchring

import (
	"sync"
	"sync/atomic"
)

// registry maps caller supplied keys to lazily created values.
// Lookups of registered keys read an immutable snapshot without locking;
// registration copies the snapshot under a single mutex.
type registry[K comparable, V any] struct {
	mu    sync.Mutex
	state atomic.Pointer[registryState[K, V]]
}

type registryState[K comparable, V any] struct {
	index  map[K]int
	values []V // in registration order
}

func (r *registry[K, V]) load() *registryState[K, V] {
	if s := r.state.Load(); s != nil {
		return s
	}
	return &registryState[K, V]{}
}

// getOrCreate returns the value of key and its registration index,
// calling create under the lock if the key is new.
func (r *registry[K, V]) getOrCreate(key K, create func() V) (V, int) {
	s := r.load()
	if i, ok := s.index[key]; ok {
		return s.values[i], i
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s = r.load()
	if i, ok := s.index[key]; ok {
		return s.values[i], i
	}

	next := &registryState[K, V]{
		index:  make(map[K]int, len(s.index)+1),
		values: make([]V, len(s.values), len(s.values)+1),
	}
	for k, i := range s.index {
		next.index[k] = i
	}
	copy(next.values, s.values)

	v := create()
	i := len(next.values)
	next.index[key] = i
	next.values = append(next.values, v)
	r.state.Store(next)
	return v, i
}

// values returns the registered values in registration order. Must not be modified.
func (r *registry[K, V]) values() []V {
	return r.load().values
}

func (r *registry[K, V]) len() int {
	return len(r.load().values)
}

// reset forgets every key and returns the values that were registered.
func (r *registry[K, V]) reset() []V {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.load().values
	r.state.Store(nil)
	return old
}
