package concurrent

import (
	"iter"
	"sync"
	"sync/atomic"
)

// Map is a typed wrapper around sync.Map that also tracks its length.
type Map[K comparable, V any] struct {
	n    atomic.Int64
	data sync.Map
}

// Len returns the number of entries.
func (m *Map[K, V]) Len() int64 {
	return m.n.Load()
}

func (m *Map[K, V]) Load(key K) (V, bool) {
	v, ok := m.data.Load(key)
	if !ok {
		var zero V
		return zero, false
	}
	return v.(V), true
}

func (m *Map[K, V]) Store(key K, value V) {
	if _, loaded := m.data.Swap(key, value); !loaded {
		m.n.Add(1)
	}
}

// LoadOrStore returns the existing value for key if present, otherwise stores value.
func (m *Map[K, V]) LoadOrStore(key K, value V) (V, bool) {
	actual, loaded := m.data.LoadOrStore(key, value)
	if !loaded {
		m.n.Add(1)
	}
	return actual.(V), loaded
}

func (m *Map[K, V]) Delete(key K) {
	if _, loaded := m.data.LoadAndDelete(key); loaded {
		m.n.Add(-1)
	}
}

// Range calls f for each entry until f returns false.
func (m *Map[K, V]) Range(f func(key K, value V) bool) {
	m.data.Range(func(k, v any) bool {
		return f(k.(K), v.(V))
	})
}

// All returns an iterator over the entries.
func (m *Map[K, V]) All() iter.Seq2[K, V] {
	return m.Range
}

// Values returns a snapshot of all values.
func (m *Map[K, V]) Values() []V {
	out := make([]V, 0, m.Len())
	m.Range(func(_ K, v V) bool {
		out = append(out, v)
		return true
	})
	return out
}

func (m *Map[K, V]) Clear() {
	m.data.Range(func(k, _ any) bool {
		if _, loaded := m.data.LoadAndDelete(k); loaded {
			m.n.Add(-1)
		}
		return true
	})
}
