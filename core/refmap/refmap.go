// Package refmap provides an insertion-ordered map keyed by identity.
//
// Keys are compared with ==, so pointer keys match only the exact same
// object, never a structurally equal copy.
package refmap

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Pair is a key/value entry used to seed a Map.
type Pair[K comparable, V any] struct {
	Key   K
	Value V
}

// Map associates keys with values in insertion order.
type Map[K comparable, V any] struct {
	m *orderedmap.OrderedMap[K, V]
}

// New creates a map seeded with pairs. Later pairs replace earlier ones
// with the same key.
func New[K comparable, V any](pairs ...Pair[K, V]) *Map[K, V] {
	m := &Map[K, V]{m: orderedmap.New[K, V]()}
	for _, p := range pairs {
		m.m.Set(p.Key, p.Value)
	}
	return m
}

// Get returns the value stored under key.
func (m *Map[K, V]) Get(key K) (V, bool) {
	return m.m.Get(key)
}

// Set stores value under key and returns the previous value, if any.
func (m *Map[K, V]) Set(key K, value V) (V, bool) {
	return m.m.Set(key, value)
}

// Has reports whether key is present.
func (m *Map[K, V]) Has(key K) bool {
	_, ok := m.m.Get(key)
	return ok
}

// Unset removes key and returns the removed value, if any.
func (m *Map[K, V]) Unset(key K) (V, bool) {
	return m.m.Delete(key)
}

// Len returns the number of entries.
func (m *Map[K, V]) Len() int {
	return m.m.Len()
}

// Keys returns a snapshot of the keys in insertion order.
func (m *Map[K, V]) Keys() []K {
	keys := make([]K, 0, m.m.Len())
	for p := m.m.Oldest(); p != nil; p = p.Next() {
		keys = append(keys, p.Key)
	}
	return keys
}

// Values returns a snapshot of the values in insertion order.
func (m *Map[K, V]) Values() []V {
	values := make([]V, 0, m.m.Len())
	for p := m.m.Oldest(); p != nil; p = p.Next() {
		values = append(values, p.Value)
	}
	return values
}
