package com

import (
	"errors"
	"sync"
)

// Map defines a concurrent-safe map structure.
type Map[K comparable, V any] struct {
	m  map[K]V
	mu sync.Mutex
}

var ErrNotFound = errors.New("not found")

func NewMap[K comparable, V any]() *Map[K, V] { return &Map[K, V]{m: make(map[K]V, 10)} }

func (m *Map[K, _]) Has(key K) bool     { _, err := m.Find(key); return err == nil }
func (m *Map[_, _]) Len() int           { m.mu.Lock(); defer m.mu.Unlock(); return len(m.m) }
func (m *Map[K, T]) Put(key K, value T) { m.mu.Lock(); m.m[key] = value; m.mu.Unlock() }
func (m *Map[K, _]) RemoveByKey(key K)  { m.mu.Lock(); delete(m.m, key); m.mu.Unlock() }

// Find searches for the first match by a specified key value,
// returns ErrNotFound otherwise.
func (m *Map[K, T]) Find(key K) (value T, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.m[key]; ok {
		return c, nil
	}
	return value, ErrNotFound
}

// Values returns a copy of all the values, so
// the map may be changed while the copy is in use.
func (m *Map[K, T]) Values() []T {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]T, 0, len(m.m))
	for _, v := range m.m {
		out = append(out, v)
	}
	return out
}
