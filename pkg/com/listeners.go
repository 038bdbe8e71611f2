package com

import (
	"sort"
	"sync/atomic"
)

// Listeners is a multi-subscriber callback set.
// Callbacks may unsubscribe (themselves or others) while being notified.
type Listeners[T any] struct {
	seq atomic.Uint64
	fns *Map[uint64, listener[T]]
}

type listener[T any] struct {
	n  uint64
	fn func(T)
}

func NewListeners[T any]() *Listeners[T] {
	return &Listeners[T]{fns: NewMap[uint64, listener[T]]()}
}

// Subscribe adds a callback and returns its disposer.
// The disposer is safe to call more than once.
func (l *Listeners[T]) Subscribe(fn func(T)) (dispose func()) {
	n := l.seq.Add(1)
	l.fns.Put(n, listener[T]{n: n, fn: fn})
	return func() { l.fns.RemoveByKey(n) }
}

// Emit calls every subscribed callback in the order of subscription.
// Callbacks removed during the emit are skipped.
func (l *Listeners[T]) Emit(v T) {
	snapshot := l.fns.Values()
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].n < snapshot[j].n })
	for _, s := range snapshot {
		if !l.fns.Has(s.n) {
			continue
		}
		s.fn(v)
	}
}
