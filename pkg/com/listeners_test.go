package com

import "testing"

func TestListenersFanOut(t *testing.T) {
	l := NewListeners[int]()
	var a, b int
	l.Subscribe(func(v int) { a += v })
	l.Subscribe(func(v int) { b += v * 2 })

	l.Emit(1)
	l.Emit(2)

	if a != 3 || b != 6 {
		t.Errorf("unexpected fan-out result a=%v b=%v", a, b)
	}
}

func TestListenersUnsubscribeDuringEmit(t *testing.T) {
	l := NewListeners[string]()
	var calls []string
	var second func()
	l.Subscribe(func(s string) {
		calls = append(calls, "first:"+s)
		second()
	})
	second = l.Subscribe(func(s string) { calls = append(calls, "second:"+s) })
	third := l.Subscribe(func(s string) { calls = append(calls, "third:"+s) })

	l.Emit("x")
	third()
	third()
	l.Emit("y")

	want := []string{"first:x", "third:x", "first:y"}
	if len(calls) != len(want) {
		t.Fatalf("got %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d: got %v, want %v", i, calls[i], want[i])
		}
	}
	if n := l.fns.Len(); n != 1 {
		t.Errorf("expected 1 listener left, got %v", n)
	}
}

func TestMapFind(t *testing.T) {
	m := NewMap[string, int]()
	m.Put("a", 1)
	if v, err := m.Find("a"); err != nil || v != 1 {
		t.Errorf("expected 1, got %v %v", v, err)
	}
	m.RemoveByKey("a")
	if _, err := m.Find("a"); err != ErrNotFound {
		t.Errorf("expected not found, got %v", err)
	}
	if m.Len() != 0 {
		t.Errorf("map should be empty")
	}
}
