package store

import (
	"errors"
	"testing"
)

func TestFileStore(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("couldn't make a store: %v", err)
	}

	v, err := s.Get(KeyAuthState)
	if err != nil || v != "" {
		t.Errorf("expected empty value for a missing key, got %q %v", v, err)
	}

	if err = s.Set(KeyAuthState, `{"a":1}`); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err = s.Set(KeyAuthState, `{"a":2}`); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, err = s.Get(KeyAuthState)
	if err != nil || v != `{"a":2}` {
		t.Errorf("got %q %v", v, err)
	}

	// another instance over the same dir sees the data
	s2, err := NewFileStore(s.Dir())
	if err != nil {
		t.Fatal(err)
	}
	if v, _ = s2.Get(KeyAuthState); v != `{"a":2}` {
		t.Errorf("second store got %q", v)
	}
}

func TestFileStoreBadKey(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"", "../x", "a/b"} {
		if err := s.Set(key, "x"); !errors.Is(err, ErrBadKey) {
			t.Errorf("key %q: expected bad key error, got %v", key, err)
		}
	}
}

func TestMemStore(t *testing.T) {
	s := NewMemStore()
	_ = s.Set("k", "v")
	if v, _ := s.Get("k"); v != "v" {
		t.Errorf("got %q", v)
	}
}
