package kvcache

import (
	"testing"
	"time"
)

func TestSetGetCopies(t *testing.T) {
	s := New(Options{})
	defer s.Close()

	s.Set("k1", []byte("abc"), 0)
	v, ok := s.Get("k1")
	if !ok || string(v) != "abc" {
		t.Fatalf("Get mismatch: ok=%v v=%q", ok, v)
	}
	// mutating the returned copy must not leak into the store
	v[0] = 'X'
	v2, ok := s.Get("k1")
	if !ok || string(v2) != "abc" {
		t.Fatalf("Get after modify mismatch: ok=%v v=%q", ok, v2)
	}
}

func TestDelete(t *testing.T) {
	s := New(Options{})
	defer s.Close()

	s.Set("k2", []byte("42"), 0)
	s.Delete("k2")
	if _, ok := s.Get("k2"); ok {
		t.Fatalf("expected key deleted")
	}
}

func TestExpiry(t *testing.T) {
	s := New(Options{SweepInterval: 10 * time.Millisecond})
	defer s.Close()

	s.Set("k3", []byte("v"), 30*time.Millisecond)
	if _, ok := s.Get("k3"); !ok {
		t.Fatalf("expected key present before TTL")
	}
	time.Sleep(100 * time.Millisecond)
	if _, ok := s.Get("k3"); ok {
		t.Fatalf("expected key expired")
	}
	if m := s.Metrics(); m.Expired == 0 {
		t.Fatalf("expected Expired > 0, got %+v", m)
	}
}

func TestMetrics(t *testing.T) {
	s := New(Options{})
	defer s.Close()

	s.Set("a", []byte("1"), 0)
	s.Set("a", []byte("2"), 0)
	s.Get("a")
	s.Get("missing")

	m := s.Metrics()
	if m.Keys != 1 {
		t.Fatalf("Keys=1 expected, got %d", m.Keys)
	}
	if m.Sets != 2 || m.Hits != 1 || m.Misses != 1 {
		t.Fatalf("unexpected metrics: %+v", m)
	}
}
