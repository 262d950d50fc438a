// Package config provides the configuration plane for maps-express: immutable
// snapshots addressed by dotted paths, plus push-style updates to registered
// observers. Two sources implement it: a viper-backed file source and a
// registry-backed watcher.
package config

import (
	"strings"
	"sync"
)

// Observer receives updates for a watched path. OnUpdate may be called from
// any goroutine at any time after registration and must not block for long.
type Observer interface {
	OnUpdate(v *Value)
}

// Source yields immutable configuration snapshots keyed by dotted path.
type Source interface {
	// Get returns the current value at path, or an empty Value.
	Get(path string) *Value

	// Watch returns the current value at path and registers obs for
	// future updates at that path.
	Watch(path string, obs Observer) *Value

	// Valid reports whether the initial load succeeded.
	Valid() bool
}

// observerSet is the shared observer bookkeeping for sources.
type observerSet struct {
	mu        sync.Mutex
	observers map[string][]Observer
}

func (s *observerSet) add(path string, obs Observer) {
	if obs == nil {
		return
	}
	s.mu.Lock()
	if s.observers == nil {
		s.observers = make(map[string][]Observer)
	}
	s.observers[path] = append(s.observers[path], obs)
	s.mu.Unlock()
}

// notifyChanged compares old and new snapshots at every watched path and
// fires observers whose sub-tree changed.
func (s *observerSet) notifyChanged(old, next *Value) {
	s.mu.Lock()
	watched := make(map[string][]Observer, len(s.observers))
	for p, obs := range s.observers {
		watched[p] = append([]Observer(nil), obs...)
	}
	s.mu.Unlock()

	for path, obs := range watched {
		ov := old.At(path)
		nv := next.At(path)
		if ov.Equal(nv) {
			continue
		}
		for _, o := range obs {
			o.OnUpdate(nv)
		}
	}
}

func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}
