package cacher

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
)

type fakeCluster struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeCluster() (*fakeCluster, *httptest.Server) {
	fc := &fakeCluster{data: make(map[string][]byte)}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(r.URL.Path, "/tiles/")
		fc.mu.Lock()
		defer fc.mu.Unlock()
		switch r.Method {
		case http.MethodPut:
			raw, _ := io.ReadAll(r.Body)
			fc.data[key] = raw
		case http.MethodGet:
			raw, ok := fc.data[key]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			_, _ = w.Write(raw)
		}
	}))
	return fc, srv
}

func hostOf(srv *httptest.Server) string {
	return strings.TrimPrefix(srv.URL, "http://")
}

func TestRemoteSetGet(t *testing.T) {
	fc, srv := newFakeCluster()
	defer srv.Close()

	r := NewRemote([]string{hostOf(srv)}, "", "", 1)
	defer r.Close()

	r.Set("1/0/0", &Entry{Data: []byte("tile"), ContentType: "image/png", CreatedAt: 1})

	deadline := time.Now().Add(2 * time.Second)
	for {
		fc.mu.Lock()
		_, stored := fc.data["1/0/0"]
		fc.mu.Unlock()
		if stored {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("async set never reached the cluster")
		}
		time.Sleep(5 * time.Millisecond)
	}

	e, ok := r.Get("1/0/0")
	if !ok {
		t.Fatalf("expected cache hit")
	}
	if string(e.Data) != "tile" || e.ContentType != "image/png" {
		t.Fatalf("unexpected entry: %+v", e)
	}
}

func TestRemoteMiss(t *testing.T) {
	_, srv := newFakeCluster()
	defer srv.Close()

	r := NewRemote([]string{hostOf(srv)}, "", "", 1)
	defer r.Close()

	if _, ok := r.Get("absent"); ok {
		t.Fatalf("expected miss")
	}
}

func TestRemoteLocalTier(t *testing.T) {
	fc, srv := newFakeCluster()

	raw, err := cbor.Marshal(&Entry{Data: []byte("x"), ContentType: "image/png"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	fc.mu.Lock()
	fc.data["k"] = raw
	fc.mu.Unlock()

	r := NewRemote([]string{hostOf(srv)}, "", "", 1)
	defer r.Close()

	if _, ok := r.Get("k"); !ok {
		t.Fatalf("expected remote hit")
	}
	// Entry is now in the local tier and survives the cluster going away.
	srv.Close()
	if _, ok := r.Get("k"); !ok {
		t.Fatalf("expected local-tier hit after cluster shutdown")
	}
}
