package registry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRegisterUnregister(t *testing.T) {
	var gotPath string
	var gotNode NodeInfo
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotNode); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	node := NodeInfo{ID: "tile-1", Host: "10.0.0.1", Port: 8080}
	if err := c.Register(context.Background(), node); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if gotPath != "/nodes/register" || gotNode != node {
		t.Fatalf("unexpected request: %s %+v", gotPath, gotNode)
	}
	if err := c.Unregister(context.Background(), node); err != nil {
		t.Fatalf("Unregister: %v", err)
	}
	if gotPath != "/nodes/unregister" {
		t.Fatalf("unexpected path: %s", gotPath)
	}
}

func TestFetchConfig(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/config" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"version": 7, "config": {"server": {"port": 9000}}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	raw, version, err := c.FetchConfig(context.Background())
	if err != nil {
		t.Fatalf("FetchConfig: %v", err)
	}
	if version != 7 {
		t.Fatalf("version=7 expected, got %d", version)
	}
	var tree map[string]any
	if err := json.Unmarshal(raw, &tree); err != nil {
		t.Fatalf("config not valid JSON: %v", err)
	}
	if _, ok := tree["server"]; !ok {
		t.Fatalf("config missing server section: %v", tree)
	}
}

func TestFetchConfigHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if _, _, err := c.FetchConfig(context.Background()); err == nil {
		t.Fatalf("expected error on http 500")
	}
}
