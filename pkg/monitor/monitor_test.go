package monitor

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nanoeti/maps-express/pkg/registry"
)

func TestStatusExchange(t *testing.T) {
	m := NewStatusMonitor()
	if m.Status() != StatusOK {
		t.Fatalf("fresh monitor must be ok")
	}
	if prev := m.Exchange(StatusMaintenance); prev != StatusOK {
		t.Fatalf("expected previous status ok, got %v", prev)
	}
	if prev := m.Exchange(StatusMaintenance); prev != StatusMaintenance {
		t.Fatalf("expected previous status maintenance, got %v", prev)
	}
	if m.Status().String() != "maintenance" {
		t.Fatalf("unexpected status string %q", m.Status())
	}
}

func TestRegistryNodesMonitor(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		var node registry.NodeInfo
		if err := json.NewDecoder(r.Body).Decode(&node); err != nil {
			t.Errorf("decode: %v", err)
		}
		if node.Port != 8080 {
			t.Errorf("port=8080 expected, got %d", node.Port)
		}
	}))
	defer srv.Close()

	client := registry.NewClient(strings.TrimPrefix(srv.URL, "http://"))
	m := NewRegistryNodesMonitor(client, "10.1.2.3", 8080)
	m.Register()
	m.Unregister()

	if len(paths) != 2 || paths[0] != "/nodes/register" || paths[1] != "/nodes/unregister" {
		t.Fatalf("unexpected request paths: %v", paths)
	}
}
