package endpoint

import (
	"encoding/json"
	"fmt"
	"os"
)

// FilterTable restricts which feature keys survive MVT post-filtering per
// layer. Loaded once at endpoint parse time; immutable afterwards.
type FilterTable struct {
	layers  map[string]map[string]struct{}
	maxZoom int
}

// LoadFilterTable reads a JSON file of the form {"layer": ["key", ...]}.
func LoadFilterTable(path string, maxZoom int) (*FilterTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read filter map: %w", err)
	}
	var doc map[string][]string
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse filter map %s: %w", path, err)
	}
	layers := make(map[string]map[string]struct{}, len(doc))
	for layer, keys := range doc {
		set := make(map[string]struct{}, len(keys))
		for _, k := range keys {
			set[k] = struct{}{}
		}
		layers[layer] = set
	}
	return &FilterTable{layers: layers, maxZoom: maxZoom}, nil
}

// HasLayer reports whether the layer is filtered at all. Unlisted layers pass
// through untouched.
func (ft *FilterTable) HasLayer(layer string) bool {
	_, ok := ft.layers[layer]
	return ok
}

// Allows reports whether key survives filtering in layer.
func (ft *FilterTable) Allows(layer, key string) bool {
	keys, ok := ft.layers[layer]
	if !ok {
		return true
	}
	_, ok = keys[key]
	return ok
}

func (ft *FilterTable) MaxZoom() int {
	return ft.maxZoom
}
