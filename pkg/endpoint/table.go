package endpoint

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/nanoeti/maps-express/pkg/config"
)

// Table maps URL paths to their parameter variants. A table is immutable
// once built; holders publish replacements through an atomic pointer swap.
type Table struct {
	endpoints map[string][]*Params
}

// ParseTable reads the server.endpoints object. Returns nil when the value is
// not an object; invalid entries are dropped with a logged error, never
// fatally.
func ParseTable(v *config.Value) *Table {
	obj, ok := v.Object()
	if !ok {
		return nil
	}
	endpoints := make(map[string][]*Params, len(obj))
	for path, raw := range obj {
		variants, ok := config.NewValue(raw).Slice()
		if !ok {
			zap.L().Error("endpoint must hold a list of param objects", zap.String("endpoint", path))
			continue
		}
		var list []*Params
		for _, rawParams := range variants {
			if p := parseParams(path, config.NewValue(rawParams)); p != nil {
				list = append(list, p)
			}
		}
		endpoints[path] = list
	}
	return &Table{endpoints: endpoints}
}

// Lookup returns the variants for an exact path match. Paths are literal
// match keys; no trailing-slash normalization is applied.
func (t *Table) Lookup(path string) []*Params {
	return t.endpoints[path]
}

// Match finds the longest registered path that prefixes reqPath and returns
// it with its variants.
func (t *Table) Match(reqPath string) (string, []*Params) {
	best := ""
	for path := range t.endpoints {
		if strings.HasPrefix(reqPath, path) && len(path) > len(best) {
			best = path
		}
	}
	if best == "" {
		return "", nil
	}
	return best, t.endpoints[best]
}

func (t *Table) Len() int {
	return len(t.endpoints)
}

// Paths lists registered paths in sorted order.
func (t *Table) Paths() []string {
	out := make([]string, 0, len(t.endpoints))
	for path := range t.endpoints {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

// Serialize renders the table back into canonical config form, suitable for
// feeding ParseTable again.
func (t *Table) Serialize() map[string]any {
	out := make(map[string]any, len(t.endpoints))
	for path, list := range t.endpoints {
		variants := make([]any, len(list))
		for i, p := range list {
			variants[i] = p.serialize()
		}
		out[path] = variants
	}
	return out
}
