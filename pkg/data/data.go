// Package data resolves named tile providers. The render core only consumes
// the Provider interface; two small providers ship with the server so static
// and mvt endpoints work out of the box.
package data

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nanoeti/maps-express/pkg/config"
	"github.com/nanoeti/maps-express/pkg/tile"
)

// ErrNoTile reports that the provider has no data for the requested tile.
var ErrNoTile = errors.New("no tile")

// Provider fetches one tile blob with its content type.
type Provider interface {
	Tile(ctx context.Context, id tile.ID) (data []byte, contentType string, err error)
}

// Manager holds the provider set parsed from server.providers. The set is
// fixed at construction; endpoint updates reference providers by name.
type Manager struct {
	providers map[string]Provider
}

func NewManager(cfg config.Source) *Manager {
	m := &Manager{providers: make(map[string]Provider)}
	jproviders := cfg.Get("server.providers")
	obj, ok := jproviders.Object()
	if !ok {
		return m
	}
	for name, raw := range obj {
		v := config.NewValue(raw)
		switch typ := v.Child("type").StringOr(""); typ {
		case "static":
			root := v.Child("root").StringOr("")
			if root == "" {
				zap.L().Error("static provider needs a root", zap.String("provider", name))
				continue
			}
			m.providers[name] = &StaticProvider{Root: root, Extension: v.Child("extension").StringOr("png")}
		case "http":
			url := v.Child("url").StringOr("")
			if url == "" {
				zap.L().Error("http provider needs a url template", zap.String("provider", name))
				continue
			}
			m.providers[name] = &HTTPProvider{URL: url, client: &http.Client{Timeout: 10 * time.Second}}
		default:
			zap.L().Error("unknown provider type",
				zap.String("provider", name), zap.String("type", typ))
		}
	}
	return m
}

func (m *Manager) Provider(name string) (Provider, bool) {
	p, ok := m.providers[name]
	return p, ok
}

// StaticProvider serves pre-rendered tiles from a directory tree laid out as
// root/z/x/y.ext.
type StaticProvider struct {
	Root      string
	Extension string
}

func (p *StaticProvider) Tile(ctx context.Context, id tile.ID) ([]byte, string, error) {
	path := filepath.Join(p.Root,
		fmt.Sprintf("%d", id.Z()), fmt.Sprintf("%d", id.X()),
		fmt.Sprintf("%d.%s", id.Y(), p.Extension))
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", ErrNoTile
		}
		return nil, "", err
	}
	ct := mime.TypeByExtension("." + p.Extension)
	if ct == "" {
		ct = "application/octet-stream"
	}
	return data, ct, nil
}

// HTTPProvider proxies tiles from an upstream, URL templated with {z}, {x},
// {y}.
type HTTPProvider struct {
	URL    string
	client *http.Client
}

func (p *HTTPProvider) Tile(ctx context.Context, id tile.ID) ([]byte, string, error) {
	url := strings.NewReplacer(
		"{z}", fmt.Sprint(id.Z()),
		"{x}", fmt.Sprint(id.X()),
		"{y}", fmt.Sprint(id.Y()),
	).Replace(p.URL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, "", ErrNoTile
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("provider: http %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	return data, resp.Header.Get("Content-Type"), nil
}
