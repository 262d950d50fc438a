package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/nanoeti/maps-express/pkg/cacher"
	"github.com/nanoeti/maps-express/pkg/data"
	"github.com/nanoeti/maps-express/pkg/endpoint"
	"github.com/nanoeti/maps-express/pkg/render"
	"github.com/nanoeti/maps-express/pkg/tile"
)

const gridSuffix = ".grid.json"

// tileHandler serves one request against a fixed endpoint-table snapshot.
// The snapshot is captured at construction; a concurrent table swap is not
// observed mid-request.
type tileHandler struct {
	renderManager *render.Manager
	dataManager   *data.Manager
	endpoints     *endpoint.Table
	cache         cacher.Cacher
}

type tileRef struct {
	id   tile.ID
	ext  string
	grid bool
}

func (h tileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	path, variants := h.endpoints.Match(r.URL.Path)
	if variants == nil {
		http.NotFound(w, r)
		return
	}
	ref, err := parseTileRef(strings.TrimPrefix(r.URL.Path, path))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !ref.id.Valid() {
		http.Error(w, "invalid tile id", http.StatusBadRequest)
		return
	}

	var layers []string
	if q := r.URL.Query().Get("layers"); q != "" {
		layers = strings.Split(q, ",")
	}

	for _, params := range variants {
		if !h.accepts(params, ref, layers) {
			continue
		}
		entry, ok := h.serveVariant(r, path, params, ref, layers)
		if !ok {
			continue
		}
		if entry == nil {
			http.Error(w, "render failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", entry.ContentType)
		_, _ = w.Write(entry.Data)
		return
	}
	http.NotFound(w, r)
}

// accepts checks the cheap per-variant constraints before any work happens.
func (h tileHandler) accepts(p *endpoint.Params, ref tileRef, layers []string) bool {
	z := int(ref.id.Z())
	if z < p.MinZoom || z > p.MaxZoom {
		return false
	}
	if len(layers) > 0 && !p.AllowLayersQuery {
		return false
	}
	if ref.grid && (p.Type != endpoint.Render || !p.AllowUTFGrid) {
		return false
	}
	if p.Type == endpoint.Render && !h.renderManager.HasStyle(p.StyleName) {
		return false
	}
	return true
}

// serveVariant runs one recipe. ok=false means "try the next variant";
// ok=true with a nil entry is a terminal failure.
func (h tileHandler) serveVariant(r *http.Request, path string, p *endpoint.Params,
	ref tileRef, layers []string) (*cacher.Entry, bool) {

	key := cacheKey(path, p, ref)
	if h.cache != nil {
		if entry, ok := h.cache.Get(key); ok {
			return entry, true
		}
	}

	var entry *cacher.Entry
	switch p.Type {
	case endpoint.Render:
		entry = h.renderTile(r, p, ref, layers)
	case endpoint.StaticFiles:
		entry = h.providerTile(r, p, ref.id)
	case endpoint.MVT:
		entry = h.mvtTile(r, p, ref.id)
	}
	if entry == nil {
		return nil, true
	}
	if h.cache != nil {
		h.cache.Set(key, entry)
	}
	return entry, true
}

func (h tileHandler) renderTile(r *http.Request, p *endpoint.Params, ref tileRef, layers []string) *cacher.Entry {
	meta := tile.Metatile{Width: p.MetatileWidth, Height: p.MetatileHeight}
	if p.AutoMetatileSize {
		meta = tile.Single()
	}
	req := &render.RenderRequest{
		StyleName: p.StyleName,
		Tile:      ref.id,
		Meta:      meta,
		Grid:      ref.grid,
		GridKey:   p.UTFGridKey,
		Layers:    layers,
	}
	res, err := h.await(r, func(onSuccess func(render.Result), onError func()) *render.Task {
		return h.renderManager.Render(req, onSuccess, onError)
	})
	if err != nil {
		return nil
	}
	return &cacher.Entry{Data: res.Data, ContentType: res.ContentType}
}

func (h tileHandler) providerTile(r *http.Request, p *endpoint.Params, id tile.ID) *cacher.Entry {
	provider, ok := h.dataManager.Provider(p.ProviderName)
	if !ok {
		zap.L().Error("unknown data provider", zap.String("provider", p.ProviderName))
		return nil
	}
	blob, ct, err := provider.Tile(r.Context(), id)
	if err != nil {
		if !errors.Is(err, data.ErrNoTile) {
			zap.L().Error("provider fetch failed", zap.Stringer("tile", id), zap.Error(err))
		}
		return nil
	}
	return &cacher.Entry{Data: blob, ContentType: ct}
}

// mvtTile fetches vector data, going through the subtiler when the variant
// declares a negative zoom offset: the provider is asked for the shallower
// parent and the target tile is cut out of it. A zero or positive offset
// fetches the requested tile itself.
func (h tileHandler) mvtTile(r *http.Request, p *endpoint.Params, id tile.ID) *cacher.Entry {
	provider, ok := h.dataManager.Provider(p.ProviderName)
	if !ok {
		zap.L().Error("unknown data provider", zap.String("provider", p.ProviderName))
		return nil
	}

	dataID := id
	if p.ZoomOffset < 0 {
		shift := uint32(-p.ZoomOffset)
		if shift > id.Z() {
			return nil
		}
		dataID = tile.New(id.X()>>shift, id.Y()>>shift, id.Z()-shift)
	}

	blob, ct, err := provider.Tile(r.Context(), dataID)
	if err != nil {
		if !errors.Is(err, data.ErrNoTile) {
			zap.L().Error("provider fetch failed", zap.Stringer("tile", dataID), zap.Error(err))
		}
		return nil
	}
	if dataID == id {
		return &cacher.Entry{Data: blob, ContentType: ct}
	}

	req := &render.SubtileRequest{MVT: blob, Source: dataID, Target: id}
	res, err := h.await(r, func(onSuccess func(render.Result), onError func()) *render.Task {
		return h.renderManager.MakeSubtile(req, onSuccess, onError)
	})
	if err != nil {
		return nil
	}
	return &cacher.Entry{Data: res.Data, ContentType: res.ContentType}
}

var errTaskFailed = errors.New("task failed")

// await bridges the callback-style task API to the synchronous handler.
func (h tileHandler) await(r *http.Request,
	start func(func(render.Result), func()) *render.Task) (render.Result, error) {

	done := make(chan render.Result, 1)
	failed := make(chan struct{}, 1)
	start(
		func(res render.Result) { done <- res },
		func() { failed <- struct{}{} })
	select {
	case res := <-done:
		return res, nil
	case <-failed:
		return render.Result{}, errTaskFailed
	case <-r.Context().Done():
		return render.Result{}, r.Context().Err()
	}
}

// parseTileRef reads a "z/x/y.ext" suffix, with ".grid.json" selecting a
// UTF-grid render.
func parseTileRef(rest string) (tileRef, error) {
	rest = strings.TrimPrefix(rest, "/")
	parts := strings.SplitN(rest, "/", 3)
	if len(parts) != 3 {
		return tileRef{}, fmt.Errorf("bad tile path %q", rest)
	}
	last := parts[2]
	ref := tileRef{ext: "png"}
	if strings.HasSuffix(last, gridSuffix) {
		ref.grid = true
		ref.ext = "grid.json"
		last = strings.TrimSuffix(last, gridSuffix)
	} else if i := strings.IndexByte(last, '.'); i >= 0 {
		ref.ext = last[i+1:]
		last = last[:i]
	}
	z, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return tileRef{}, fmt.Errorf("bad zoom %q", parts[0])
	}
	x, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return tileRef{}, fmt.Errorf("bad x %q", parts[1])
	}
	y, err := strconv.ParseUint(last, 10, 32)
	if err != nil {
		return tileRef{}, fmt.Errorf("bad y %q", last)
	}
	ref.id = tile.New(uint32(x), uint32(y), uint32(z))
	return ref, nil
}

func cacheKey(path string, p *endpoint.Params, ref tileRef) string {
	return fmt.Sprintf("%s|%s|%s|%s.%s", path, p.Type, p.StyleName, ref.id, ref.ext)
}
