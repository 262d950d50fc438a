// Package server wires HTTP requests to the render core: a handler factory
// holding the hot-swappable endpoint table, the health handler, the tile
// handler, and the listener pair.
package server

import (
	"net/http"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/nanoeti/maps-express/pkg/cacher"
	"github.com/nanoeti/maps-express/pkg/config"
	"github.com/nanoeti/maps-express/pkg/data"
	"github.com/nanoeti/maps-express/pkg/endpoint"
	"github.com/nanoeti/maps-express/pkg/monitor"
	"github.com/nanoeti/maps-express/pkg/render"
)

// HandlerFactory selects a handler per request: the health endpoint or a tile
// handler bound to the current endpoint-table snapshot. It is an http.Handler
// itself; ServeHTTP is wait-free in the common path (one atomic load).
type HandlerFactory struct {
	status        *monitor.StatusMonitor
	renderManager *render.Manager
	dataManager   *data.Manager
	cache         cacher.Cacher

	endpoints atomic.Pointer[endpoint.Table]
}

type serverUpdateObserver struct {
	hf *HandlerFactory
}

func (o serverUpdateObserver) OnUpdate(v *config.Value) {
	o.hf.UpdateConfig(v)
}

// NewHandlerFactory parses the server.endpoints table, registers for config
// updates at the server path and builds the cacher when configured.
func NewHandlerFactory(cfg config.Source, status *monitor.StatusMonitor,
	rm *render.Manager, dm *data.Manager) *HandlerFactory {

	hf := &HandlerFactory{
		status:        status,
		renderManager: rm,
		dataManager:   dm,
	}

	jserver := cfg.Watch("server", serverUpdateObserver{hf: hf})
	table := endpoint.ParseTable(jserver.At("endpoints"))
	if table == nil || table.Len() == 0 {
		zap.L().Warn("no endpoints provided")
		table = endpoint.ParseTable(config.NewValue(map[string]any{}))
	}
	hf.endpoints.Store(table)

	hf.cache = buildCacher(cfg.Get("cacher"))
	if hf.cache == nil {
		zap.L().Info("starting without cacher")
	}
	return hf
}

func buildCacher(jcacher *config.Value) cacher.Cacher {
	jhosts, ok := jcacher.Child("hosts").Slice()
	if !ok {
		return nil
	}
	var hosts []string
	for _, jhost := range jhosts {
		host, ok := jhost.(string)
		if !ok {
			zap.L().Error("cacher hostname must be string")
			continue
		}
		hosts = append(hosts, host)
	}
	if len(hosts) == 0 {
		return nil
	}
	user := jcacher.Child("user").StringOr("")
	password := jcacher.Child("password").StringOr("")
	workers := jcacher.Child("workers").UintOr(2)
	return cacher.NewRemote(hosts, user, password, workers)
}

// UpdateConfig reparses the endpoint table from a new server config value and
// publishes it. Live requests keep the snapshot they entered with.
func (hf *HandlerFactory) UpdateConfig(v *config.Value) bool {
	table := endpoint.ParseTable(v.At("endpoints"))
	if table == nil {
		return false
	}
	hf.endpoints.Store(table)
	zap.L().Info("endpoint table updated", zap.Int("endpoints", table.Len()))
	return true
}

// Endpoints returns the current endpoint-table snapshot.
func (hf *HandlerFactory) Endpoints() *endpoint.Table {
	return hf.endpoints.Load()
}

func (hf *HandlerFactory) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet && r.URL.Path == "/mon" {
		monHandler{status: hf.status}.ServeHTTP(w, r)
		return
	}
	h := tileHandler{
		renderManager: hf.renderManager,
		dataManager:   hf.dataManager,
		endpoints:     hf.endpoints.Load(),
		cache:         hf.cache,
	}
	h.ServeHTTP(w, r)
}

// Close releases the factory's cacher.
func (hf *HandlerFactory) Close() {
	if hf.cache != nil {
		hf.cache.Close()
	}
}
