package server

import (
	"net/http"

	"github.com/nanoeti/maps-express/pkg/monitor"
)

// monHandler reports the node's health state to the balancer.
type monHandler struct {
	status *monitor.StatusMonitor
}

func (h monHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(h.status.Status().String()))
}
