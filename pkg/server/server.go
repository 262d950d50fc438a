package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/nanoeti/maps-express/pkg/config"
	"github.com/nanoeti/maps-express/pkg/monitor"
)

const (
	DefaultPort = 8080

	idleTimeout     = 60 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Server runs the public and internal HTTP listeners over one handler
// factory and drives node registration on start/stop.
type Server struct {
	public   *http.Server
	internal *http.Server
	nodes    monitor.NodesMonitor
	factory  *HandlerFactory

	errCh chan error
}

// New reads server.port and server.internal_port (defaults 8080 and port+1)
// and binds both listeners to host. nodes may be nil.
func New(cfg config.Source, host string, factory *HandlerFactory, nodes monitor.NodesMonitor) *Server {
	port := cfg.Get("server.port").UintOr(DefaultPort)
	internalPort := cfg.Get("server.internal_port").UintOr(port + 1)

	mk := func(p uint) *http.Server {
		return &http.Server{
			Addr:        fmt.Sprintf("%s:%d", host, p),
			Handler:     factory,
			IdleTimeout: idleTimeout,
		}
	}
	return &Server{
		public:   mk(port),
		internal: mk(internalPort),
		nodes:    nodes,
		factory:  factory,
		errCh:    make(chan error, 2),
	}
}

// Start brings both listeners up and registers the node. It returns once the
// listeners are accepting, or an error when either fails to bind.
func (s *Server) Start() error {
	for _, srv := range []*http.Server{s.public, s.internal} {
		srv := srv
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.errCh <- fmt.Errorf("listen %s: %w", srv.Addr, err)
			}
		}()
	}
	// Give the listeners a beat to fail fast on bind errors.
	select {
	case err := <-s.errCh:
		return err
	case <-time.After(100 * time.Millisecond):
	}

	if s.nodes != nil {
		s.nodes.Register()
	}
	zap.L().Info("server started",
		zap.String("public", s.public.Addr), zap.String("internal", s.internal.Addr))
	return nil
}

// Err exposes asynchronous listener failures.
func (s *Server) Err() <-chan error {
	return s.errCh
}

// Stop unregisters the node and shuts both listeners down gracefully.
func (s *Server) Stop() {
	if s.nodes != nil {
		s.nodes.Unregister()
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = s.public.Shutdown(ctx)
	_ = s.internal.Shutdown(ctx)
	s.factory.Close()
	zap.L().Info("server stopped")
}
