package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/nanoeti/maps-express/pkg/config"
	"github.com/nanoeti/maps-express/pkg/data"
	"github.com/nanoeti/maps-express/pkg/monitor"
	"github.com/nanoeti/maps-express/pkg/observability"
	"github.com/nanoeti/maps-express/pkg/registry"
	"github.com/nanoeti/maps-express/pkg/render"
	"github.com/nanoeti/maps-express/pkg/render/xmlmap"
	"github.com/nanoeti/maps-express/pkg/server"
)

// Options is the parsed command line.
type Options struct {
	Host       string
	ConfigType string // json or etcd
	ConfigArg  string // config path or registry host
}

// maintenanceGrace is how long in-flight requests may drain after SIGHUP
// before the server stops.
const maintenanceGrace = 10 * time.Second

// run is the main entry point after CLI parsing.
func run(opts Options) int {
	var (
		cfg       config.Source
		regClient *registry.Client
	)
	switch opts.ConfigType {
	case "json":
		cfg = config.NewFileSource(opts.ConfigArg)
	case "etcd":
		regClient = registry.NewClient(opts.ConfigArg)
		rs := config.NewRegistrySource(regClient, 0)
		defer rs.Close()
		cfg = rs
	}
	if !cfg.Valid() {
		_, _ = os.Stderr.WriteString("unable to load config\n")
		return 1
	}

	japp := cfg.Get("app")
	jserver := cfg.Get("server")
	if japp.IsNil() || jserver.IsNil() {
		_, _ = os.Stderr.WriteString("config is missing the app or server section\n")
		return 1
	}

	appName := japp.Child("name").StringOr("maps-express")
	logger, err := observability.SetupLogger(observability.LogConfig{
		Level:   japp.Child("log_level").StringOr("info"),
		LogDir:  japp.Child("log_dir").StringOr(""),
		AppName: appName,
	})
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to setup logger: " + err.Error() + "\n")
		return 1
	}
	defer func() { _ = logger.Sync() }()

	zap.L().Info("starting...",
		zap.String("app", appName),
		zap.String("version", japp.Child("version").StringOr("")))

	status := monitor.NewStatusMonitor()
	var nodes monitor.NodesMonitor
	if regClient != nil {
		port := cfg.Get("server.port").UintOr(server.DefaultPort)
		nodes = monitor.NewRegistryNodesMonitor(regClient, opts.Host, port)
	}

	engine := xmlmap.New()
	renderManager := render.NewManager(cfg, engine, engine)
	defer renderManager.Stop()
	dataManager := data.NewManager(cfg)

	factory := server.NewHandlerFactory(cfg, status, renderManager, dataManager)
	srv := server.New(cfg, opts.Host, factory, nodes)
	if err := srv.Start(); err != nil {
		zap.L().Error("failed to start server", zap.Error(err))
		return 1
	}
	defer srv.Stop()

	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	term := make(chan os.Signal, 1)
	signal.Notify(term, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-sighup:
			if status.Exchange(monitor.StatusMaintenance) == monitor.StatusMaintenance {
				continue
			}
			zap.L().Info("switching to maintenance mode")
			if nodes != nil {
				nodes.Unregister()
			}
			time.Sleep(maintenanceGrace)
			zap.L().Info("stopping server")
			return 0
		case sig := <-term:
			zap.L().Info("shutting down", zap.String("signal", sig.String()))
			return 0
		case err := <-srv.Err():
			zap.L().Error("server failed", zap.Error(err))
			return 1
		}
	}
}
