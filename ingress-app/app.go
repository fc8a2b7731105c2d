package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/compose-network/ingress/ingress-app/config"
	"github.com/compose-network/ingress/internal/network"
	"github.com/compose-network/ingress/metrics"
	apisrv "github.com/compose-network/ingress/server/api"
	apimw "github.com/compose-network/ingress/server/api/middleware"
	"github.com/compose-network/ingress/x/codec"
	"github.com/compose-network/ingress/x/dispatch"
	"github.com/compose-network/ingress/x/parser"
	"github.com/compose-network/ingress/x/transport"
	ingresshttp "github.com/compose-network/ingress/x/transport/http"
	"github.com/compose-network/ingress/x/transport/tcp"
)

// App represents the ingress application
type App struct {
	cfg  *config.Config
	root zerolog.Logger
	log  zerolog.Logger

	registry  *parser.Registry
	tcpServer *tcp.Server
	apiServer *apisrv.Server

	startedAt time.Time
	listening atomic.Bool

	frames  atomic.Uint64
	decoded []atomic.Uint64
	failed  []atomic.Uint64
	closed  atomic.Uint64
	errored atomic.Uint64

	cancel context.CancelFunc
}

// NewApp creates a new application instance
func NewApp(cfg *config.Config, log zerolog.Logger) (*App, error) {
	app := &App{
		cfg:       cfg,
		root:      log,
		log:       log.With().Str("component", "app").Logger(),
		startedAt: time.Now(),
	}

	if err := app.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize app: %w", err)
	}

	return app, nil
}

// initialize sets up the application components
func (a *App) initialize() error {
	driver, err := a.initializeDispatch()
	if err != nil {
		return err
	}

	if err := a.initializeTransport(driver); err != nil {
		return err
	}

	if a.cfg.API.Enabled {
		a.initializeAPIServer()
	}

	return nil
}

// initializeDispatch builds the parser registry and the driver fanning frames out to it
func (a *App) initializeDispatch() (*dispatch.Driver, error) {
	registry, err := parser.NewRegistryFromNames(a.cfg.Parsers.Enabled)
	if err != nil {
		return nil, fmt.Errorf("failed to build parser registry: %w", err)
	}
	a.registry = registry
	a.decoded = make([]atomic.Uint64, registry.Len())
	a.failed = make([]atomic.Uint64, registry.Len())

	var opts []dispatch.Option
	if a.cfg.Metrics.Enabled {
		opts = append(opts, dispatch.WithMetrics(dispatch.NewMetrics()))
	}

	a.log.Info().Strs("parsers", registry.Labels()).Msg("Parser registry ready")

	return dispatch.NewDriver(registry, a.root, opts...), nil
}

// initializeTransport sets up the framing codec and the TCP listener
func (a *App) initializeTransport(driver *dispatch.Driver) error {
	codecs := codec.NewRegistryWithMaxFrameSize(a.cfg.Server.MaxFrameSize)
	frameCodec, ok := codecs.Get(a.cfg.Server.Framing)
	if !ok {
		return fmt.Errorf("unknown framing %q, available: %v", a.cfg.Server.Framing, codecs.Names())
	}

	transportConfig := transport.Config{
		ListenAddr:     a.cfg.Server.ListenAddr,
		MaxConnections: a.cfg.Server.MaxConnections,
		WriteTimeout:   a.cfg.Server.WriteTimeout,
		ReadBufferSize: a.cfg.Server.ReadBufferSize,
	}

	var opts []tcp.Option
	if a.cfg.Metrics.Enabled {
		opts = append(opts, tcp.WithMetrics(network.NewMetrics()))
	}

	a.tcpServer = tcp.NewServer(transportConfig, frameCodec, driver, a.root, opts...)
	a.tcpServer.SetFrameHandler(a.handleFrame)
	a.tcpServer.SetCloseHandler(a.handleClose)

	return nil
}

// initializeAPIServer sets up the HTTP API server with all endpoints
func (a *App) initializeAPIServer() {
	apiCfg := apisrv.Config{
		ListenAddr:        a.cfg.API.ListenAddr,
		ReadHeaderTimeout: a.cfg.API.ReadHeaderTimeout,
		ReadTimeout:       a.cfg.API.ReadTimeout,
		WriteTimeout:      a.cfg.API.WriteTimeout,
		IdleTimeout:       a.cfg.API.IdleTimeout,
		MaxHeaderBytes:    a.cfg.API.MaxHeaderBytes,
		CORS:              a.cfg.API.CORS,
	}
	s := apisrv.NewServer(apiCfg, a.root)

	var httpMetrics *apimw.HTTPMetrics
	if a.cfg.Metrics.Enabled {
		httpMetrics = apimw.NewHTTPMetrics()
		s.Router.Use(apimw.Metrics(httpMetrics))
	}
	s.Use(apimw.RequestID())
	s.Use(apimw.Recover(a.log, httpMetrics))
	s.Use(apimw.Logger(a.log))

	// Health/readiness/stats
	s.Router.HandleFunc("/health", a.handleHealth).Methods(http.MethodGet)
	s.Router.HandleFunc("/ready", a.handleReady).Methods(http.MethodGet)
	s.Router.HandleFunc("/stats", a.handleStats).Methods(http.MethodGet)

	// Metrics
	if a.cfg.Metrics.Enabled {
		s.Router.Handle(a.cfg.Metrics.Path, promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{})).
			Methods(http.MethodGet)
	}

	// Connections and parsers
	ingresshttp.NewHandler(a.tcpServer, a.registry, a.root).RegisterMux(s.Router)

	a.apiServer = s
}

// Run starts the application and blocks until shutdown. A TCP bind failure
// is returned immediately.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if err := a.tcpServer.Start(runCtx); err != nil {
		cancel()
		return fmt.Errorf("failed to start TCP server: %w", err)
	}
	a.listening.Store(true)

	if a.cfg.Metrics.Enabled && a.cfg.Metrics.ReportInterval > 0 {
		go a.metricsReporter(runCtx)
	}

	// Start API server
	if a.apiServer != nil {
		go func() {
			if err := a.apiServer.Start(runCtx); err != nil {
				a.log.Error().Err(err).Msg("API server error")
			}
		}()
	}

	return a.runWithGracefulShutdown(runCtx)
}

// runWithGracefulShutdown handles shutdown signals.
func (a *App) runWithGracefulShutdown(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	a.log.Info().Str("addr", a.tcpServer.Addr().String()).Msg("Ingress started successfully")

	select {
	case <-ctx.Done():
		a.log.Info().Msg("Context canceled, initiating shutdown")
	case sig := <-sigCh:
		a.log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	}

	if a.cancel != nil {
		a.cancel()
	}

	return a.shutdown()
}

// shutdown stops accepting, closes open connections and waits for their
// handlers to finish.
func (a *App) shutdown() error {
	a.log.Info().Msg("Initiating graceful shutdown")
	a.listening.Store(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := a.tcpServer.Stop(shutdownCtx); err != nil {
		a.log.Error().Err(err).Msg("TCP server shutdown error")
		return err
	}

	a.log.Info().
		Uint64("frames", a.frames.Load()).
		Uint64("connections_closed", a.closed.Load()).
		Uint64("connections_failed", a.errored.Load()).
		Msg("Graceful shutdown complete")
	return nil
}

// handleFrame counts per-parser outcomes. The driver has already logged them.
func (a *App) handleFrame(ctx context.Context, _ string, frame []byte, results []parser.Result) {
	for _, r := range results {
		switch {
		case r.Decoded():
			a.decoded[r.Index].Add(1)
		case r.Err != nil:
			a.failed[r.Index].Add(1)
		}
	}
	a.frames.Add(1)

	if evt := zerolog.Ctx(ctx).Trace(); evt.Enabled() {
		ops := make([]string, len(results))
		for i, r := range results {
			ops[i] = r.Message.Operation
		}
		evt.Int("size", len(frame)).Strs("operations", ops).Msg("Frame handled")
	}
}

// handleClose counts terminal outcomes. The TCP server logs the close record.
func (a *App) handleClose(_ transport.ConnectionInfo, outcome transport.Outcome) {
	if outcome.State == transport.StateFailed {
		a.errored.Add(1)
	} else {
		a.closed.Add(1)
	}
}

// handleHealth responds to health check requests.
func (a *App) handleHealth(w http.ResponseWriter, _ *http.Request) {
	apisrv.WriteJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleReady reports ready once the TCP listener is bound.
func (a *App) handleReady(w http.ResponseWriter, _ *http.Request) {
	if !a.listening.Load() {
		apisrv.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not_listening"})
		return
	}
	apisrv.WriteJSON(w, http.StatusOK, map[string]any{
		"status":      "ready",
		"listen_addr": a.tcpServer.Addr().String(),
		"connections": len(a.tcpServer.GetConnections()),
	})
}

func (a *App) handleStats(w http.ResponseWriter, _ *http.Request) {
	apisrv.WriteJSON(w, http.StatusOK, a.GetStats())
}

// GetStats returns application statistics.
func (a *App) GetStats() map[string]any {
	decoded := make(map[string]uint64, a.registry.Len())
	failed := make(map[string]uint64, a.registry.Len())
	for i := 0; i < a.registry.Len(); i++ {
		decoded[a.registry.Label(i)] = a.decoded[i].Load()
		failed[a.registry.Label(i)] = a.failed[i].Load()
	}

	return map[string]any{
		"active_connections": len(a.tcpServer.GetConnections()),
		"connections_closed": a.closed.Load(),
		"connections_failed": a.errored.Load(),
		"frames_processed":   a.frames.Load(),
		"decoded":            decoded,
		"parser_failures":    failed,
		"framing":            a.cfg.Server.Framing,
		"parsers":            a.registry.Labels(),
		"uptime_seconds":     time.Since(a.startedAt).Seconds(),
		"app_version":        Version,
		"app_build_time":     BuildTime,
		"app_git_commit":     GitCommit,
	}
}

// metricsReporter periodically reports application statistics.
func (a *App) metricsReporter(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.Metrics.ReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := a.GetStats()

			a.log.Info().
				Int("active_connections", stats["active_connections"].(int)).
				Uint64("frames_processed", stats["frames_processed"].(uint64)).
				Uint64("connections_closed", stats["connections_closed"].(uint64)).
				Uint64("connections_failed", stats["connections_failed"].(uint64)).
				Float64("uptime_seconds", stats["uptime_seconds"].(float64)).
				Msg("Ingress statistics")
		}
	}
}
