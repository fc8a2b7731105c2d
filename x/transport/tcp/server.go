package tcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/compose-network/ingress/internal/network"
	"github.com/compose-network/ingress/x/codec"
	"github.com/compose-network/ingress/x/dispatch"
	"github.com/compose-network/ingress/x/transport"
)

var (
	_ transport.Server     = (*Server)(nil)
	_ transport.Connection = (*connection)(nil)
)

const serverComponent = "tcp-server"

const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// Server implements transport.Server over TCP with one goroutine per connection
type Server struct {
	cfg     transport.Config
	codec   codec.Codec
	driver  *dispatch.Driver
	base    zerolog.Logger
	log     zerolog.Logger
	metrics *network.Metrics

	mu           sync.RWMutex
	listener     net.Listener
	connections  map[string]*connection
	frameHandler transport.FrameHandler
	closeHandler transport.CloseHandler
	cancel       context.CancelFunc
	running      bool

	wg sync.WaitGroup
}

// Option configures a Server
type Option func(*Server)

// WithMetrics records network metrics on m
func WithMetrics(m *network.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// NewServer creates a TCP server that frames inbound bytes with c and hands
// every frame to driver.
func NewServer(cfg transport.Config, c codec.Codec, driver *dispatch.Driver, log zerolog.Logger, opts ...Option) *Server {
	s := &Server{
		cfg:         cfg,
		codec:       c,
		driver:      driver,
		base:        log,
		log:         log.With().Str("component", serverComponent).Logger(),
		connections: make(map[string]*connection),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetFrameHandler sets the callback invoked after each frame is dispatched
func (s *Server) SetFrameHandler(handler transport.FrameHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frameHandler = handler
}

// SetCloseHandler sets the callback invoked when a connection terminates
func (s *Server) SetCloseHandler(handler transport.CloseHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeHandler = handler
}

// Start binds the listen address and starts accepting connections. A bind
// failure is returned to the caller and is not retried.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("server already running")
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", s.cfg.ListenAddr, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.listener = ln
	s.cancel = cancel
	s.running = true

	go func() {
		<-runCtx.Done()
		_ = ln.Close()
	}()

	s.wg.Add(1)
	go s.acceptLoop(runCtx, ln)

	s.log.Info().
		Str("addr", ln.Addr().String()).
		Int("max_connections", s.cfg.MaxConnections).
		Str("framing", s.codec.Name()).
		Int("parsers", s.driver.Registry().Len()).
		Msg("TCP server started")

	return nil
}

// Stop closes the listener and every open connection, then waits for the
// handlers to finish or ctx to expire.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.cancel()
	err := s.listener.Close()

	for _, conn := range s.connections {
		_ = conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("waiting for connection handlers: %w", ctx.Err())
	}

	s.log.Info().Msg("TCP server stopped")

	if err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// Addr returns the bound listen address, or nil before Start
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// GetConnections returns information about every open connection
func (s *Server) GetConnections() []transport.ConnectionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]transport.ConnectionInfo, 0, len(s.connections))
	for _, conn := range s.connections {
		infos = append(infos, conn.Info())
	}
	return infos
}

// GetConnection returns an open connection by ID
func (s *Server) GetConnection(id string) (transport.Connection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conn, ok := s.connections[id]
	if !ok {
		return nil, false
	}
	return conn, true
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) {
	defer s.wg.Done()

	var backoff time.Duration
	for {
		netConn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}

			backoff = nextBackoff(backoff)
			s.log.Error().Err(err).Dur("retry_in", backoff).Msg("Accept failed")
			if s.metrics != nil {
				s.metrics.RecordError("accept", "accept")
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			continue
		}
		backoff = 0

		conn, ok := s.register(netConn)
		if !ok {
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(ctx, conn)
	}
}

func nextBackoff(current time.Duration) time.Duration {
	if current == 0 {
		return minAcceptBackoff
	}
	return min(current*2, maxAcceptBackoff)
}

// register tracks a new connection, rejecting it when the limit is reached.
func (s *Server) register(netConn net.Conn) (*connection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || (s.cfg.MaxConnections > 0 && len(s.connections) >= s.cfg.MaxConnections) {
		s.log.Warn().
			Str("remote_addr", netConn.RemoteAddr().String()).
			Int("active", len(s.connections)).
			Msg("Connection rejected")
		if s.metrics != nil {
			s.metrics.RecordConnection(network.StateRejected)
		}
		_ = netConn.Close()
		return nil, false
	}

	conn := newConnection(netConn, uuid.NewString(), s.codec, s.cfg, s.base, s.metrics)
	s.connections[conn.id] = conn

	if s.metrics != nil {
		s.metrics.RecordConnection(network.StateAccepted)
	}
	conn.log.Info().Msg("Connection accepted")

	return conn, true
}

func (s *Server) handleConnection(ctx context.Context, conn *connection) {
	defer s.wg.Done()

	s.mu.RLock()
	onFrame := s.frameHandler
	onClose := s.closeHandler
	s.mu.RUnlock()

	outcome := conn.serve(ctx, s.driver, onFrame)
	_ = conn.Close()

	s.mu.Lock()
	delete(s.connections, conn.id)
	s.mu.Unlock()

	stateLabel := network.StateClosed
	if outcome.State == transport.StateFailed {
		stateLabel = network.StateFailed
	}

	evt := conn.log.Info()
	if outcome.Err != nil {
		evt = conn.log.Warn().Err(outcome.Err)
		if s.metrics != nil {
			s.metrics.RecordError("io", "read")
		}
	}
	evt.
		Str("state", outcome.State.String()).
		Uint64("frames", outcome.Frames).
		Uint64("bytes", outcome.Bytes).
		Dur("duration", outcome.Duration).
		Msg(closeMessage(outcome))

	if s.metrics != nil {
		s.metrics.RecordConnection(stateLabel)
		s.metrics.RecordConnectionDuration(stateLabel, outcome.Duration)
	}

	if onClose != nil {
		onClose(conn.Info(), outcome)
	}
}

func closeMessage(outcome transport.Outcome) string {
	if outcome.State == transport.StateFailed {
		return "Connection closed with error"
	}
	return "Connection closed by peer"
}
