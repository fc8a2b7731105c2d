package tcp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/ingress/internal/network"
	"github.com/compose-network/ingress/metrics"
	"github.com/compose-network/ingress/x/codec"
	"github.com/compose-network/ingress/x/parser"
	"github.com/compose-network/ingress/x/transport"
)

type closeRecord struct {
	info    transport.ConnectionInfo
	outcome transport.Outcome
}

func startServer(t *testing.T, c codec.Codec, cfg transport.Config, opts ...Option) (*Server, chan closeRecord) {
	t.Helper()

	cfg.ListenAddr = "127.0.0.1:0"
	s := NewServer(cfg, c, newTestDriver(t, parser.NewKafkaParser(), parser.NewJSONParser()), zerolog.Nop(), opts...)

	closed := make(chan closeRecord, 16)
	s.SetCloseHandler(func(info transport.ConnectionInfo, outcome transport.Outcome) {
		closed <- closeRecord{info: info, outcome: outcome}
	})

	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})

	return s, closed
}

func dial(t *testing.T, s *Server) *net.TCPConn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", s.Addr().String(), time.Second)
	require.NoError(t, err)
	return conn.(*net.TCPConn)
}

func waitClose(t *testing.T, closed <-chan closeRecord) closeRecord {
	t.Helper()
	select {
	case rec := <-closed:
		return rec
	case <-time.After(5 * time.Second):
		t.Fatalf("timeout waiting for connection close")
		return closeRecord{}
	}
}

func TestServer_BindFailureIsReturned(t *testing.T) {
	t.Parallel()

	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	cfg := transport.DefaultConfig()
	cfg.ListenAddr = taken.Addr().String()
	s := NewServer(cfg, codec.NewRawCodec(), newTestDriver(t), zerolog.Nop())

	err = s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to bind")
	assert.Nil(t, s.Addr())
}

func TestServer_PeerCloseAndResetAreDistinguishable(t *testing.T) {
	t.Parallel()

	s, closed := startServer(t, codec.NewRawCodec(), transport.DefaultConfig())

	clean := dial(t, s)
	_, err := clean.Write([]byte(`{"operation":"start"}`))
	require.NoError(t, err)
	require.NoError(t, clean.CloseWrite())

	first := waitClose(t, closed)
	assert.Equal(t, clean.LocalAddr().String(), first.info.RemoteAddr)
	assert.Equal(t, transport.StateClosed, first.outcome.State)
	require.NoError(t, first.outcome.Err)
	_ = clean.Close()

	abrupt := dial(t, s)
	_, err = abrupt.Write([]byte(`{"operation":"start"}`))
	require.NoError(t, err)
	require.NoError(t, abrupt.SetLinger(0))
	require.NoError(t, abrupt.Close())

	second := waitClose(t, closed)
	assert.Equal(t, transport.StateFailed, second.outcome.State)
	require.Error(t, second.outcome.Err)

	assert.NotEqual(t, first.outcome.State, second.outcome.State)
}

func TestServer_DecodeFailureKeepsConnectionReading(t *testing.T) {
	t.Parallel()

	s, closed := startServer(t, codec.NewRawCodec(), transport.DefaultConfig())

	ops := make(chan parser.Result, 8)
	s.SetFrameHandler(func(_ context.Context, _ string, _ []byte, results []parser.Result) {
		ops <- results[1]
	})

	conn := dial(t, s)
	defer conn.Close()

	next := func() parser.Result {
		select {
		case r := <-ops:
			return r
		case <-time.After(5 * time.Second):
			t.Fatalf("timeout waiting for frame")
			return parser.Result{}
		}
	}

	_, err := conn.Write([]byte(`{`))
	require.NoError(t, err)
	bad := next()
	require.ErrorIs(t, bad.Err, parser.ErrMalformed)
	assert.True(t, bad.Message.IsSentinel())

	_, err = conn.Write([]byte(`{"operation":"start"}`))
	require.NoError(t, err)
	good := next()
	require.NoError(t, good.Err)
	assert.Equal(t, "start", good.Message.Operation)

	require.NoError(t, conn.CloseWrite())
	rec := waitClose(t, closed)
	assert.Equal(t, transport.StateClosed, rec.outcome.State)
	assert.Equal(t, uint64(2), rec.outcome.Frames)
}

func TestServer_ConcurrentConnectionsSeeOnlyTheirOwnBytes(t *testing.T) {
	t.Parallel()

	lp := codec.NewLengthPrefixedCodec(1024)
	s, closed := startServer(t, lp, transport.DefaultConfig())

	var (
		mu     sync.Mutex
		byConn = make(map[string][]string)
	)
	s.SetFrameHandler(func(_ context.Context, connID string, _ []byte, results []parser.Result) {
		mu.Lock()
		defer mu.Unlock()
		byConn[connID] = append(byConn[connID], results[1].Message.Operation)
	})

	const (
		clients = 4
		frames  = 50
	)

	var wg sync.WaitGroup
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			nc, err := net.DialTimeout("tcp", s.Addr().String(), time.Second)
			if !assert.NoError(t, err) {
				return
			}
			conn := nc.(*net.TCPConn)
			defer conn.Close()

			wire := new(bytes.Buffer)
			for j := 0; j < frames; j++ {
				assert.NoError(t, lp.Encode([]byte(fmt.Sprintf(`{"operation":"client-%d"}`, i)), wire))
			}
			_, err = conn.Write(wire.Bytes())
			assert.NoError(t, err)
			assert.NoError(t, conn.CloseWrite())
		}(i)
	}
	wg.Wait()

	for i := 0; i < clients; i++ {
		rec := waitClose(t, closed)
		assert.Equal(t, transport.StateClosed, rec.outcome.State)
		assert.Equal(t, uint64(frames), rec.outcome.Frames)
	}

	mu.Lock()
	defer mu.Unlock()

	require.Len(t, byConn, clients)
	seen := make(map[string]bool)
	for connID, ops := range byConn {
		require.Len(t, ops, frames, connID)
		for _, op := range ops {
			assert.Equal(t, ops[0], op, "connection %s saw a foreign frame", connID)
		}
		assert.False(t, seen[ops[0]], "two connections decoded the same payload")
		seen[ops[0]] = true
	}
}

func TestServer_RejectsBeyondMaxConnections(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := network.NewMetricsWith(metrics.NewComponentRegistryWith(reg, metrics.Namespace, "network"))

	cfg := transport.DefaultConfig()
	cfg.MaxConnections = 1
	s, _ := startServer(t, codec.NewRawCodec(), cfg, WithMetrics(m))

	first := dial(t, s)
	defer first.Close()
	require.Eventually(t, func() bool { return len(s.GetConnections()) == 1 }, 5*time.Second, 10*time.Millisecond)

	second := dial(t, s)
	defer second.Close()
	require.NoError(t, second.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err := second.Read(make([]byte, 1))
	require.ErrorIs(t, err, io.EOF)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConnectionsTotal.WithLabelValues(network.StateRejected)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConnectionsActive))
}

func TestServer_StopClosesOpenConnections(t *testing.T) {
	t.Parallel()

	cfg := transport.DefaultConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	s := NewServer(cfg, codec.NewRawCodec(), newTestDriver(t, parser.NewJSONParser()), zerolog.Nop())

	closed := make(chan closeRecord, 1)
	s.SetCloseHandler(func(info transport.ConnectionInfo, outcome transport.Outcome) {
		closed <- closeRecord{info: info, outcome: outcome}
	})
	require.NoError(t, s.Start(context.Background()))

	conn := dial(t, s)
	defer conn.Close()
	require.Eventually(t, func() bool { return len(s.GetConnections()) == 1 }, 5*time.Second, 10*time.Millisecond)

	info := s.GetConnections()[0]
	got, ok := s.GetConnection(info.ID)
	require.True(t, ok)
	assert.Equal(t, info.ID, got.ID())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))

	rec := waitClose(t, closed)
	assert.Equal(t, transport.StateFailed, rec.outcome.State)
	assert.Empty(t, s.GetConnections())

	_, ok = s.GetConnection(info.ID)
	assert.False(t, ok)
}

func TestNextBackoff(t *testing.T) {
	t.Parallel()

	assert.Equal(t, minAcceptBackoff, nextBackoff(0))
	assert.Equal(t, 2*minAcceptBackoff, nextBackoff(minAcceptBackoff))
	assert.Equal(t, maxAcceptBackoff, nextBackoff(maxAcceptBackoff))
}
