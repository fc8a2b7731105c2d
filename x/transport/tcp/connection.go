package tcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/compose-network/ingress/internal/network"
	"github.com/compose-network/ingress/x/codec"
	"github.com/compose-network/ingress/x/dispatch"
	"github.com/compose-network/ingress/x/transport"
)

// connection implements transport.Connection and owns one peer's read loop
type connection struct {
	net.Conn
	id           string
	codec        codec.Codec
	log          zerolog.Logger
	ctxLog       zerolog.Logger // connection fields only, carried to dispatch via ctx
	metrics      *network.Metrics
	writeTimeout time.Duration

	state atomic.Int32

	mu   sync.RWMutex
	info transport.ConnectionInfo

	// Read side, touched only by the serving goroutine
	buf     bytes.Buffer
	scratch []byte

	writeMu sync.Mutex
	out     bytes.Buffer

	bytesRead    atomic.Uint64
	bytesWritten atomic.Uint64
	framesRead   atomic.Uint64
}

func newConnection(
	netConn net.Conn,
	id string,
	c codec.Codec,
	cfg transport.Config,
	log zerolog.Logger,
	metrics *network.Metrics,
) *connection {
	now := time.Now()

	bufSize := cfg.ReadBufferSize
	if bufSize <= 0 {
		bufSize = transport.DefaultConfig().ReadBufferSize
	}

	remote := ""
	if addr := netConn.RemoteAddr(); addr != nil {
		remote = addr.String()
	}

	conn := &connection{
		Conn:         netConn,
		id:           id,
		codec:        c,
		metrics:      metrics,
		writeTimeout: cfg.WriteTimeout,
		scratch:      make([]byte, bufSize),
		log: log.With().
			Str("component", serverComponent).
			Str("conn_id", id).
			Str("remote_addr", remote).
			Logger(),
		ctxLog: log.With().
			Str("conn_id", id).
			Str("remote_addr", remote).
			Logger(),
		info: transport.ConnectionInfo{
			ID:          id,
			RemoteAddr:  remote,
			ConnectedAt: now,
			LastSeen:    now,
		},
	}
	conn.state.Store(int32(transport.StateOpen))

	return conn
}

// serve runs the read loop until the peer closes or an I/O error occurs.
// Each frame is dispatched synchronously before the next read, so frames of
// one connection are handled strictly in arrival order.
func (c *connection) serve(ctx context.Context, driver *dispatch.Driver, onFrame transport.FrameHandler) transport.Outcome {
	c.setState(transport.StateReading)
	ctx = c.ctxLog.WithContext(ctx)

	for {
		n, err := c.Conn.Read(c.scratch)
		if n > 0 {
			c.buf.Write(c.scratch[:n])
			c.bytesRead.Add(uint64(n))
			c.UpdateLastSeen()
			if c.metrics != nil {
				c.metrics.RecordBytesRead(n)
			}

			if derr := c.drain(ctx, driver, onFrame); derr != nil {
				return c.terminate(fmt.Errorf("decode frame: %w", derr))
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				return c.terminate(nil)
			}
			return c.terminate(err)
		}
	}
}

// drain decodes and dispatches every frame currently available in buf.
func (c *connection) drain(ctx context.Context, driver *dispatch.Driver, onFrame transport.FrameHandler) error {
	for {
		frame, err := c.codec.Decode(&c.buf)
		if err != nil {
			return err
		}
		if frame == nil {
			return nil
		}

		c.framesRead.Add(1)
		if c.metrics != nil {
			c.metrics.RecordFrameReceived(len(frame))
		}

		results := driver.Dispatch(ctx, frame)
		if onFrame != nil {
			onFrame(ctx, c.id, frame, results)
		}
	}
}

// terminate moves the handler to its terminal state. A nil err means the
// peer closed the stream cleanly.
func (c *connection) terminate(err error) transport.Outcome {
	state := transport.StateClosed
	if err != nil {
		state = transport.StateFailed
	}
	c.setState(state)

	if pending := c.buf.Len(); pending > 0 {
		c.log.Debug().Int("pending_bytes", pending).Msg("Discarding undecoded bytes")
		c.buf.Reset()
	}

	c.mu.RLock()
	connectedAt := c.info.ConnectedAt
	c.mu.RUnlock()

	return transport.Outcome{
		State:    state,
		Err:      err,
		Frames:   c.framesRead.Load(),
		Bytes:    c.bytesRead.Load(),
		Duration: time.Since(connectedAt),
	}
}

// Write encodes data with the connection's codec and writes it to the peer
func (c *connection) Write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.out.Reset()
	if err := c.codec.Encode(data, &c.out); err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}

	if c.writeTimeout > 0 {
		if err := c.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return fmt.Errorf("failed to set write deadline: %w", err)
		}
	}

	n, err := c.Conn.Write(c.out.Bytes())
	c.bytesWritten.Add(uint64(n)) //nolint: gosec // n is never negative
	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordError("io", "write")
		}
		return err
	}

	if c.metrics != nil {
		c.metrics.RecordFrameSent(n)
	}
	return nil
}

// ID returns the connection ID.
func (c *connection) ID() string {
	return c.id
}

// State returns the handler's lifecycle state.
func (c *connection) State() transport.State {
	return transport.State(c.state.Load())
}

func (c *connection) setState(s transport.State) {
	c.state.Store(int32(s))
}

// Info returns connection information.
func (c *connection) Info() transport.ConnectionInfo {
	c.mu.RLock()
	info := c.info
	c.mu.RUnlock()

	info.State = c.State()
	info.StateName = info.State.String()
	info.BytesRead = c.bytesRead.Load()
	info.BytesWritten = c.bytesWritten.Load()
	info.FramesRead = c.framesRead.Load()

	return info
}

// UpdateLastSeen updates the last seen timestamp.
func (c *connection) UpdateLastSeen() {
	c.mu.Lock()
	c.info.LastSeen = time.Now()
	c.mu.Unlock()
}
