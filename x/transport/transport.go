package transport

import (
	"context"
	"net"
	"time"

	"github.com/compose-network/ingress/x/parser"
)

// State is a connection handler's lifecycle state.
type State int32

const (
	StateOpen State = iota
	StateReading
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateReading:
		return "reading"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further reads will happen.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateFailed
}

// Config holds transport configuration
type Config struct {
	ListenAddr     string
	MaxConnections int
	WriteTimeout   time.Duration
	ReadBufferSize int
}

// DefaultConfig returns the transport defaults
func DefaultConfig() Config {
	return Config{
		ListenAddr:     "127.0.0.1:12345",
		MaxConnections: 1000,
		WriteTimeout:   20 * time.Second,
		ReadBufferSize: 16384,
	}
}

// ConnectionInfo contains information about a connection
type ConnectionInfo struct {
	ID           string    `json:"id"`
	RemoteAddr   string    `json:"remote_addr"`
	State        State     `json:"-"`
	StateName    string    `json:"state"`
	ConnectedAt  time.Time `json:"connected_at"`
	LastSeen     time.Time `json:"last_seen"`
	BytesRead    uint64    `json:"bytes_read"`
	BytesWritten uint64    `json:"bytes_written"`
	FramesRead   uint64    `json:"frames_read"`
}

// Outcome is the terminal record of one connection handler.
// State is StateClosed for a clean peer close and StateFailed for an I/O error,
// in which case Err is set.
type Outcome struct {
	State    State
	Err      error
	Frames   uint64
	Bytes    uint64
	Duration time.Duration
}

// FrameHandler observes every dispatched frame with its parser results. It runs
// on the connection's goroutine before the next read.
type FrameHandler func(ctx context.Context, connID string, frame []byte, results []parser.Result)

// CloseHandler observes a connection's terminal outcome.
type CloseHandler func(info ConnectionInfo, outcome Outcome)

// Connection is one accepted peer.
type Connection interface {
	ID() string
	Info() ConnectionInfo
	// Write sends data through the framing encoder.
	Write(data []byte) error
	Close() error
}

// Server accepts connections and runs one handler per connection.
type Server interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Addr() net.Addr
	SetFrameHandler(handler FrameHandler)
	SetCloseHandler(handler CloseHandler)
	GetConnections() []ConnectionInfo
	GetConnection(id string) (Connection, bool)
}
