// Package transport owns the WebSocket connection to the negotiation service.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/xiaot623/gogo/negotiator/internal/protocol"
)

// ErrTransportClosed is returned by Send when no connection is open.
var ErrTransportClosed = errors.New("transport closed")

// ConnectionStatus is the connection indicator. It is not a negotiation event.
type ConnectionStatus string

const (
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusDisconnected ConnectionStatus = "disconnected"
)

// Label renders the status for the connection indicator.
func (s ConnectionStatus) Label() string {
	switch s {
	case StatusConnected:
		return "API CONNECTED"
	case StatusConnecting:
		return "API CONNECTING"
	default:
		return "API DISCONNECTED"
	}
}

// Options configures the adapter. Zero durations disable the matching behavior.
type Options struct {
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	MaxMessageSize int64
	Logger         *slog.Logger
	Dialer         *websocket.Dialer
}

// Stream is one open connection. Events is closed when the connection ends;
// Status delivers StatusConnected and then StatusDisconnected.
type Stream struct {
	ID     string
	Events <-chan protocol.Event
	Status <-chan ConnectionStatus
}

// Adapter holds at most one open connection.
type Adapter struct {
	opts   Options
	logger *slog.Logger

	mu   sync.Mutex
	conn *connection
}

// New creates an adapter.
func New(opts Options) *Adapter {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &Adapter{opts: opts, logger: opts.Logger}
}

// Start closes any open connection and dials endpoint. The connection is
// closed when ctx is done.
func (a *Adapter) Start(ctx context.Context, endpoint string) (*Stream, error) {
	a.Close()

	ws, _, err := a.opts.Dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", endpoint, err)
	}
	if a.opts.MaxMessageSize > 0 {
		ws.SetReadLimit(a.opts.MaxMessageSize)
	}

	events := make(chan protocol.Event, 64)
	status := make(chan ConnectionStatus, 2)
	id := uuid.New().String()
	conn := &connection{
		id:     id,
		ws:     ws,
		send:   make(chan []byte, 16),
		done:   make(chan struct{}),
		opts:   a.opts,
		logger: a.logger.With("conn_id", id),
	}

	a.mu.Lock()
	a.conn = conn
	a.mu.Unlock()

	status <- StatusConnected
	conn.logger.Info("Connected to negotiation stream", "endpoint", endpoint)

	go conn.writePump()
	go func() {
		conn.readPump(events)
		status <- StatusDisconnected
		close(status)
		close(events)
		a.release(conn)
	}()
	go func() {
		select {
		case <-ctx.Done():
			conn.close()
		case <-conn.done:
		}
	}()

	return &Stream{ID: conn.id, Events: events, Status: status}, nil
}

// Send encodes cmd and queues it on the open connection.
func (a *Adapter) Send(cmd protocol.Command) error {
	data, err := protocol.Encode(cmd)
	if err != nil {
		return err
	}

	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()
	if conn == nil {
		a.logger.Warn("Dropping command, no open connection", "command", cmd.CommandType())
		return ErrTransportClosed
	}
	if err := conn.enqueue(data); err != nil {
		conn.logger.Warn("Dropping command", "command", cmd.CommandType(), "error", err)
		return err
	}
	return nil
}

// Connected reports whether a connection is open.
func (a *Adapter) Connected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conn != nil
}

// Close closes the open connection, if any. It is safe to call repeatedly.
func (a *Adapter) Close() error {
	a.mu.Lock()
	conn := a.conn
	a.conn = nil
	a.mu.Unlock()
	if conn != nil {
		conn.close()
	}
	return nil
}

func (a *Adapter) release(conn *connection) {
	a.mu.Lock()
	if a.conn == conn {
		a.conn = nil
	}
	a.mu.Unlock()
}
