package transport

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xiaot623/gogo/negotiator/internal/protocol"
)

var errSendBufferFull = errors.New("send buffer full")

// connection is a single WebSocket connection and its pumps.
type connection struct {
	id     string
	ws     *websocket.Conn
	send   chan []byte
	done   chan struct{}
	opts   Options
	logger *slog.Logger

	closeOnce sync.Once
}

func (c *connection) enqueue(data []byte) error {
	select {
	case <-c.done:
		return ErrTransportClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrTransportClosed
	default:
		return errSendBufferFull
	}
}

// close stops both pumps. Safe to call more than once.
func (c *connection) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		deadline := time.Now().Add(time.Second)
		if c.opts.WriteTimeout > 0 {
			deadline = time.Now().Add(c.opts.WriteTimeout)
		}
		c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		c.ws.Close()
	})
}

// readPump parses inbound frames until the connection ends. Malformed frames
// are logged and skipped.
func (c *connection) readPump(events chan<- protocol.Event) {
	defer c.close()

	c.extendReadDeadline()
	c.ws.SetPongHandler(func(string) error {
		c.extendReadDeadline()
		return nil
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					c.logger.Warn("WebSocket error", "error", err)
				} else {
					c.logger.Info("Negotiation stream closed", "error", err)
				}
			}
			return
		}
		c.extendReadDeadline()

		evt, err := protocol.Parse(message)
		if err != nil {
			c.logger.Warn("Dropping malformed event", "error", err)
			continue
		}

		select {
		case events <- evt:
		case <-c.done:
			return
		}
	}
}

// writePump writes queued commands and keepalive pings.
func (c *connection) writePump() {
	var tick <-chan time.Time
	if c.opts.PingInterval > 0 {
		ticker := time.NewTicker(c.opts.PingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-c.done:
			return

		case message := <-c.send:
			c.setWriteDeadline()
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Warn("Failed to write message", "error", err)
				c.close()
				return
			}

		case <-tick:
			c.setWriteDeadline()
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

func (c *connection) extendReadDeadline() {
	if c.opts.ReadTimeout > 0 {
		c.ws.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
	}
}

func (c *connection) setWriteDeadline() {
	if c.opts.WriteTimeout > 0 {
		c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	}
}
