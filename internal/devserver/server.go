// Package devserver is a local negotiation service: it streams scripted
// negotiations over WebSocket and serves the finished ones as history.
package devserver

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/xiaot623/gogo/negotiator/internal/protocol"
)

// DefaultTurnDelay is the pause before each scripted move.
const DefaultTurnDelay = 500 * time.Millisecond

// Options configures a Server.
type Options struct {
	Rules     Rules
	TurnDelay time.Duration
	// HumanAgent is the party the operator plays once manual control is on.
	HumanAgent     protocol.Agent
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	MaxMessageSize int64
	// Valuations draws the private valuations of a new session.
	Valuations func() (supplier, retailer float64)
	// History defaults to a MemoryStore.
	History History
	// Policy vets operator moves. Nil lets every move through to the rules.
	Policy *MovePolicy
	Logger *slog.Logger
}

// Server handles the negotiation stream and the history API.
type Server struct {
	echo     *echo.Echo
	opts     Options
	logger   *slog.Logger
	history  History
	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[string]*session
	wg       sync.WaitGroup
}

// NewServer creates a server with its routes registered.
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.TurnDelay < 0 {
		opts.TurnDelay = 0
	}
	if !opts.HumanAgent.Valid() {
		opts.HumanAgent = protocol.AgentRetailer
	}
	if opts.Rules == (Rules{}) {
		opts.Rules = DefaultRules()
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = 65536
	}
	if opts.History == nil {
		opts.History = NewMemoryStore()
	}
	if opts.Valuations == nil {
		opts.Valuations = func() (float64, float64) { return Valuations(rand.Float64) }
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:    e,
		opts:    opts,
		logger:  opts.Logger,
		history: opts.History,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		sessions: make(map[string]*session),
	}

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod: true,
		LogURI:    true,
		LogStatus: true,
		LogError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Debug("HTTP request", "method", v.Method, "uri", v.URI, "status", v.Status, "error", v.Error)
			return nil
		},
	}))
	e.Use(middleware.Recover())

	e.GET("/health", s.handleHealth)
	e.GET("/ws/negotiate", s.handleNegotiate)
	e.GET("/api/sessions", s.handleListSessions)
	e.GET("/api/sessions/:id", s.handleGetSession)

	return s
}

// Handler exposes the routes, for mounting under httptest.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// History returns where finished sessions are recorded.
func (s *Server) History() History {
	return s.history
}

// Start listens on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.logger.Info("Negotiation dev server listening", "addr", addr)
	return s.echo.Start(addr)
}

// Shutdown stops accepting requests, drops open streams and waits for their
// sessions to exit.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.echo.Shutdown(ctx)

	s.mu.Lock()
	for _, sess := range s.sessions {
		sess.ws.Close()
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
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}

func (s *Server) handleHealth(c echo.Context) error {
	s.mu.Lock()
	active := len(s.sessions)
	s.mu.Unlock()

	recorded, err := s.history.Count(c.Request().Context())
	if err != nil {
		s.logger.Error("Failed to count sessions", "error", err)
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status":   "healthy",
		"active":   active,
		"recorded": recorded,
	})
}

func (s *Server) handleListSessions(c echo.Context) error {
	sessions, err := s.history.List(c.Request().Context())
	if err != nil {
		s.logger.Error("Failed to list sessions", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to list sessions"})
	}
	return c.JSON(http.StatusOK, sessions)
}

func (s *Server) handleGetSession(c echo.Context) error {
	id := c.Param("id")
	record, err := s.history.Get(c.Request().Context(), id)
	if errors.Is(err, ErrSessionNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "session not found: " + id})
	}
	if err != nil {
		s.logger.Error("Failed to load session", "session_id", id, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to load session"})
	}
	return c.JSON(http.StatusOK, record)
}

// handleNegotiate upgrades the request and runs one negotiation on it.
func (s *Server) handleNegotiate(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Warn("Failed to upgrade WebSocket", "error", err)
		return err
	}
	ws.SetReadLimit(s.opts.MaxMessageSize)

	sess := newSession(s, ws)
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	s.wg.Add(3)
	go func() {
		defer s.wg.Done()
		sess.writePump()
	}()
	go func() {
		defer s.wg.Done()
		sess.readPump()
	}()
	go func() {
		defer s.wg.Done()
		sess.run()
		s.mu.Lock()
		delete(s.sessions, sess.id)
		s.mu.Unlock()
	}()
	return nil
}
