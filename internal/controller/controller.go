// Package controller runs the session lifecycle: it owns the single live
// connection or replay, folds their events into view state and publishes a
// snapshot after every change.
package controller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/xiaot623/gogo/negotiator/internal/metrics"
	"github.com/xiaot623/gogo/negotiator/internal/projector"
	"github.com/xiaot623/gogo/negotiator/internal/protocol"
	"github.com/xiaot623/gogo/negotiator/internal/transport"
)

var (
	// ErrInvalidTransition is returned when an operation is not allowed in the current mode.
	ErrInvalidTransition = errors.New("invalid session transition")
	// ErrNotAwaitingHuman is returned for operator moves outside a live wait.
	ErrNotAwaitingHuman = errors.New("not awaiting a human move")
	// ErrSuperseded is returned when a newer session replaced this one while it was starting.
	ErrSuperseded = errors.New("session superseded")
)

// Mode is the controller lifecycle state.
type Mode string

const (
	ModeIdle      Mode = "idle"
	ModeStarting  Mode = "starting"
	ModeLive      Mode = "live"
	ModeReplaying Mode = "replaying"
	ModeEnded     Mode = "ended"
)

// DefaultBadgeGrace is how long the replay badge stays after a replay ends.
const DefaultBadgeGrace = 3 * time.Second

// Snapshot is the published controller state. It must be treated as read-only.
type Snapshot struct {
	Mode       Mode
	Connection transport.ConnectionStatus
	View       projector.ViewState
	// ReplayID is the replayed session id while the replay badge is shown.
	ReplayID      string
	ManualEnabled bool
	Sessions      []protocol.SessionSummary
	Notice        string
}

// Sink receives every published snapshot, in order.
type Sink interface {
	Publish(Snapshot)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Snapshot)

func (f SinkFunc) Publish(s Snapshot) { f(s) }

// Transport is the live connection owner.
type Transport interface {
	Start(ctx context.Context, endpoint string) (*transport.Stream, error)
	Send(cmd protocol.Command) error
	Close() error
}

// Directory is the recorded session history.
type Directory interface {
	ListSessions(ctx context.Context) ([]protocol.SessionSummary, error)
	FetchSession(ctx context.Context, id string) (*protocol.SessionRecord, error)
}

// Player paces a recorded session.
type Player interface {
	Play(ctx context.Context, rec *protocol.SessionRecord, emit func(protocol.Event) error) error
}

// Options configures a Controller.
type Options struct {
	Endpoint      string
	ManualControl bool
	BadgeGrace    time.Duration
	Logger        *slog.Logger
	Metrics       metrics.Recorder
}

// Controller serializes every state change under one mutex. Each started
// session gets a new generation; events carrying an older generation are
// dropped.
type Controller struct {
	transport Transport
	directory Directory
	player    Player
	sink      Sink
	opts      Options
	logger    *slog.Logger
	metrics   metrics.Recorder

	mu         sync.Mutex
	mode       Mode
	sourceMode Mode
	generation uint64
	view       projector.ViewState
	connection transport.ConnectionStatus
	replayID   string
	manual     bool
	sessions   []protocol.SessionSummary
	notice     string
	cancel     context.CancelFunc
	badge      *time.Timer

	// base bounds background work; Close cancels it.
	base     context.Context
	shutdown context.CancelFunc
	wg       sync.WaitGroup
}

// New creates a controller in ModeIdle.
func New(t Transport, d Directory, p Player, sink Sink, opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNoOp()
	}
	if opts.BadgeGrace <= 0 {
		opts.BadgeGrace = DefaultBadgeGrace
	}
	if sink == nil {
		sink = SinkFunc(func(Snapshot) {})
	}
	base, shutdown := context.WithCancel(context.Background())
	return &Controller{
		base:       base,
		shutdown:   shutdown,
		transport:  t,
		directory:  d,
		player:     p,
		sink:       sink,
		opts:       opts,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		mode:       ModeIdle,
		view:       projector.New(),
		connection: transport.StatusDisconnected,
		sessions:   []protocol.SessionSummary{},
	}
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Close stops the active session, cancels background work and waits for it to
// finish.
func (c *Controller) Close() {
	c.shutdown()
	c.Stop()
	c.wg.Wait()
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		Mode:          c.mode,
		Connection:    c.connection,
		View:          c.view,
		ReplayID:      c.replayID,
		ManualEnabled: c.manual,
		Sessions:      c.sessions,
		Notice:        c.notice,
	}
}

func (c *Controller) publishLocked() {
	c.sink.Publish(c.snapshotLocked())
}

func metricMode(m Mode) string {
	if m == ModeReplaying {
		return "replay"
	}
	return "live"
}
