package cli

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/xiaot623/gogo/negotiator/internal/controller"
	"github.com/xiaot623/gogo/negotiator/internal/directory"
	"github.com/xiaot623/gogo/negotiator/internal/logging"
	"github.com/xiaot623/gogo/negotiator/internal/metrics"
	"github.com/xiaot623/gogo/negotiator/internal/replay"
	"github.com/xiaot623/gogo/negotiator/internal/transport"
)

const metricsFlushTimeout = 5 * time.Second

// runtime is one controller together with everything it owns.
type runtime struct {
	logger    *slog.Logger
	metrics   metrics.Recorder
	transport *transport.Adapter
	ctrl      *controller.Controller
	closeLog  func() error
}

// newRuntime builds a controller publishing to sink. When the interactive view
// owns the terminal, logs go to a file even if none is configured.
func newRuntime(ctx context.Context, sink controller.Sink, manual, interactive bool) (*runtime, error) {
	path := cfg.LogFile
	if path == "" && interactive {
		path = filepath.Join(os.TempDir(), "negotiator.log")
	}
	logger, closeLog, err := logging.Setup(cfg.LogLevel, path)
	if err != nil {
		return nil, err
	}

	recorder, err := metrics.New(ctx, metrics.Config{Endpoint: cfg.OTelEndpoint, Insecure: cfg.OTelInsecure})
	if err != nil {
		closeLog()
		return nil, err
	}

	adapter := transport.New(transport.Options{
		PingInterval:   cfg.PingInterval(),
		WriteTimeout:   cfg.WriteTimeout(),
		ReadTimeout:    cfg.ReadTimeout(),
		MaxMessageSize: cfg.MaxMessageSize,
		Logger:         logger,
	})
	ctrl := controller.New(
		adapter,
		directory.NewClient(cfg.APIURL, cfg.HTTPTimeout()),
		replay.NewScheduler(cfg.ReplayDelay(), logger),
		sink,
		controller.Options{
			Endpoint:      cfg.StreamURL,
			ManualControl: manual || cfg.ManualControl,
			BadgeGrace:    cfg.ReplayBadgeGrace(),
			Logger:        logger,
			Metrics:       recorder,
		},
	)

	return &runtime{
		logger:    logger,
		metrics:   recorder,
		transport: adapter,
		ctrl:      ctrl,
		closeLog:  closeLog,
	}, nil
}

func (r *runtime) Close() {
	r.ctrl.Close()
	if err := r.transport.Close(); err != nil {
		r.logger.Warn("Failed to close stream", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), metricsFlushTimeout)
	defer cancel()
	if err := r.metrics.Close(ctx); err != nil {
		r.logger.Warn("Failed to flush metrics", "error", err)
	}
	r.closeLog()
}

// doneSink forwards snapshots and closes done once a started session has
// ended or been torn down.
type doneSink struct {
	next   controller.Sink
	done   chan struct{}
	once   sync.Once
	active bool
}

func newDoneSink(next controller.Sink) *doneSink {
	return &doneSink{next: next, done: make(chan struct{})}
}

// Publish is called with the controller lock held, so active needs no lock
// of its own.
func (s *doneSink) Publish(snap controller.Snapshot) {
	s.next.Publish(snap)
	switch snap.Mode {
	case controller.ModeStarting, controller.ModeLive, controller.ModeReplaying:
		s.active = true
	case controller.ModeEnded, controller.ModeIdle:
		if s.active {
			s.once.Do(func() { close(s.done) })
		}
	}
}
