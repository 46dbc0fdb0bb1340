package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xiaot623/gogo/negotiator/internal/projector"
	"github.com/xiaot623/gogo/negotiator/internal/protocol"
	"github.com/xiaot623/gogo/negotiator/internal/transport"
)

// StartLive opens a live session. Valid only from ModeIdle or ModeEnded.
func (c *Controller) StartLive(ctx context.Context) error {
	c.mu.Lock()
	if c.mode != ModeIdle && c.mode != ModeEnded {
		mode := c.mode
		c.mu.Unlock()
		return fmt.Errorf("%w: start live from %s", ErrInvalidTransition, mode)
	}
	c.teardownLocked()
	gen := c.generation
	sessCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.mode = ModeStarting
	c.sourceMode = ModeLive
	c.view = projector.New()
	c.connection = transport.StatusConnecting
	c.replayID = ""
	c.manual = false
	c.notice = ""
	c.publishLocked()
	c.mu.Unlock()

	stream, err := c.transport.Start(sessCtx, c.opts.Endpoint)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		cancel()
		return ErrSuperseded
	}
	if err != nil {
		cancel()
		c.cancel = nil
		c.mode = ModeIdle
		c.connection = transport.StatusDisconnected
		c.notice = "Connection failed: " + err.Error()
		c.logger.Warn("Failed to start live session", "endpoint", c.opts.Endpoint, "error", err)
		c.publishLocked()
		return err
	}

	c.mode = ModeLive
	c.connection = transport.StatusConnected
	c.logger.Info("Live session started", "conn_id", stream.ID)
	if c.opts.ManualControl {
		if err := c.transport.Send(protocol.ToggleManual{Enabled: true}); err == nil {
			c.manual = true
		}
	}
	c.publishLocked()

	c.wg.Add(1)
	go c.pump(gen, stream)
	return nil
}

// StartReplay replays a recorded session. Valid from any mode: an active live
// session or replay is torn down first.
func (c *Controller) StartReplay(ctx context.Context, id string) error {
	c.mu.Lock()
	c.teardownLocked()
	gen := c.generation
	replayCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.mode = ModeStarting
	c.sourceMode = ModeReplaying
	c.view = projector.New()
	c.replayID = id
	c.manual = false
	c.notice = ""
	c.publishLocked()
	c.mu.Unlock()

	rec, err := c.directory.FetchSession(replayCtx, id)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		cancel()
		return ErrSuperseded
	}
	if err != nil {
		cancel()
		c.cancel = nil
		c.mode = ModeIdle
		c.replayID = ""
		c.notice = fmt.Sprintf("Replay %s unavailable: %v", id, err)
		c.logger.Warn("Failed to fetch session for replay", "session_id", id, "error", err)
		c.publishLocked()
		return err
	}

	c.mode = ModeReplaying
	c.logger.Info("Replay started", "session_id", id, "turns", len(rec.Turns))
	c.publishLocked()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		err := c.player.Play(replayCtx, rec, func(evt protocol.Event) error {
			return c.handleEvent(gen, evt)
		})
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, ErrSuperseded) {
			c.replayFailed(gen, id, err)
		}
	}()
	return nil
}

// ToggleManual asks the service to hand moves to the operator. Valid only
// during a live session that is waiting for a human move.
func (c *Controller) ToggleManual(enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkAwaitingLocked(); err != nil {
		return err
	}
	if err := c.transport.Send(protocol.ToggleManual{Enabled: enabled}); err != nil {
		c.notice = "Command not sent: " + err.Error()
		c.publishLocked()
		return err
	}
	c.manual = enabled
	c.publishLocked()
	return nil
}

// SubmitHumanAction sends the operator's move and clears the wait optimistically.
// The service confirms with the next turn or end event.
func (c *Controller) SubmitHumanAction(action protocol.Action, price float64, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkAwaitingLocked(); err != nil {
		return err
	}
	cmd := protocol.HumanAction{Action: action, Price: price, Message: message}
	if err := cmd.Validate(); err != nil {
		return err
	}
	if err := c.transport.Send(cmd); err != nil {
		c.notice = "Command not sent: " + err.Error()
		c.publishLocked()
		return err
	}
	c.logger.Info("Human action submitted", "agent", c.view.AwaitingHumanAgent, "action", action, "price", price)
	c.view = projector.AcknowledgeHumanAction(c.view)
	c.notice = ""
	c.publishLocked()
	return nil
}

// RefreshSessions reloads the session history. On failure the list is emptied
// and a notice is shown; the error is still returned.
func (c *Controller) RefreshSessions(ctx context.Context) error {
	sessions, err := c.directory.ListSessions(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.logger.Warn("Failed to refresh session history", "error", err)
		c.sessions = []protocol.SessionSummary{}
		c.notice = "Session history unavailable"
		c.publishLocked()
		return err
	}
	c.sessions = sessions
	c.publishLocked()
	return nil
}

// Stop tears down any live session or replay and returns to ModeIdle. The last
// view stays visible.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode == ModeIdle {
		return
	}
	c.teardownLocked()
	c.mode = ModeIdle
	c.replayID = ""
	c.manual = false
	c.connection = transport.StatusDisconnected
	c.publishLocked()
}

func (c *Controller) checkAwaitingLocked() error {
	if c.mode != ModeLive {
		return fmt.Errorf("%w: mode is %s", ErrNotAwaitingHuman, c.mode)
	}
	if !c.view.Waiting() {
		return ErrNotAwaitingHuman
	}
	return nil
}

// teardownLocked cancels the active source and bumps the generation so that
// anything it still emits is dropped.
func (c *Controller) teardownLocked() {
	c.generation++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.sourceMode == ModeLive {
		c.transport.Close()
		c.connection = transport.StatusDisconnected
	}
	if c.badge != nil {
		c.badge.Stop()
		c.badge = nil
	}
}

func (c *Controller) replayFailed(gen uint64, id string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return
	}
	c.logger.Warn("Replay failed", "session_id", id, "error", err)
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.mode = ModeIdle
	c.replayID = ""
	c.notice = fmt.Sprintf("Replay %s failed: %v", id, err)
	c.publishLocked()
}

func (c *Controller) scheduleBadgeClearLocked(gen uint64) {
	c.badge = time.AfterFunc(c.opts.BadgeGrace, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if gen != c.generation || c.replayID == "" {
			return
		}
		c.replayID = ""
		c.badge = nil
		c.publishLocked()
	})
}
