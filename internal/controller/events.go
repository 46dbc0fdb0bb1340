package controller

import (
	"context"
	"errors"

	"github.com/xiaot623/gogo/negotiator/internal/projector"
	"github.com/xiaot623/gogo/negotiator/internal/protocol"
	"github.com/xiaot623/gogo/negotiator/internal/transport"
)

// pump folds live events until the stream ends, then applies the disconnect.
// The connected status is set by StartLive once Start returns.
func (c *Controller) pump(gen uint64, stream *transport.Stream) {
	defer c.wg.Done()
	for evt := range stream.Events {
		// Stale events are dropped but the channel is still drained.
		c.handleEvent(gen, evt)
	}
	for status := range stream.Status {
		if status == transport.StatusDisconnected {
			c.handleDisconnect(gen)
		}
	}
}

// handleEvent folds one event from the source of generation gen. Rejected
// events are logged and skipped; only a stale generation is returned as an
// error so that a replay stops emitting.
func (c *Controller) handleEvent(gen uint64, evt protocol.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return ErrSuperseded
	}

	ctx := context.Background()
	mode := metricMode(c.sourceMode)

	if turn, ok := evt.(protocol.Turn); ok && c.view.Waiting() && turn.Agent != c.view.AwaitingHumanAgent {
		c.logger.Warn("Turn from a party other than the awaited one",
			"awaited", c.view.AwaitingHumanAgent, "agent", turn.Agent, "round", turn.Round)
	}
	if l, ok := evt.(protocol.Log); ok {
		c.logger.Info("Service log", "message", l.Message)
	}

	next, err := projector.Fold(c.view, evt)
	if err != nil {
		c.logger.Warn("Rejected event", "type", evt.Type(), "mode", mode, "error", err)
		c.metrics.EventRejected(ctx, mode, evt.Type(), rejectReason(err))
		return nil
	}
	c.view = next
	c.metrics.EventFolded(ctx, mode, evt.Type())

	if next.Ended() {
		c.endLocked(gen)
	}
	c.publishLocked()
	return nil
}

func (c *Controller) handleDisconnect(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return
	}
	c.connection = transport.StatusDisconnected
	if c.mode == ModeLive {
		// No reconnect: the session is over.
		c.logger.Warn("Live connection lost before the session ended", "round", c.view.CurrentRound)
		c.metrics.SessionEnded(context.Background(), "live", "DISCONNECTED", c.view.CurrentRound)
		if c.cancel != nil {
			c.cancel()
			c.cancel = nil
		}
		c.mode = ModeEnded
		c.notice = "Connection lost"
	}
	c.publishLocked()
}

// endLocked moves to ModeEnded after the terminal event.
func (c *Controller) endLocked(gen uint64) {
	c.mode = ModeEnded
	c.metrics.SessionEnded(context.Background(), metricMode(c.sourceMode), string(c.view.Status.Kind), c.view.CurrentRound)
	c.logger.Info("Session ended", "status", c.view.Status.Kind, "rounds", c.view.CurrentRound)

	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	switch c.sourceMode {
	case ModeLive:
		c.transport.Close()
		c.connection = transport.StatusDisconnected
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.RefreshSessions(c.base)
		}()
	case ModeReplaying:
		c.scheduleBadgeClearLocked(gen)
	}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, projector.ErrSessionAlreadyEnded):
		return "after_end"
	case errors.Is(err, projector.ErrUnexpectedEvent):
		return "unexpected"
	case errors.Is(err, protocol.ErrMalformedEvent):
		return "malformed"
	default:
		return "other"
	}
}
