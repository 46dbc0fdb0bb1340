// Package replay turns a recorded session into the event sequence a live
// session would have produced, paced at a fixed delay.
package replay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xiaot623/gogo/negotiator/internal/protocol"
)

// DefaultDelay is the pause between replayed events.
const DefaultDelay = 800 * time.Millisecond

// ErrRecordRequired indicates a nil session record.
var ErrRecordRequired = errors.New("session record is required")

// Events synthesizes Init from the record's configuration, then every stored
// entry in order, then End. Entries that fail to parse, and stored init or end
// entries, are returned as skipped instead of aborting the sequence.
func Events(rec *protocol.SessionRecord) ([]protocol.Event, []error) {
	opening := protocol.Init{
		SessionID:          rec.ID,
		ValuationsSupplier: rec.InitialState.ValuationsSupplier,
		ValuationsRetailer: rec.InitialState.ValuationsRetailer,
		NumItems:           rec.Config.NumItems,
	}

	events := make([]protocol.Event, 0, len(rec.Turns)+2)
	events = append(events, opening)

	var skipped []error
	for i, raw := range rec.Turns {
		evt, err := protocol.ParseRecorded(raw)
		if err != nil {
			skipped = append(skipped, fmt.Errorf("turn %d: %w", i, err))
			continue
		}
		switch evt.Type() {
		case protocol.EventTypeInit, protocol.EventTypeEnd:
			skipped = append(skipped, fmt.Errorf("turn %d: stored %s entry ignored", i, evt.Type()))
			continue
		}
		events = append(events, evt)
	}

	events = append(events, protocol.End{
		DealPrice:    rec.DealPrice,
		FinalRewards: rec.FinalRewards,
	})
	return events, skipped
}

// Scheduler paces replayed events.
type Scheduler struct {
	delay  time.Duration
	logger *slog.Logger
}

// NewScheduler creates a scheduler. A non-positive delay falls back to DefaultDelay.
func NewScheduler(delay time.Duration, logger *slog.Logger) *Scheduler {
	if delay <= 0 {
		delay = DefaultDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{delay: delay, logger: logger}
}

// Delay returns the pause between events.
func (s *Scheduler) Delay() time.Duration {
	return s.delay
}

// Play emits Init immediately and every later event after the delay. It
// returns ctx.Err() when cancelled, without emitting anything further, and
// stops with the error of a failing emit.
func (s *Scheduler) Play(ctx context.Context, rec *protocol.SessionRecord, emit func(protocol.Event) error) error {
	if rec == nil {
		return ErrRecordRequired
	}
	events, skipped := Events(rec)
	if err := events[0].Validate(); err != nil {
		return fmt.Errorf("replay %s: %w", rec.ID, err)
	}
	for _, err := range skipped {
		s.logger.Warn("Skipping recorded entry", "session_id", rec.ID, "error", err)
	}

	timer := time.NewTimer(s.delay)
	timer.Stop()
	defer timer.Stop()

	for i, evt := range events {
		if i > 0 {
			timer.Reset(s.delay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := emit(evt); err != nil {
			return fmt.Errorf("replay %s: emit %s: %w", rec.ID, evt.Type(), err)
		}
	}
	return nil
}
