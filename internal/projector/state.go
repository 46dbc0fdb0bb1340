// Package projector folds negotiation events into the derived view state that
// renderers display. Fold is pure: it never mutates its input and returned
// states never share backing arrays with it.
package projector

import (
	"fmt"
	"slices"
	"strings"

	"github.com/xiaot623/gogo/negotiator/internal/protocol"
)

// StatusKind is the coarse session status shown to the operator.
type StatusKind string

const (
	StatusIdle        StatusKind = "IDLE"
	StatusNegotiating StatusKind = "NEGOTIATING"
	StatusWaitingFor  StatusKind = "WAITING_FOR"
	StatusDealReached StatusKind = "DEAL_REACHED"
	StatusFailed      StatusKind = "FAILED"
)

// Status is the session status. Agent is set only for StatusWaitingFor.
type Status struct {
	Kind  StatusKind
	Agent protocol.Agent
}

// Label renders the status the way the status bar shows it.
func (s Status) Label() string {
	switch s.Kind {
	case StatusWaitingFor:
		return "WAITING FOR " + strings.ToUpper(string(s.Agent))
	case StatusDealReached:
		return "DEAL REACHED"
	case "":
		return string(StatusIdle)
	default:
		return string(s.Kind)
	}
}

// TranscriptEntry is one rendered negotiation move.
type TranscriptEntry struct {
	Round  int
	Agent  protocol.Agent
	Text   string
	Action protocol.Action
}

// ViewState is the state derived from one session's events.
type ViewState struct {
	SessionID string

	// RoundLabels and every PriceSeries entry always have the same length.
	RoundLabels []string
	// PriceSeries holds one series per item; its length is fixed at Init.
	PriceSeries [][]float64
	Transcript  []TranscriptEntry

	Status             Status
	AwaitingHumanAgent protocol.Agent

	ValuationsSupplier protocol.Magnitude
	ValuationsRetailer protocol.Magnitude
	// SuggestedPrice pre-fills the operator's manual price input.
	SuggestedPrice float64
	CurrentRound   int
	DealPrice      protocol.Magnitude
	FinalRewards   []float64

	initialized bool
	ended       bool
}

// New returns the state a session starts from before its Init arrives.
func New() ViewState {
	return ViewState{Status: Status{Kind: StatusIdle}}
}

// Initialized reports whether Init has been folded.
func (s ViewState) Initialized() bool {
	return s.initialized
}

// Ended reports whether the terminal End event has been folded.
func (s ViewState) Ended() bool {
	return s.ended
}

// Items is the number of price series, 0 before Init.
func (s ViewState) Items() int {
	return len(s.PriceSeries)
}

// Waiting reports whether the remote process is waiting for the operator.
func (s ViewState) Waiting() bool {
	return s.AwaitingHumanAgent != ""
}

// Clone returns a deep copy of s.
func (s ViewState) Clone() ViewState {
	out := s
	out.RoundLabels = slices.Clone(s.RoundLabels)
	out.PriceSeries = make([][]float64, len(s.PriceSeries))
	for i, series := range s.PriceSeries {
		out.PriceSeries[i] = slices.Clone(series)
	}
	if s.PriceSeries == nil {
		out.PriceSeries = nil
	}
	out.Transcript = slices.Clone(s.Transcript)
	out.FinalRewards = slices.Clone(s.FinalRewards)
	return out
}

// RoundLabel is the chart label for a round.
func RoundLabel(round int) string {
	return fmt.Sprintf("R%d", round)
}

// DefaultText is the transcript text for a turn that carried no message.
func DefaultText(action protocol.Action) string {
	if action == protocol.ActionAccept {
		return "Deal accepted!"
	}
	return "Negotiation ended."
}
