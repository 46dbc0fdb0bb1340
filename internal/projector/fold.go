package projector

import (
	"errors"
	"fmt"
	"math"

	"github.com/xiaot623/gogo/negotiator/internal/protocol"
)

var (
	// ErrSessionAlreadyEnded is returned when an event arrives after End.
	ErrSessionAlreadyEnded = errors.New("session already ended")
	// ErrUnexpectedEvent is returned for events out of lifecycle order: a
	// second Init, or a move before Init.
	ErrUnexpectedEvent = errors.New("unexpected event")
)

// Fold applies evt to state and returns the next state. On error the returned
// state is the input state unchanged.
func Fold(state ViewState, evt protocol.Event) (ViewState, error) {
	if state.ended {
		return state, fmt.Errorf("%w: got %s", ErrSessionAlreadyEnded, evt.Type())
	}
	if err := evt.Validate(); err != nil {
		return state, err
	}

	switch e := evt.(type) {
	case protocol.Init:
		return foldInit(state, e)
	case protocol.Turn:
		return foldTurn(state, e)
	case protocol.WaitForHuman:
		if !state.initialized {
			return state, fmt.Errorf("%w: wait_for_human before init", ErrUnexpectedEvent)
		}
		next := state.Clone()
		next.Status = Status{Kind: StatusWaitingFor, Agent: e.Agent}
		next.AwaitingHumanAgent = e.Agent
		return next, nil
	case protocol.Log:
		return state, nil
	case protocol.End:
		return foldEnd(state, e)
	default:
		return state, fmt.Errorf("%w: unsupported event %T", protocol.ErrMalformedEvent, evt)
	}
}

// AcknowledgeHumanAction clears a pending wait once the operator has submitted
// a move. The remote confirms with the next Turn or End.
func AcknowledgeHumanAction(state ViewState) ViewState {
	if !state.Waiting() {
		return state
	}
	next := state.Clone()
	next.AwaitingHumanAgent = ""
	next.Status = Status{Kind: StatusNegotiating}
	return next
}

func foldInit(state ViewState, e protocol.Init) (ViewState, error) {
	if state.initialized {
		return state, fmt.Errorf("%w: second init", ErrUnexpectedEvent)
	}

	items := e.Items()
	next := New()
	next.initialized = true
	next.SessionID = e.SessionID
	next.RoundLabels = []string{}
	next.PriceSeries = make([][]float64, items)
	for i := range next.PriceSeries {
		next.PriceSeries[i] = []float64{}
	}
	next.Transcript = []TranscriptEntry{}
	next.ValuationsSupplier = e.ValuationsSupplier
	next.ValuationsRetailer = e.ValuationsRetailer
	next.SuggestedPrice = math.Round((e.ValuationsSupplier.Mean() + e.ValuationsRetailer.Mean()) / 2)
	return next, nil
}

func foldTurn(state ViewState, e protocol.Turn) (ViewState, error) {
	if !state.initialized {
		return state, fmt.Errorf("%w: turn before init", ErrUnexpectedEvent)
	}
	items := state.Items()
	if e.Price.IsVector() && e.Price.Arity() != items {
		return state, fmt.Errorf("%w: turn price has %d items, session has %d", protocol.ErrMalformedEvent, e.Price.Arity(), items)
	}
	if !e.Price.IsVector() && items != 1 {
		return state, fmt.Errorf("%w: scalar turn price in a %d-item session", protocol.ErrMalformedEvent, items)
	}

	next := state.Clone()
	next.RoundLabels = append(next.RoundLabels, RoundLabel(e.Round))
	for i := range next.PriceSeries {
		next.PriceSeries[i] = append(next.PriceSeries[i], e.Price.At(i))
	}

	text := DefaultText(e.Action)
	if e.Message != nil {
		text = *e.Message
	}
	next.Transcript = append(next.Transcript, TranscriptEntry{
		Round:  e.Round,
		Agent:  e.Agent,
		Text:   text,
		Action: e.Action,
	})
	next.CurrentRound = e.Round
	next.Status = Status{Kind: StatusNegotiating}
	next.AwaitingHumanAgent = ""
	return next, nil
}

func foldEnd(state ViewState, e protocol.End) (ViewState, error) {
	if !state.initialized {
		return state, fmt.Errorf("%w: end before init", ErrUnexpectedEvent)
	}
	next := state.Clone()
	next.ended = true
	next.AwaitingHumanAgent = ""
	next.DealPrice = e.DealPrice
	next.FinalRewards = append([]float64(nil), e.FinalRewards...)
	if e.DealPrice.IsEmpty() {
		next.Status = Status{Kind: StatusFailed}
	} else {
		next.Status = Status{Kind: StatusDealReached}
	}
	return next, nil
}
