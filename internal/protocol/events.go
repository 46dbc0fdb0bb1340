// Package protocol defines the negotiation event stream vocabulary exchanged
// with the remote negotiation service.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedEvent is returned when an inbound payload cannot be turned into an Event.
var ErrMalformedEvent = errors.New("malformed event")

// EventType is the wire discriminant of an inbound event.
type EventType string

// Event types from the negotiation service
const (
	EventTypeInit         EventType = "init"
	EventTypeTurn         EventType = "turn"
	EventTypeWaitForHuman EventType = "wait_for_human"
	EventTypeLog          EventType = "log"
	EventTypeEnd          EventType = "end"
)

// Agent identifies a negotiating party.
type Agent string

const (
	AgentSupplier Agent = "supplier"
	AgentRetailer Agent = "retailer"
)

// Valid reports whether a is one of the known parties.
func (a Agent) Valid() bool {
	return a == AgentSupplier || a == AgentRetailer
}

// Action is the move a party made in a turn. The set is open: unknown actions
// are carried verbatim.
type Action string

const (
	ActionOffer   Action = "OFFER"
	ActionCounter Action = "COUNTER"
	ActionAccept  Action = "ACCEPT"
	ActionQuit    Action = "QUIT"
)

// Event is one inbound negotiation event. The concrete types are Init, Turn,
// WaitForHuman, Log and End.
type Event interface {
	Type() EventType
	Validate() error
}

// Init opens a session.
type Init struct {
	SessionID          string    `json:"session_id,omitempty"`
	ValuationsSupplier Magnitude `json:"val_s"`
	ValuationsRetailer Magnitude `json:"val_r"`
	NumItems           int       `json:"num_items,omitempty"`
}

// Turn is one negotiation move.
type Turn struct {
	Round   int       `json:"round"`
	Agent   Agent     `json:"agent"`
	Price   Magnitude `json:"price"`
	Message *string   `json:"message,omitempty"`
	Action  Action    `json:"action"`
}

// WaitForHuman hands the next move for Agent to the operator.
type WaitForHuman struct {
	Agent Agent `json:"agent"`
}

// Log carries diagnostic text from the service.
type Log struct {
	Message string `json:"message"`
}

// End closes a session. An absent or empty DealPrice means no agreement.
type End struct {
	DealPrice    Magnitude `json:"deal_price"`
	FinalRewards []float64 `json:"final_rewards,omitempty"`
}

func (Init) Type() EventType         { return EventTypeInit }
func (Turn) Type() EventType         { return EventTypeTurn }
func (WaitForHuman) Type() EventType { return EventTypeWaitForHuman }
func (Log) Type() EventType          { return EventTypeLog }
func (End) Type() EventType          { return EventTypeEnd }

// Items is the number of per-item price series the session carries.
func (e Init) Items() int {
	if e.NumItems > 0 {
		return e.NumItems
	}
	if e.ValuationsSupplier.IsVector() {
		return e.ValuationsSupplier.Arity()
	}
	return 1
}

// Validate checks required fields and that vector valuations agree on arity.
func (e Init) Validate() error {
	if e.ValuationsSupplier.IsAbsent() {
		return malformed("init: val_s is required")
	}
	if e.ValuationsRetailer.IsAbsent() {
		return malformed("init: val_r is required")
	}
	if e.NumItems < 0 {
		return malformed("init: num_items must not be negative, got %d", e.NumItems)
	}
	items := e.Items()
	if v := e.ValuationsSupplier; v.IsVector() && v.Arity() != items {
		return malformed("init: val_s has %d items, session has %d", v.Arity(), items)
	}
	if v := e.ValuationsRetailer; v.IsVector() && v.Arity() != items {
		return malformed("init: val_r has %d items, session has %d", v.Arity(), items)
	}
	return nil
}

// Validate checks the fields every turn must carry.
func (e Turn) Validate() error {
	if e.Round < 1 {
		return malformed("turn: round is required")
	}
	if !e.Agent.Valid() {
		return malformed("turn: unknown agent %q", e.Agent)
	}
	if e.Price.IsEmpty() {
		return malformed("turn: price is required")
	}
	if e.Action == "" {
		return malformed("turn: action is required")
	}
	return nil
}

// Validate checks the awaited agent is known.
func (e WaitForHuman) Validate() error {
	if !e.Agent.Valid() {
		return malformed("wait_for_human: unknown agent %q", e.Agent)
	}
	return nil
}

func (e Log) Validate() error { return nil }

func (e End) Validate() error { return nil }

// Parse decodes one inbound payload. Every failure wraps ErrMalformedEvent.
func Parse(data []byte) (Event, error) {
	var head struct {
		Type    EventType `json:"type"`
		Message *string   `json:"message"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, malformed("invalid JSON: %v", err)
	}

	var evt Event
	var err error
	switch head.Type {
	case EventTypeInit:
		evt, err = decode[Init](data)
	case EventTypeTurn:
		evt, err = decode[Turn](data)
	case EventTypeWaitForHuman:
		evt, err = decode[WaitForHuman](data)
	case EventTypeLog:
		if head.Message == nil {
			return nil, malformed("log: message is required")
		}
		evt, err = decode[Log](data)
	case EventTypeEnd:
		evt, err = decode[End](data)
	case "":
		return nil, malformed("missing type")
	default:
		return nil, malformed("unknown type %q", head.Type)
	}
	if err != nil {
		return nil, malformed("%s: %v", head.Type, err)
	}
	if err := evt.Validate(); err != nil {
		return nil, err
	}
	return evt, nil
}

// ParseRecorded decodes an entry of a stored session log. Entries without a
// type tag are stored turns.
func ParseRecorded(data []byte) (Event, error) {
	var head struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, malformed("invalid JSON: %v", err)
	}
	if head.Type != "" {
		return Parse(data)
	}
	turn, err := decode[Turn](data)
	if err != nil {
		return nil, malformed("turn: %v", err)
	}
	if err := turn.Validate(); err != nil {
		return nil, err
	}
	return turn, nil
}

// EncodeEvent renders evt with its type tag, as the service sends it.
func EncodeEvent(evt Event) ([]byte, error) {
	switch e := evt.(type) {
	case Init:
		return json.Marshal(struct {
			Type EventType `json:"type"`
			Init
		}{e.Type(), e})
	case Turn:
		return json.Marshal(struct {
			Type EventType `json:"type"`
			Turn
		}{e.Type(), e})
	case WaitForHuman:
		return json.Marshal(struct {
			Type EventType `json:"type"`
			WaitForHuman
		}{e.Type(), e})
	case Log:
		return json.Marshal(struct {
			Type EventType `json:"type"`
			Log
		}{e.Type(), e})
	case End:
		return json.Marshal(struct {
			Type EventType `json:"type"`
			End
		}{e.Type(), e})
	default:
		return nil, fmt.Errorf("unsupported event %T", evt)
	}
}

func decode[T any](data []byte) (T, error) {
	var v T
	err := json.Unmarshal(data, &v)
	return v, err
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedEvent, fmt.Sprintf(format, args...))
}
