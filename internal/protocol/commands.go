package protocol

import (
	"encoding/json"
	"fmt"
	"math"
)

// CommandType is the wire discriminant of an outbound command.
type CommandType string

// Command types from client to the negotiation service
const (
	CommandTypeToggleManual CommandType = "toggle_manual"
	CommandTypeHumanAction  CommandType = "human_action"
)

// Command is one outbound message. The concrete types are ToggleManual and HumanAction.
type Command interface {
	CommandType() CommandType
}

// ToggleManual switches operator control on or off.
type ToggleManual struct {
	Enabled bool `json:"enabled"`
}

// HumanAction is the operator's move while the service waits for a human.
type HumanAction struct {
	Action  Action
	Price   float64
	Message string
}

func (ToggleManual) CommandType() CommandType { return CommandTypeToggleManual }
func (HumanAction) CommandType() CommandType  { return CommandTypeHumanAction }

// Validate checks the action is one the service accepts from a human and the
// price is a usable number.
func (c HumanAction) Validate() error {
	if _, err := ActionCode(c.Action); err != nil {
		return err
	}
	if math.IsNaN(c.Price) || math.IsInf(c.Price, 0) || c.Price < 0 {
		return fmt.Errorf("invalid price %v", c.Price)
	}
	return nil
}

// ActionCode maps a human action to its integer wire code.
func ActionCode(a Action) (int, error) {
	switch a {
	case ActionAccept:
		return 0, nil
	case ActionCounter:
		return 1, nil
	default:
		return 0, fmt.Errorf("action %q cannot be submitted by an operator", a)
	}
}

// ActionFromCode maps an integer wire code back to an action. Code 2 (QUIT)
// is only ever produced by the agents.
func ActionFromCode(code int) (Action, error) {
	switch code {
	case 0:
		return ActionAccept, nil
	case 1:
		return ActionCounter, nil
	case 2:
		return ActionQuit, nil
	default:
		return "", fmt.Errorf("unknown action code %d", code)
	}
}

type toggleManualMessage struct {
	Type    CommandType `json:"type"`
	Enabled bool        `json:"enabled"`
}

type humanActionMessage struct {
	Type    CommandType `json:"type"`
	Action  int         `json:"action"`
	Price   float64     `json:"price"`
	Message string      `json:"message"`
}

// Encode renders cmd as the JSON the service expects.
func Encode(cmd Command) ([]byte, error) {
	switch c := cmd.(type) {
	case ToggleManual:
		return json.Marshal(toggleManualMessage{Type: c.CommandType(), Enabled: c.Enabled})
	case HumanAction:
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("encode human_action: %w", err)
		}
		code, _ := ActionCode(c.Action)
		return json.Marshal(humanActionMessage{
			Type:    c.CommandType(),
			Action:  code,
			Price:   c.Price,
			Message: c.Message,
		})
	default:
		return nil, fmt.Errorf("unsupported command %T", cmd)
	}
}

// DecodeCommand parses an outbound command, as the service side reads it.
func DecodeCommand(data []byte) (Command, error) {
	var head struct {
		Type CommandType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("invalid command JSON: %w", err)
	}

	switch head.Type {
	case CommandTypeToggleManual:
		var msg toggleManualMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid toggle_manual: %w", err)
		}
		return ToggleManual{Enabled: msg.Enabled}, nil
	case CommandTypeHumanAction:
		var msg humanActionMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid human_action: %w", err)
		}
		action, err := ActionFromCode(msg.Action)
		if err != nil {
			return nil, err
		}
		return HumanAction{Action: action, Price: msg.Price, Message: msg.Message}, nil
	default:
		return nil, fmt.Errorf("unknown command type %q", head.Type)
	}
}
