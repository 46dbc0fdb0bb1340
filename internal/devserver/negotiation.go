package devserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/xiaot623/gogo/negotiator/internal/protocol"
)

var (
	// ErrNegotiationOver is returned when a move arrives after the outcome is settled.
	ErrNegotiationOver = errors.New("negotiation is over")
	// ErrUnsupportedAction is returned for moves outside ACCEPT, COUNTER, OFFER and QUIT.
	ErrUnsupportedAction = errors.New("unsupported action")
)

// Rules are the environment constants of a bilateral negotiation.
type Rules struct {
	MaxRounds int
	MaxPrice  float64
	// Discount is applied once per counter offer to the deal surplus.
	Discount float64
}

// DefaultRules returns the rules the agents were trained with.
func DefaultRules() Rules {
	return Rules{MaxRounds: 20, MaxPrice: 10000, Discount: 0.99}
}

// Outcome is how a negotiation finished.
type Outcome string

const (
	OutcomeDeal    Outcome = "deal"
	OutcomeQuit    Outcome = "quit"
	OutcomeTimeout Outcome = "timeout"
)

const (
	quitPenalty      = -0.1
	timeoutPenalty   = -0.05
	earlyAcceptFault = -0.5
)

// Valuations draws private valuations: supplier cost in [4000, 6000) and
// retailer resale value in [7000, 9000). rnd returns values in [0, 1).
func Valuations(rnd func() float64) (supplier, retailer float64) {
	supplier = 4000 + rnd()*2000
	retailer = 7000 + rnd()*2000
	return supplier, retailer
}

// Negotiation is one alternating-offers game. The supplier proposes first and
// the proposer alternates after every counter offer. Not safe for concurrent use.
type Negotiation struct {
	rules      Rules
	valS, valR float64

	proposer protocol.Agent
	round    int
	moves    int
	price    float64
	turns    []protocol.Turn

	outcome   Outcome
	dealPrice float64
	rewards   [2]float64
}

// NewNegotiation starts a game. Valuations are swapped if the zone of
// agreement would be empty.
func NewNegotiation(rules Rules, valS, valR float64) *Negotiation {
	if rules.MaxRounds <= 0 {
		rules.MaxRounds = DefaultRules().MaxRounds
	}
	if rules.MaxPrice <= 0 {
		rules.MaxPrice = DefaultRules().MaxPrice
	}
	if rules.Discount <= 0 {
		rules.Discount = DefaultRules().Discount
	}
	if valS > valR {
		valS, valR = valR, valS
	}
	return &Negotiation{
		rules:    rules,
		valS:     valS,
		valR:     valR,
		proposer: protocol.AgentSupplier,
	}
}

func (n *Negotiation) Proposer() protocol.Agent { return n.proposer }

// Round is the number of counter offers made so far.
func (n *Negotiation) Round() int { return n.round }

// Price is the offer on the table, 0 before the first counter.
func (n *Negotiation) Price() float64 { return n.price }

func (n *Negotiation) Done() bool { return n.outcome != "" }

func (n *Negotiation) Outcome() Outcome { return n.outcome }

// Rewards returns the supplier and retailer rewards once the game is over.
func (n *Negotiation) Rewards() (supplier, retailer float64) {
	return n.rewards[0], n.rewards[1]
}

// Init is the opening event of the session.
func (n *Negotiation) Init(sessionID string) protocol.Init {
	return protocol.Init{
		SessionID:          sessionID,
		ValuationsSupplier: protocol.Scalar(n.valS),
		ValuationsRetailer: protocol.Scalar(n.valR),
		NumItems:           1,
	}
}

// Step applies one move by the current proposer and returns it as a turn event.
// ACCEPT takes the offer on the table; accepting before any offer forfeits
// the game.
func (n *Negotiation) Step(action protocol.Action, price float64, message string) (protocol.Turn, error) {
	if n.Done() {
		return protocol.Turn{}, ErrNegotiationOver
	}
	agent := n.proposer

	turn := protocol.Turn{Agent: agent, Action: action}
	if message != "" {
		turn.Message = &message
	}

	switch action {
	case protocol.ActionAccept:
		if n.round == 0 {
			n.outcome = OutcomeQuit
			n.rewards[agentIndex(agent)] = earlyAcceptFault
			break
		}
		n.outcome = OutcomeDeal
		n.dealPrice = n.price
		discount := math.Pow(n.rules.Discount, float64(n.round))
		n.rewards[0] = (n.dealPrice - n.valS) / n.rules.MaxPrice * discount
		n.rewards[1] = (n.valR - n.dealPrice) / n.rules.MaxPrice * discount

	case protocol.ActionQuit:
		n.outcome = OutcomeQuit
		n.rewards = [2]float64{quitPenalty, quitPenalty}

	case protocol.ActionCounter, protocol.ActionOffer:
		if math.IsNaN(price) {
			return protocol.Turn{}, fmt.Errorf("counter offer: price is not a number")
		}
		n.price = math.Max(0, math.Min(price, n.rules.MaxPrice))
		if n.round == 0 {
			turn.Action = protocol.ActionOffer
		} else {
			turn.Action = protocol.ActionCounter
		}
		n.round++
		if n.round >= n.rules.MaxRounds {
			n.outcome = OutcomeTimeout
			n.rewards = [2]float64{timeoutPenalty, timeoutPenalty}
		} else if agent == protocol.AgentSupplier {
			n.proposer = protocol.AgentRetailer
		} else {
			n.proposer = protocol.AgentSupplier
		}

	default:
		return protocol.Turn{}, fmt.Errorf("%w: %q", ErrUnsupportedAction, action)
	}

	n.moves++
	turn.Round = n.moves
	turn.Price = protocol.Scalar(n.price)
	n.turns = append(n.turns, turn)
	return turn, nil
}

// End is the closing event. The deal price is absent unless a deal was reached.
func (n *Negotiation) End() protocol.End {
	end := protocol.End{FinalRewards: []float64{n.rewards[0], n.rewards[1]}}
	if n.outcome == OutcomeDeal {
		end.DealPrice = protocol.Scalar(n.dealPrice)
	}
	return end
}

// Record renders the finished game in the session history format.
func (n *Negotiation) Record(id string) (protocol.SessionRecord, error) {
	turns := make([]json.RawMessage, 0, len(n.turns))
	for _, t := range n.turns {
		data, err := json.Marshal(t)
		if err != nil {
			return protocol.SessionRecord{}, fmt.Errorf("encode turn %d: %w", t.Round, err)
		}
		turns = append(turns, data)
	}
	end := n.End()
	return protocol.SessionRecord{
		ID:     id,
		Config: protocol.SessionConfig{NumItems: 1},
		InitialState: protocol.InitialState{
			ValuationsSupplier: protocol.Scalar(n.valS),
			ValuationsRetailer: protocol.Scalar(n.valR),
		},
		Turns:        turns,
		DealPrice:    end.DealPrice,
		FinalRewards: end.FinalRewards,
	}, nil
}

// Summary is the history list entry for the finished game.
func (n *Negotiation) Summary(id string, at time.Time) protocol.SessionSummary {
	return protocol.SessionSummary{
		ID:        id,
		Result:    string(n.outcome),
		Rounds:    n.round,
		Timestamp: protocol.Timestamp{Time: at.UTC()},
	}
}

// ScriptedMove is the built-in agent: each side concedes linearly from an
// opening position toward its own valuation and accepts any offer at least as
// good as its next one.
func ScriptedMove(n *Negotiation) (protocol.Action, float64, string) {
	step := n.round / 2
	span := max(n.rules.MaxRounds/2-1, 1)
	progress := math.Min(float64(step)/float64(span), 1)

	if n.proposer == protocol.AgentSupplier {
		ask := math.Round(n.valS * (1.6 - 0.55*progress))
		if n.round > 0 && n.price >= ask {
			return protocol.ActionAccept, n.price, "That works for us. Deal."
		}
		return protocol.ActionCounter, ask, fmt.Sprintf("We can supply at %.0f.", ask)
	}

	bid := math.Round(n.valR * (0.6 + 0.35*progress))
	if n.round > 0 && n.price <= bid {
		return protocol.ActionAccept, n.price, "Agreed, we'll take it."
	}
	return protocol.ActionCounter, bid, fmt.Sprintf("Our budget allows %.0f.", bid)
}

func agentIndex(a protocol.Agent) int {
	if a == protocol.AgentRetailer {
		return 1
	}
	return 0
}
