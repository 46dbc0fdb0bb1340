package devserver

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/xiaot623/gogo/negotiator/internal/protocol"
)

const (
	policyTimeout = time.Second
	recordTimeout = 5 * time.Second
)

// session is one negotiation bound to one WebSocket connection. run owns the
// negotiation; readPump feeds it commands and writePump drains its events.
type session struct {
	id     string
	srv    *Server
	ws     *websocket.Conn
	logger *slog.Logger
	neg    *Negotiation

	send     chan []byte
	commands chan protocol.Command
	// gone is closed when the peer stops reading.
	gone chan struct{}
	// finished is closed when run returns.
	finished chan struct{}

	manual  bool
	waiting bool
}

func newSession(srv *Server, ws *websocket.Conn) *session {
	id := uuid.New().String()
	valS, valR := srv.opts.Valuations()
	return &session{
		id:       id,
		srv:      srv,
		ws:       ws,
		logger:   srv.logger.With("session_id", id),
		neg:      NewNegotiation(srv.opts.Rules, valS, valR),
		send:     make(chan []byte, 64),
		commands: make(chan protocol.Command, 16),
		gone:     make(chan struct{}),
		finished: make(chan struct{}),
	}
}

func (s *session) run() {
	defer close(s.finished)
	defer close(s.send)

	s.logger.Info("Negotiation started", "human_agent", s.srv.opts.HumanAgent)
	if !s.emit(s.neg.Init(s.id)) {
		return
	}
	if !s.emit(protocol.Log{Message: "Session " + s.id + " started"}) {
		return
	}

	for !s.neg.Done() {
		if s.manual && s.neg.Proposer() == s.srv.opts.HumanAgent {
			if !s.waiting {
				s.waiting = true
				if !s.emit(protocol.WaitForHuman{Agent: s.neg.Proposer()}) {
					return
				}
			}
			select {
			case cmd := <-s.commands:
				if !s.handle(cmd) {
					return
				}
			case <-s.gone:
				s.logger.Info("Client left while a human move was pending", "round", s.neg.Round())
				return
			}
			continue
		}

		timer := time.NewTimer(s.srv.opts.TurnDelay)
		select {
		case cmd := <-s.commands:
			timer.Stop()
			if !s.handle(cmd) {
				return
			}
			continue
		case <-s.gone:
			timer.Stop()
			s.logger.Info("Client left before the negotiation ended", "round", s.neg.Round())
			return
		case <-timer.C:
		}

		action, price, message := ScriptedMove(s.neg)
		turn, err := s.neg.Step(action, price, message)
		if err != nil {
			s.logger.Error("Scripted move rejected", "action", action, "error", err)
			return
		}
		if !s.emit(turn) {
			return
		}
	}

	// Recorded before the end event so that history is current once a
	// client sees it.
	s.record()
	s.emit(s.neg.End())
}

// handle applies one client command. It reports false once the client is gone.
func (s *session) handle(cmd protocol.Command) bool {
	switch c := cmd.(type) {
	case protocol.ToggleManual:
		s.manual = c.Enabled
		if !c.Enabled {
			s.waiting = false
		}
		s.logger.Info("Manual control toggled", "enabled", c.Enabled)
		if c.Enabled {
			return s.emit(protocol.Log{Message: "Manual control enabled for " + string(s.srv.opts.HumanAgent)})
		}
		return s.emit(protocol.Log{Message: "Manual control disabled"})

	case protocol.HumanAction:
		if !s.waiting {
			s.logger.Warn("Human action while no human move is pending", "action", c.Action)
			return s.emit(protocol.Log{Message: "No human move is pending"})
		}
		if reasons := s.vet(c); len(reasons) > 0 {
			s.logger.Warn("Human action denied by policy", "action", c.Action, "reasons", reasons)
			return s.emit(protocol.Log{Message: "Human action rejected: " + strings.Join(reasons, "; ")})
		}
		turn, err := s.neg.Step(c.Action, c.Price, c.Message)
		if err != nil {
			s.logger.Warn("Human action rejected", "action", c.Action, "error", err)
			return s.emit(protocol.Log{Message: "Human action rejected: " + err.Error()})
		}
		s.waiting = false
		return s.emit(turn)
	}
	return true
}

// vet runs the move policy, if any. A policy that fails to evaluate denies
// the move.
func (s *session) vet(c protocol.HumanAction) []string {
	if s.srv.opts.Policy == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), policyTimeout)
	defer cancel()
	reasons, err := s.srv.opts.Policy.Check(ctx, MoveInput{
		Agent:    s.neg.Proposer(),
		Action:   c.Action,
		Price:    c.Price,
		Message:  c.Message,
		Round:    s.neg.Round(),
		Standing: s.neg.Price(),
		MaxPrice: s.srv.opts.Rules.MaxPrice,
	})
	if err != nil {
		s.logger.Error("Move policy failed", "error", err)
		return []string{"policy unavailable"}
	}
	return reasons
}

func (s *session) record() {
	rec, err := s.neg.Record(s.id)
	if err != nil {
		s.logger.Error("Failed to record negotiation", "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := s.srv.history.Add(ctx, s.neg.Summary(s.id, time.Now()), rec); err != nil {
		s.logger.Error("Failed to store negotiation", "error", err)
	}

	supplier, retailer := s.neg.Rewards()
	s.logger.Info("Negotiation finished",
		"outcome", s.neg.Outcome(),
		"rounds", s.neg.Round(),
		"supplier_reward", supplier,
		"retailer_reward", retailer)
}

// emit queues evt for the client. It reports false once the client is gone.
func (s *session) emit(evt protocol.Event) bool {
	data, err := protocol.EncodeEvent(evt)
	if err != nil {
		s.logger.Error("Failed to encode event", "type", evt.Type(), "error", err)
		return true
	}
	select {
	case s.send <- data:
		return true
	case <-s.gone:
		return false
	}
}

func (s *session) readPump() {
	defer close(s.gone)

	s.extendReadDeadline()
	s.ws.SetPongHandler(func(string) error {
		s.extendReadDeadline()
		return nil
	})

	for {
		_, data, err := s.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("WebSocket error", "error", err)
			}
			return
		}
		s.extendReadDeadline()

		cmd, err := protocol.DecodeCommand(data)
		if err != nil {
			s.logger.Warn("Ignoring malformed command", "error", err)
			continue
		}
		select {
		case s.commands <- cmd:
		case <-s.finished:
		}
	}
}

func (s *session) writePump() {
	var tick <-chan time.Time
	if s.srv.opts.PingInterval > 0 {
		ticker := time.NewTicker(s.srv.opts.PingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}
	defer s.ws.Close()

	for {
		select {
		case message, ok := <-s.send:
			s.ws.SetWriteDeadline(time.Now().Add(s.srv.opts.WriteTimeout))
			if !ok {
				s.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "negotiation over"))
				// Give the client a chance to answer the close frame.
				select {
				case <-s.gone:
				case <-time.After(s.srv.opts.WriteTimeout):
				}
				return
			}
			if err := s.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				s.logger.Warn("Failed to write message", "error", err)
				return
			}

		case <-tick:
			s.ws.SetWriteDeadline(time.Now().Add(s.srv.opts.WriteTimeout))
			if err := s.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *session) extendReadDeadline() {
	if s.srv.opts.PingInterval > 0 {
		s.ws.SetReadDeadline(time.Now().Add(2 * s.srv.opts.PingInterval))
	}
}
