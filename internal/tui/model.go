// Package tui is the interactive terminal renderer. It subscribes to
// controller snapshots and turns key presses into controller calls.
package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/text/message"

	"github.com/xiaot623/gogo/negotiator/internal/controller"
	"github.com/xiaot623/gogo/negotiator/internal/protocol"
	"github.com/xiaot623/gogo/negotiator/internal/render"
)

// Controller is the part of the session controller the TUI drives.
type Controller interface {
	StartLive(ctx context.Context) error
	StartReplay(ctx context.Context, id string) error
	ToggleManual(enabled bool) error
	SubmitHumanAction(action protocol.Action, price float64, message string) error
	RefreshSessions(ctx context.Context) error
	Stop()
	Snapshot() controller.Snapshot
}

// Start selects what the TUI does on launch.
type Start struct {
	Live     bool
	ReplayID string
}

// Options configures the model.
type Options struct {
	Printer   *message.Printer
	MaxRounds int
	Start     Start
}

type focus int

const (
	focusNone focus = iota
	focusPrice
	focusMessage
)

type commandDoneMsg struct {
	name string
	err  error
}

// Model is the bubbletea model.
type Model struct {
	ctx   context.Context
	ctrl  Controller
	feed  *Feed
	opts  Options
	loc   *message.Printer
	theme render.Theme

	snap     controller.Snapshot
	selected int
	turns    int
	waiting  bool
	lastErr  string

	width, height int
	transcript    viewport.Model
	price         textinput.Model
	message       textinput.Model
	focus         focus
}

// New builds the model. ctx bounds every controller call it makes.
func New(ctx context.Context, ctrl Controller, feed *Feed, opts Options) Model {
	if opts.Printer == nil {
		opts.Printer = render.NewPrinter("en")
	}
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = render.DefaultMaxRounds
	}

	price := textinput.New()
	price.Prompt = "price ❯ "
	price.Placeholder = "counter offer"
	price.CharLimit = 16
	price.Width = 14

	msg := textinput.New()
	msg.Prompt = "message ❯ "
	msg.Placeholder = "optional note to the other party"
	msg.CharLimit = 280

	return Model{
		ctx:        ctx,
		ctrl:       ctrl,
		feed:       feed,
		opts:       opts,
		loc:        opts.Printer,
		theme:      render.NewTheme(nil),
		snap:       ctrl.Snapshot(),
		transcript: viewport.New(0, 0),
		price:      price,
		message:    msg,
	}
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		waitSnapshot(m.feed),
		m.run("refresh", func() error { return m.ctrl.RefreshSessions(m.ctx) }),
	}
	switch {
	case m.opts.Start.ReplayID != "":
		id := m.opts.Start.ReplayID
		cmds = append(cmds, m.run("replay", func() error { return m.ctrl.StartReplay(m.ctx, id) }))
	case m.opts.Start.Live:
		cmds = append(cmds, m.run("start", func() error { return m.ctrl.StartLive(m.ctx) }))
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		return m, nil

	case snapshotMsg:
		m.apply(controller.Snapshot(msg))
		return m, waitSnapshot(m.feed)

	case feedClosedMsg:
		return m, nil

	case commandDoneMsg:
		if msg.err != nil {
			m.lastErr = msg.name + ": " + msg.err.Error()
		} else {
			m.lastErr = ""
		}
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		if m.focus != focusNone {
			return m.updateInput(msg)
		}
		return m.updateKeys(msg)
	}

	var cmd tea.Cmd
	m.transcript, cmd = m.transcript.Update(msg)
	return m, cmd
}

// apply takes a new snapshot. The price input is pre-filled when a human move
// is requested and the message input is cleared on every new turn.
func (m *Model) apply(s controller.Snapshot) {
	m.snap = s
	view := s.View

	if len(view.Transcript) < m.turns {
		m.turns = 0
	}
	if len(view.Transcript) > m.turns {
		m.turns = len(view.Transcript)
		m.message.SetValue("")
	}

	waiting := view.Waiting() && s.Mode == controller.ModeLive
	if waiting && !m.waiting {
		m.price.SetValue(strconv.FormatFloat(view.SuggestedPrice, 'f', -1, 64))
	}
	if !waiting && m.waiting {
		m.blur()
	}
	m.waiting = waiting

	if m.selected >= len(s.Sessions) {
		m.selected = max(len(s.Sessions)-1, 0)
	}
	m.transcript.SetContent(m.renderTranscript())
	m.transcript.GotoBottom()
}

func (m Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "l":
		return m, m.run("start", func() error { return m.ctrl.StartLive(m.ctx) })
	case "s":
		return m, m.run("stop", func() error { m.ctrl.Stop(); return nil })
	case "r":
		return m, m.run("refresh", func() error { return m.ctrl.RefreshSessions(m.ctx) })
	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}
		return m, nil
	case "down", "j":
		if m.selected < len(m.snap.Sessions)-1 {
			m.selected++
		}
		return m, nil
	case "enter":
		if len(m.snap.Sessions) == 0 {
			return m, nil
		}
		id := m.snap.Sessions[m.selected].ID
		return m, m.run("replay", func() error { return m.ctrl.StartReplay(m.ctx, id) })
	case "m":
		enabled := !m.snap.ManualEnabled
		return m, m.run("manual", func() error { return m.ctrl.ToggleManual(enabled) })
	case "a":
		if !m.waiting {
			m.lastErr = "accept: not awaiting a human move"
			return m, nil
		}
		note := m.message.Value()
		return m, m.run("accept", func() error {
			return m.ctrl.SubmitHumanAction(protocol.ActionAccept, m.snap.View.SuggestedPrice, note)
		})
	case "c":
		if !m.waiting {
			m.lastErr = "counter: not awaiting a human move"
			return m, nil
		}
		m.focus = focusPrice
		m.message.Blur()
		return m, m.price.Focus()
	}
	var cmd tea.Cmd
	m.transcript, cmd = m.transcript.Update(msg)
	return m, cmd
}

func (m Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.blur()
		return m, nil
	case tea.KeyTab, tea.KeyShiftTab:
		if m.focus == focusPrice {
			m.focus = focusMessage
			m.price.Blur()
			return m, m.message.Focus()
		}
		m.focus = focusPrice
		m.message.Blur()
		return m, m.price.Focus()
	case tea.KeyEnter:
		price, err := strconv.ParseFloat(strings.TrimSpace(m.price.Value()), 64)
		if err != nil {
			m.lastErr = fmt.Sprintf("counter: invalid price %q", m.price.Value())
			return m, nil
		}
		note := m.message.Value()
		m.blur()
		return m, m.run("counter", func() error {
			return m.ctrl.SubmitHumanAction(protocol.ActionCounter, price, note)
		})
	}

	var cmd tea.Cmd
	if m.focus == focusPrice {
		m.price, cmd = m.price.Update(msg)
	} else {
		m.message, cmd = m.message.Update(msg)
	}
	return m, cmd
}

func (m *Model) blur() {
	m.focus = focusNone
	m.price.Blur()
	m.message.Blur()
}

func (m Model) run(name string, fn func() error) tea.Cmd {
	return func() tea.Msg {
		return commandDoneMsg{name: name, err: fn()}
	}
}

func (m *Model) resize() {
	m.transcript.Width = max(m.width-m.sideWidth()-6, 20)
	m.transcript.Height = max(m.height-9, 5)
	m.message.Width = max(m.width-30, 20)
	m.transcript.SetContent(m.renderTranscript())
}

// Run starts the program on the terminal and blocks until the user quits.
func Run(ctx context.Context, ctrl Controller, feed *Feed, opts Options) error {
	p := tea.NewProgram(New(ctx, ctrl, feed, opts), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	feed.Close()
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("run tui: %w", err)
	}
	return nil
}

var _ tea.Model = Model{}

func (m Model) sideWidth() int {
	return min(44, max(m.width/3, 30))
}

func joinLines(lines ...string) string {
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
