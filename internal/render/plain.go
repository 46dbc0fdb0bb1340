package render

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/text/message"

	"github.com/xiaot623/gogo/negotiator/internal/controller"
	"github.com/xiaot623/gogo/negotiator/internal/protocol"
	"github.com/xiaot623/gogo/negotiator/internal/transport"
)

// Plain prints what changed between consecutive snapshots, one line per
// change. It is a controller.Sink.
type Plain struct {
	mu        sync.Mutex
	w         io.Writer
	loc       *message.Printer
	theme     Theme
	maxRounds int

	initialized bool
	ended       bool
	printed     int
	status      string
	connection  transport.ConnectionStatus
	replayID    string
	notice      string
}

// NewPlain writes to w, with colors only when w is a terminal.
func NewPlain(w io.Writer, loc *message.Printer, maxRounds int) *Plain {
	if loc == nil {
		loc = NewPrinter("en")
	}
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}
	return &Plain{
		w:          w,
		loc:        loc,
		theme:      NewTheme(lipgloss.NewRenderer(w)),
		maxRounds:  maxRounds,
		connection: transport.StatusDisconnected,
	}
}

// Publish implements controller.Sink.
func (p *Plain) Publish(s controller.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	view := s.View
	if p.initialized && !view.Initialized() {
		// A new session replaced the previous one.
		p.initialized = false
		p.ended = false
		p.printed = 0
		p.status = ""
	}

	if s.Connection != p.connection {
		p.connection = s.Connection
		p.line(p.theme.Connection(s.Connection))
	}
	if s.ReplayID != p.replayID {
		if s.ReplayID != "" {
			p.line(p.theme.Badge.Render("REPLAY " + s.ReplayID))
		}
		p.replayID = s.ReplayID
	}
	if s.Notice != p.notice {
		if s.Notice != "" {
			p.line(p.theme.Notice.Render("! " + s.Notice))
		}
		p.notice = s.Notice
	}

	if view.Initialized() && !p.initialized {
		p.initialized = true
		p.line(p.theme.Title.Render("Session " + view.SessionID))
		p.line(fmt.Sprintf("  %s valuation %s, %s valuation %s, %d item(s)",
			p.theme.Supplier.Render("SUPPLIER"), Magnitude(p.loc, view.ValuationsSupplier),
			p.theme.Retailer.Render("RETAILER"), Magnitude(p.loc, view.ValuationsRetailer),
			view.Items()))
	}

	for ; p.printed < len(view.Transcript); p.printed++ {
		entry := view.Transcript[p.printed]
		text := TranscriptLine(entry, EntryPrice(p.loc, view, p.printed))
		style := p.theme.Agent(entry.Agent)
		if entry.Action == protocol.ActionQuit {
			style = p.theme.Quit
		}
		p.line(style.Render(text))
	}

	if label := view.Status.Label(); view.Initialized() && label != p.status {
		p.status = label
		p.line(fmt.Sprintf("  [%s] %s", RoundCounter(view.CurrentRound, p.maxRounds), p.theme.Status(view.Status)))
	}

	if view.Ended() && !p.ended {
		p.ended = true
		p.line(fmt.Sprintf("  deal price %s, rewards %s",
			Magnitude(p.loc, view.DealPrice), Rewards(p.loc, view.FinalRewards)))
	}
}

func (p *Plain) line(text string) {
	fmt.Fprintln(p.w, text)
}

var _ controller.Sink = (*Plain)(nil)
