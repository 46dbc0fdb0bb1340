package render

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/xiaot623/gogo/negotiator/internal/projector"
	"github.com/xiaot623/gogo/negotiator/internal/protocol"
	"github.com/xiaot623/gogo/negotiator/internal/transport"
)

// Theme holds every style the renderers use. Styles are bound to one
// renderer so that output to a pipe carries no escape codes.
type Theme struct {
	Title        lipgloss.Style
	Muted        lipgloss.Style
	Notice       lipgloss.Style
	Badge        lipgloss.Style
	Panel        lipgloss.Style
	PanelTitle   lipgloss.Style
	Supplier     lipgloss.Style
	Retailer     lipgloss.Style
	System       lipgloss.Style
	Quit         lipgloss.Style
	Connected    lipgloss.Style
	Disconnected lipgloss.Style
	Selected     lipgloss.Style
	Help         lipgloss.Style

	status map[projector.StatusKind]lipgloss.Style
}

// NewTheme builds the theme on r. A nil r uses the default renderer.
func NewTheme(r *lipgloss.Renderer) Theme {
	if r == nil {
		r = lipgloss.DefaultRenderer()
	}
	var (
		blue   = lipgloss.Color("#5fafff")
		orange = lipgloss.Color("#ffaf5f")
		green  = lipgloss.Color("#5fd787")
		red    = lipgloss.Color("#ff5f5f")
		yellow = lipgloss.Color("#ffd75f")
		muted  = lipgloss.Color("#8a8a8a")
	)
	return Theme{
		Title:        r.NewStyle().Bold(true),
		Muted:        r.NewStyle().Foreground(muted),
		Notice:       r.NewStyle().Foreground(yellow),
		Badge:        r.NewStyle().Foreground(lipgloss.Color("#1c1c1c")).Background(yellow).Bold(true).Padding(0, 1),
		Panel:        r.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(muted).Padding(0, 1),
		PanelTitle:   r.NewStyle().Foreground(blue).Bold(true),
		Supplier:     r.NewStyle().Foreground(orange).Bold(true),
		Retailer:     r.NewStyle().Foreground(blue).Bold(true),
		System:       r.NewStyle().Foreground(muted).Bold(true),
		Quit:         r.NewStyle().Foreground(red),
		Connected:    r.NewStyle().Foreground(green).Bold(true),
		Disconnected: r.NewStyle().Foreground(red).Bold(true),
		Selected:     r.NewStyle().Foreground(yellow).Bold(true),
		Help:         r.NewStyle().Foreground(muted),
		status: map[projector.StatusKind]lipgloss.Style{
			projector.StatusIdle:        r.NewStyle().Foreground(muted).Bold(true),
			projector.StatusNegotiating: r.NewStyle().Foreground(blue).Bold(true),
			projector.StatusWaitingFor:  r.NewStyle().Foreground(yellow).Bold(true),
			projector.StatusDealReached: r.NewStyle().Foreground(green).Bold(true),
			projector.StatusFailed:      r.NewStyle().Foreground(red).Bold(true),
		},
	}
}

func (t Theme) Agent(a protocol.Agent) lipgloss.Style {
	switch a {
	case protocol.AgentSupplier:
		return t.Supplier
	case protocol.AgentRetailer:
		return t.Retailer
	default:
		return t.System
	}
}

func (t Theme) Status(s projector.Status) string {
	style, ok := t.status[s.Kind]
	if !ok {
		style = t.status[projector.StatusIdle]
	}
	return style.Render(s.Label())
}

func (t Theme) Connection(c transport.ConnectionStatus) string {
	if c == transport.StatusConnected {
		return t.Connected.Render(c.Label())
	}
	return t.Disconnected.Render(c.Label())
}
