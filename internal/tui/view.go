package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/xiaot623/gogo/negotiator/internal/projector"
	"github.com/xiaot623/gogo/negotiator/internal/protocol"
	"github.com/xiaot623/gogo/negotiator/internal/render"
)

const maxListedSessions = 10

func (m Model) View() string {
	side := m.theme.Panel.Width(m.sideWidth()).Render(joinLines(m.renderState(), "", m.renderSessions()))
	main := m.theme.Panel.Width(m.transcript.Width).Render(joinLines(
		m.theme.PanelTitle.Render("Transcript"),
		m.transcript.View(),
	))
	body := lipgloss.JoinHorizontal(lipgloss.Top, main, side)
	return joinLines(m.renderHeader(), body, m.renderInput(), m.renderFooter())
}

func (m Model) renderHeader() string {
	parts := []string{
		m.theme.Title.Render("NEGOTIATOR"),
		m.theme.Connection(m.snap.Connection),
		m.theme.Muted.Render(string(m.snap.Mode)),
	}
	if m.snap.ReplayID != "" {
		parts = append(parts, m.theme.Badge.Render("REPLAY "+shortID(m.snap.ReplayID)))
	}
	if m.snap.ManualEnabled {
		parts = append(parts, m.theme.Selected.Render("MANUAL"))
	}
	return strings.Join(parts, "  ")
}

func (m Model) renderTranscript() string {
	view := m.snap.View
	if len(view.Transcript) == 0 {
		return m.theme.Muted.Render("No turns yet.")
	}
	lines := make([]string, 0, len(view.Transcript))
	for i, entry := range view.Transcript {
		style := m.theme.Agent(entry.Agent)
		if entry.Action == protocol.ActionQuit {
			style = m.theme.Quit
		}
		head := style.Render(fmt.Sprintf("%-4s %-8s %-7s", projector.RoundLabel(entry.Round), render.AgentName(entry.Agent), entry.Action))
		price := render.EntryPrice(m.loc, view, i)
		lines = append(lines, head+" "+m.theme.Muted.Render(price)+"  "+entry.Text)
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderState() string {
	view := m.snap.View
	lines := []string{
		m.theme.PanelTitle.Render("Session"),
		m.theme.Status(view.Status),
		"round     " + render.RoundCounter(view.CurrentRound, m.opts.MaxRounds),
	}
	if !view.Initialized() {
		return joinLines(lines...)
	}
	if view.SessionID != "" {
		lines = append(lines, "id        "+shortID(view.SessionID))
	}
	lines = append(lines,
		m.theme.Supplier.Render("supplier")+"  "+render.Magnitude(m.loc, view.ValuationsSupplier),
		m.theme.Retailer.Render("retailer")+"  "+render.Magnitude(m.loc, view.ValuationsRetailer),
	)
	if m.waiting {
		lines = append(lines, "suggested "+render.Price(m.loc, view.SuggestedPrice))
	}

	lo, hi := render.SeriesRange(view)
	width := max(m.sideWidth()-12, 8)
	for i, series := range view.PriceSeries {
		label := "price"
		if len(view.PriceSeries) > 1 {
			label = fmt.Sprintf("item %d", i+1)
		}
		lines = append(lines, fmt.Sprintf("%-9s %s", label, render.Sparkline(series, lo, hi, width)))
	}

	if view.Ended() {
		lines = append(lines,
			"deal      "+render.Magnitude(m.loc, view.DealPrice),
			"rewards   "+render.Rewards(m.loc, view.FinalRewards),
		)
	}
	return joinLines(lines...)
}

func (m Model) renderSessions() string {
	lines := []string{m.theme.PanelTitle.Render("History")}
	if len(m.snap.Sessions) == 0 {
		return joinLines(append(lines, m.theme.Muted.Render("No recorded sessions."))...)
	}
	start := 0
	if m.selected >= maxListedSessions {
		start = m.selected - maxListedSessions + 1
	}
	end := min(start+maxListedSessions, len(m.snap.Sessions))
	for i := start; i < end; i++ {
		s := m.snap.Sessions[i]
		line := fmt.Sprintf("%s %-7s %3d", shortID(s.ID), s.Result, s.Rounds)
		if i == m.selected {
			lines = append(lines, m.theme.Selected.Render("▸ "+line))
		} else {
			lines = append(lines, "  "+line)
		}
	}
	return joinLines(lines...)
}

func (m Model) renderInput() string {
	if !m.waiting {
		return ""
	}
	prompt := m.theme.Notice.Render(fmt.Sprintf("Your move as %s: [a]ccept or [c]ounter", render.AgentName(m.snap.View.AwaitingHumanAgent)))
	return joinLines(prompt, m.price.View(), m.message.View())
}

func (m Model) renderFooter() string {
	var lines []string
	if m.snap.Notice != "" {
		lines = append(lines, m.theme.Notice.Render(m.snap.Notice))
	}
	if m.lastErr != "" {
		lines = append(lines, m.theme.Quit.Render(m.lastErr))
	}
	help := "l live  enter replay  ↑/↓ select  r refresh  m manual  s stop  q quit"
	if m.focus != focusNone {
		help = "enter submit  tab switch field  esc cancel"
	}
	lines = append(lines, m.theme.Help.Render(help))
	return joinLines(lines...)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
