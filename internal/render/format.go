// Package render turns controller snapshots into text: shared formatting and
// theme helpers, plus a line-oriented sink for non-interactive runs.
package render

import (
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/xiaot623/gogo/negotiator/internal/projector"
	"github.com/xiaot623/gogo/negotiator/internal/protocol"
)

// DefaultMaxRounds is the round limit shown next to the round counter.
const DefaultMaxRounds = 20

// NewPrinter returns a number printer for a BCP 47 tag. Unknown tags fall
// back to English.
func NewPrinter(lang string) *message.Printer {
	tag, err := language.Parse(lang)
	if err != nil {
		tag = language.English
	}
	return message.NewPrinter(tag)
}

// Price formats a single price with grouping and two decimals.
func Price(loc *message.Printer, v float64) string {
	return loc.Sprintf("%.2f", v)
}

// Magnitude formats a scalar as a price and a vector as a bracketed list.
func Magnitude(loc *message.Printer, m protocol.Magnitude) string {
	switch {
	case m.IsAbsent():
		return "-"
	case !m.IsVector():
		return Price(loc, m.At(0))
	}
	values := m.Values()
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = Price(loc, v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Rewards formats the final rewards as supplier / retailer.
func Rewards(loc *message.Printer, rewards []float64) string {
	if len(rewards) == 0 {
		return "-"
	}
	parts := make([]string, len(rewards))
	for i, r := range rewards {
		parts[i] = loc.Sprintf("%+.4f", r)
	}
	return strings.Join(parts, " / ")
}

// RoundCounter renders "R<n> / <max>".
func RoundCounter(round, maxRounds int) string {
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}
	if round <= 0 {
		return "R- / " + strconv.Itoa(maxRounds)
	}
	return projector.RoundLabel(round) + " / " + strconv.Itoa(maxRounds)
}

// AgentName is the upper-case party name used in the transcript.
func AgentName(a protocol.Agent) string {
	if a == "" {
		return "SYSTEM"
	}
	return strings.ToUpper(string(a))
}

// TranscriptLine renders one transcript entry without styling.
func TranscriptLine(e projector.TranscriptEntry, price string) string {
	var b strings.Builder
	b.WriteString(projector.RoundLabel(e.Round))
	b.WriteString(" ")
	b.WriteString(AgentName(e.Agent))
	b.WriteString(" ")
	b.WriteString(string(e.Action))
	if price != "" {
		b.WriteString(" @ ")
		b.WriteString(price)
	}
	b.WriteString(": ")
	b.WriteString(e.Text)
	return b.String()
}

// EntryPrice returns the price the i-th transcript entry was made at, read
// from the chart series.
func EntryPrice(loc *message.Printer, view projector.ViewState, i int) string {
	if len(view.PriceSeries) == 0 || i >= len(view.PriceSeries[0]) {
		return ""
	}
	if len(view.PriceSeries) == 1 {
		return Price(loc, view.PriceSeries[0][i])
	}
	parts := make([]string, len(view.PriceSeries))
	for item, series := range view.PriceSeries {
		parts[item] = Price(loc, series[i])
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

var sparkBlocks = []rune("▁▂▃▄▅▆▇█")

// Sparkline draws the last width values of series scaled into [lo, hi].
func Sparkline(series []float64, lo, hi float64, width int) string {
	if width <= 0 || len(series) == 0 {
		return ""
	}
	if len(series) > width {
		series = series[len(series)-width:]
	}
	span := hi - lo
	out := make([]rune, len(series))
	for i, v := range series {
		level := 0
		if span > 0 {
			level = int((v - lo) / span * float64(len(sparkBlocks)-1))
		}
		out[i] = sparkBlocks[max(0, min(level, len(sparkBlocks)-1))]
	}
	return string(out)
}

// SeriesRange is the lowest and highest value across every price series and
// both valuations, so that all sparklines share one scale.
func SeriesRange(view projector.ViewState) (lo, hi float64) {
	first := true
	take := func(v float64) {
		if first {
			lo, hi, first = v, v, false
			return
		}
		lo, hi = min(lo, v), max(hi, v)
	}
	for _, series := range view.PriceSeries {
		for _, v := range series {
			take(v)
		}
	}
	for _, v := range view.ValuationsSupplier.Values() {
		take(v)
	}
	for _, v := range view.ValuationsRetailer.Values() {
		take(v)
	}
	return lo, hi
}
