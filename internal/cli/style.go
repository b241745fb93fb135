package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/netprobe/internal/dispatch"
)

// netprobe sky blue palette
var (
	skyBlue      = lipgloss.Color("#87CEEB")
	lightSkyBlue = lipgloss.Color("#B0E0E6")
	darkSkyBlue  = lipgloss.Color("#4A90D9")
	white        = lipgloss.Color("#FFFFFF")
	lightGray    = lipgloss.Color("#B0B0B0")
	successColor = lipgloss.Color("#00FF88")
	warningColor = lipgloss.Color("#FFD700")
	errorColor   = lipgloss.Color("#FF6B6B")
)

// theme holds styles bound to one output. Colors are dropped when the
// output is not a terminal.
type theme struct {
	title   lipgloss.Style
	border  lipgloss.Style
	label   lipgloss.Style
	value   lipgloss.Style
	success lipgloss.Style
	warning lipgloss.Style
	failure lipgloss.Style
	dim     lipgloss.Style
}

func newTheme(w io.Writer) theme {
	r := lipgloss.NewRenderer(w)
	return theme{
		title:   r.NewStyle().Foreground(white).Background(darkSkyBlue).Bold(true).Padding(0, 1),
		border:  r.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(skyBlue).Padding(0, 1),
		label:   r.NewStyle().Foreground(lightSkyBlue).Width(12),
		value:   r.NewStyle().Foreground(white).Bold(true),
		success: r.NewStyle().Foreground(successColor).Bold(true),
		warning: r.NewStyle().Foreground(warningColor),
		failure: r.NewStyle().Foreground(errorColor).Bold(true),
		dim:     r.NewStyle().Foreground(lightGray),
	}
}

// renderSummary formats s for w.
func renderSummary(w io.Writer, s *dispatch.Summary) string {
	t := newTheme(w)

	row := func(label, value string) string {
		return t.label.Render(label) + value
	}

	outcome := t.success.Render(fmt.Sprintf("%d ok", s.Succeeded()))
	if s.Failed > 0 {
		outcome += t.dim.Render(" / ") + t.failure.Render(fmt.Sprintf("%d failed", s.Failed))
	}

	rows := []string{
		t.title.Render(fmt.Sprintf("⌖ %s  %s %s", s.Name, s.Protocol, s.Endpoint)),
		"",
		row("run", t.dim.Render(s.RunID)),
		row("jobs", t.value.Render(fmt.Sprintf("%d", s.Jobs))),
		row("exchanges", t.value.Render(fmt.Sprintf("%d", s.Exchanges))+t.dim.Render("  ")+outcome),
		row("bytes", t.value.Render(fmt.Sprintf("%d sent, %d received", s.BytesSent, s.BytesReceived))),
	}
	if s.Exchanges > 0 {
		rows = append(rows, row("latency", t.value.Render(fmt.Sprintf("p50 %s  p95 %s  p99 %s  max %s",
			round(s.P50), round(s.P95), round(s.P99), round(s.Max)))))
	}
	rows = append(rows, row("elapsed", t.value.Render(round(s.Elapsed).String())))
	if s.SavesFailed > 0 {
		rows = append(rows, row("saves", t.warning.Render(fmt.Sprintf("%d failed", s.SavesFailed))))
	}

	return t.border.Render(strings.Join(rows, "\n"))
}

func round(d time.Duration) time.Duration {
	switch {
	case d >= time.Second:
		return d.Round(time.Millisecond)
	case d >= time.Millisecond:
		return d.Round(10 * time.Microsecond)
	default:
		return d
	}
}
