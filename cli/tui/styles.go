// Package tui provides the Bubble Tea stats view of the syncbridge CLI.
//
// The view is opt-in (--tui), read-only, and renders the same
// reader.Stats payload the plain stats command prints.
package tui

import "github.com/charmbracelet/lipgloss"

// tone is the accent of a stat box.
type tone = lipgloss.Color

const (
	toneTraffic tone = "#3B82F6"
	toneOK      tone = "#10B981"
	toneWait    tone = "#F59E0B"
	toneFailure tone = "#EF4444"
	toneBytes   tone = "#7C3AED"
	toneIdle    tone = "#6B7280"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(toneBytes).MarginBottom(1)
	labelStyle = lipgloss.NewStyle().Foreground(toneIdle).Width(16)
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF"))
	errorStyle = lipgloss.NewStyle().Foreground(toneFailure)
	helpStyle  = lipgloss.NewStyle().Foreground(toneIdle).MarginTop(1)
	dimStyle   = lipgloss.NewStyle().Foreground(toneIdle)

	statBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 2).
			Width(20).
			Align(lipgloss.Center)
	statValueStyle = lipgloss.NewStyle().Bold(true).Align(lipgloss.Center)
)

// failureTone mutes a failure counter until it is non-zero.
func failureTone(n int64, t tone) tone {
	if n == 0 {
		return toneIdle
	}
	return t
}

// statusTone colours a synthesized status: 5xx failure, 4xx client-side.
func statusTone(status int) tone {
	switch {
	case status >= 500:
		return toneFailure
	case status >= 400:
		return toneWait
	default:
		return toneTraffic
	}
}

func statBox(label, value string, t tone) string {
	content := lipgloss.JoinVertical(lipgloss.Center,
		statValueStyle.Foreground(t).Render(value),
		dimStyle.Render(label),
	)
	return statBoxStyle.BorderForeground(t).Render(content)
}
