package tui

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/pithecene-io/syncbridge/cli/reader"
)

// DefaultRefresh is the polling interval of a live stats view.
const DefaultRefresh = 2 * time.Second

// StatsFeed polls a running server. Passing a feed to Run makes the view
// refresh itself; passing a *reader.Stats renders a fixed snapshot.
type StatsFeed struct {
	Reader   reader.Reader
	Interval time.Duration
}

type statsMsg struct {
	stats *reader.Stats
	err   error
	at    time.Time
}

type tickMsg struct{}

// keyMap defines key bindings.
type keyMap struct {
	Refresh key.Binding
	Quit    key.Binding
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Refresh, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

var keys = keyMap{
	Refresh: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "refresh"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// StatsModel is a Bubble Tea model for the stats view.
type StatsModel struct {
	feed     *StatsFeed
	stats    *reader.Stats
	err      error
	updated  time.Time
	help     help.Model
	width    int
	height   int
	quitting bool
}

// NewStatsModel creates a stats model from a *StatsFeed or a *reader.Stats.
func NewStatsModel(data any) StatsModel {
	m := StatsModel{help: help.New()}
	switch d := data.(type) {
	case *StatsFeed:
		m.feed = d
	case *reader.Stats:
		m.stats = d
	}
	return m
}

// Init implements tea.Model.
func (m StatsModel) Init() tea.Cmd {
	return m.fetch()
}

func (m StatsModel) fetch() tea.Cmd {
	if m.feed == nil || m.feed.Reader == nil {
		return nil
	}
	r := m.feed.Reader
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), reader.DefaultTimeout)
		defer cancel()
		s, err := r.Stats(ctx)
		return statsMsg{stats: s, err: err, at: time.Now()}
	}
}

func (m StatsModel) interval() time.Duration {
	if m.feed == nil || m.feed.Interval <= 0 {
		return DefaultRefresh
	}
	return m.feed.Interval
}

// Update implements tea.Model.
func (m StatsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case statsMsg:
		m.err = msg.err
		if msg.err == nil {
			m.stats = msg.stats
			m.updated = msg.at
		}
		return m, tea.Tick(m.interval(), func(time.Time) tea.Msg { return tickMsg{} })

	case tickMsg:
		return m, m.fetch()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, keys.Refresh):
			return m, m.fetch()
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m StatsModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Bridge Statistics"))
	b.WriteString("\n")

	switch {
	case m.stats == nil && m.err != nil:
		b.WriteString(errorStyle.Render("error: " + m.err.Error()))
	case m.stats == nil:
		b.WriteString(dimStyle.Render("waiting for data..."))
	default:
		b.WriteString(m.renderStats())
		if m.err != nil {
			b.WriteString("\n")
			b.WriteString(errorStyle.Render("last refresh failed: " + m.err.Error()))
		}
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render(m.help.View(keys)))
	return b.String()
}

func (m StatsModel) renderStats() string {
	s := m.stats
	mt := s.Metrics

	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n\n",
		labelStyle.Render("App:"), valueStyle.Render(s.App),
		labelStyle.Render("Host:"), valueStyle.Render(s.Host),
		labelStyle.Render("Uptime:"), valueStyle.Render(s.Uptime)))

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		statBox("Started", humanize.Comma(mt.RequestsStarted), toneTraffic),
		statBox("Completed", humanize.Comma(mt.RequestsCompleted), toneOK),
		statBox("In Flight", humanize.Comma(s.InFlight()), toneWait),
		statBox("Abandoned", humanize.Comma(mt.RequestsAbandoned), toneIdle),
	))
	b.WriteString("\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		statBox("Too Large", humanize.Comma(mt.BodyTooLarge), failureTone(mt.BodyTooLarge, toneWait)),
		statBox("Violations", humanize.Comma(mt.ProtocolViolations), failureTone(mt.ProtocolViolations, toneFailure)),
		statBox("Handler Errors", humanize.Comma(mt.HandlerFailures), failureTone(mt.HandlerFailures, toneFailure)),
		statBox("Aborted", humanize.Comma(mt.StreamsAborted), failureTone(mt.StreamsAborted, toneFailure)),
	))
	b.WriteString("\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		statBox("Workers", fmt.Sprintf("%d/%d", s.Pool.Busy, s.Pool.Workers), toneTraffic),
		statBox("Queued", humanize.Comma(int64(s.Pool.Queued)), toneWait),
		statBox("Bytes In", humanize.Bytes(uint64(max(mt.BytesIn, 0))), toneBytes),
		statBox("Bytes Out", humanize.Bytes(uint64(max(mt.BytesOut, 0))), toneBytes),
	))

	if len(mt.Synthesized) > 0 {
		b.WriteString("\n")
		b.WriteString(labelStyle.Render("Synthesized:"))
		statuses := make([]int, 0, len(mt.Synthesized))
		for status := range mt.Synthesized {
			statuses = append(statuses, status)
		}
		sort.Ints(statuses)
		for _, status := range statuses {
			b.WriteString(" ")
			b.WriteString(lipgloss.NewStyle().Foreground(statusTone(status)).Render(fmt.Sprintf("%d×%d", status, mt.Synthesized[status])))
		}
	}

	if !m.updated.IsZero() {
		b.WriteString("\n")
		b.WriteString(labelStyle.Render("Updated:"))
		b.WriteString(" ")
		b.WriteString(valueStyle.Render(m.updated.Format("15:04:05")))
	}

	return b.String()
}

// RunStatsTUI runs the stats TUI.
func RunStatsTUI(data any) error {
	model := NewStatsModel(data)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderStatsStatic renders stats data without full TUI (for fallback).
func RenderStatsStatic(stats *reader.Stats) string {
	model := NewStatsModel(stats)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
