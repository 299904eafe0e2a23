// ABOUTME: Bubbletea model for the stem player TUI
// ABOUTME: Holds the transport snapshot and maps keys to player commands
package ui

import (
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/stemdeck/stemdeck-go/pkg/stem"
	"github.com/stemdeck/stemdeck-go/pkg/transport"
)

const (
	seekStep   = 5.0
	rateStep   = 0.05
	volumeStep = 0.05
	pollEvery  = 250 * time.Millisecond
)

// Controls is the player surface the TUI drives
type Controls interface {
	Toggle() error
	Seek(t float64) error
	SetRate(rate float64) error
	SetLoop(start, end float64) error
	ClearLoop() error
	Mute(key stem.ID, muted bool) error
	SetVolume(v float64) error
	Status() transport.Status
}

// StatusMsg replaces the transport snapshot
type StatusMsg transport.Status

// TimeMsg carries a time update from the player
type TimeMsg float64

// ProgressMsg carries load progress in [0, 1]
type ProgressMsg float64

// ErrorMsg reports a failed command or load
type ErrorMsg struct{ Err error }

type pollMsg time.Time

// Model represents the TUI state
type Model struct {
	controls Controls
	title    string

	status   transport.Status
	progress float64
	loading  bool
	lastErr  string
	loopMark *float64

	width    int
	height   int
	quitting bool
}

// NewModel creates a model for the given player
func NewModel(controls Controls, title string) Model {
	return Model{
		controls: controls,
		title:    title,
		status:   transport.Status{Rate: 1, Volume: 1},
	}
}

// Init starts status polling
func (m Model) Init() tea.Cmd {
	return poll()
}

func poll() tea.Cmd {
	return tea.Tick(pollEvery, func(t time.Time) tea.Msg {
		return pollMsg(t)
	})
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.status = transport.Status(msg)
		if m.status.LoadError != nil {
			m.lastErr = m.status.LoadError.Error()
		}
	case TimeMsg:
		m.status.SongTime = float64(msg)
	case ProgressMsg:
		m.progress = float64(msg)
		m.loading = m.progress < 1
	case ErrorMsg:
		if msg.Err != nil {
			m.lastErr = msg.Err.Error()
		}
		m.loading = false
	case pollMsg:
		return m, tea.Batch(m.refresh(), poll())
	}

	return m, nil
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.controls == nil {
		if k := msg.String(); k == "q" || k == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil
	}

	s := m.status
	switch k := msg.String(); k {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case " ", "p":
		return m, m.command(m.controls.Toggle)
	case "left":
		return m, m.command(func() error { return m.controls.Seek(math.Max(0, s.SongTime-seekStep)) })
	case "right":
		return m, m.command(func() error { return m.controls.Seek(s.SongTime + seekStep) })
	case "home", "0":
		return m, m.command(func() error { return m.controls.Seek(0) })
	case "[":
		return m, m.command(func() error { return m.controls.SetRate(roundStep(s.Rate - rateStep)) })
	case "]":
		return m, m.command(func() error { return m.controls.SetRate(roundStep(s.Rate + rateStep)) })
	case "=":
		return m, m.command(func() error { return m.controls.SetRate(1) })
	case "up", "+":
		return m, m.command(func() error { return m.controls.SetVolume(math.Min(1, roundStep(s.Volume+volumeStep))) })
	case "down", "-":
		return m, m.command(func() error { return m.controls.SetVolume(math.Max(0, roundStep(s.Volume-volumeStep))) })
	case "a":
		mark := s.SongTime
		m.loopMark = &mark
	case "b":
		if m.loopMark == nil {
			m.lastErr = "set a loop start with 'a' first"
			return m, nil
		}
		start, end := *m.loopMark, s.SongTime
		m.loopMark = nil
		if end < start {
			start, end = end, start
		}
		return m, m.command(func() error { return m.controls.SetLoop(start, end) })
	case "c":
		m.loopMark = nil
		return m, m.command(m.controls.ClearLoop)
	case "1", "2", "3", "4", "5":
		id := stem.ID(k[0] - '1')
		muted := !m.isMuted(id)
		return m, m.command(func() error { return m.controls.Mute(id, muted) })
	}

	return m, nil
}

// command runs fn off the UI goroutine and reports the resulting status
func (m Model) command(fn func() error) tea.Cmd {
	controls := m.controls
	return func() tea.Msg {
		if err := fn(); err != nil {
			return ErrorMsg{Err: err}
		}
		return StatusMsg(controls.Status())
	}
}

func (m Model) refresh() tea.Cmd {
	if m.controls == nil {
		return nil
	}
	controls := m.controls
	return func() tea.Msg {
		return StatusMsg(controls.Status())
	}
}

func (m Model) isMuted(id stem.ID) bool {
	for _, muted := range m.status.Muted {
		if muted == id {
			return true
		}
	}
	return false
}

func (m Model) hasTrack(id stem.ID) bool {
	for _, t := range m.status.Tracks {
		if t == id {
			return true
		}
	}
	return false
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Strikethrough(true)
	liveStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("220"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle   = lipgloss.NewStyle().Faint(true)
)

// View renders the TUI
func (m Model) View() string {
	if m.quitting {
		return "Stopping...\n"
	}

	var b strings.Builder

	title := m.title
	if title == "" {
		title = "stemdeck"
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n\n")

	b.WriteString(m.renderTransport())
	b.WriteString(m.renderStems())

	if m.loading {
		b.WriteString(headerStyle.Render("Loading: "))
		b.WriteString(valueStyle.Render(fmt.Sprintf("[%s] %3.0f%%", renderBar(m.progress, 20), m.progress*100)))
		b.WriteString("\n")
	}

	if m.lastErr != "" {
		b.WriteString(errorStyle.Render("Error: " + truncate(m.lastErr, 70)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("space:Play/Pause  ←/→:Seek  [/]:Rate  ↑/↓:Volume  1-5:Mute  a/b:Loop  c:Clear  q:Quit"))
	b.WriteString("\n")

	return b.String()
}

func (m Model) renderTransport() string {
	s := m.status
	var b strings.Builder

	b.WriteString(headerStyle.Render("State:  "))
	b.WriteString(valueStyle.Render(s.State.String()))
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("Time:   "))
	b.WriteString(valueStyle.Render(fmt.Sprintf("%s / %s", formatTime(s.SongTime), formatTime(s.Duration))))
	b.WriteString("\n")

	if s.Duration > 0 {
		b.WriteString("        ")
		b.WriteString(valueStyle.Render(renderBar(s.SongTime/s.Duration, 40)))
		b.WriteString("\n")
	}

	b.WriteString(headerStyle.Render("Rate:   "))
	b.WriteString(valueStyle.Render(fmt.Sprintf("%.2fx", s.Rate)))
	b.WriteString(headerStyle.Render("   Volume: "))
	b.WriteString(valueStyle.Render(fmt.Sprintf("[%s] %d%%", renderBar(s.Volume, 10), int(math.Round(s.Volume*100)))))
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("Loop:   "))
	switch {
	case s.Loop != nil:
		b.WriteString(valueStyle.Render(fmt.Sprintf("%s - %s", formatTime(s.Loop.Start), formatTime(s.Loop.End))))
	case m.loopMark != nil:
		b.WriteString(valueStyle.Render(fmt.Sprintf("%s - ...", formatTime(*m.loopMark))))
	default:
		b.WriteString(valueStyle.Render("off"))
	}
	b.WriteString("\n\n")

	return b.String()
}

func (m Model) renderStems() string {
	if !m.status.Ready {
		return valueStyle.Render("No tracks loaded") + "\n"
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render("Stems:"))
	b.WriteString("\n")
	for i, id := range stem.All() {
		if !m.hasTrack(id) {
			continue
		}
		label := fmt.Sprintf("  %d %s", i+1, id)
		if m.isMuted(id) {
			b.WriteString(mutedStyle.Render(label))
		} else {
			b.WriteString(liveStyle.Render(label))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func renderBar(fraction float64, width int) string {
	fraction = math.Max(0, math.Min(1, fraction))
	filled := int(fraction * float64(width))
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

// formatTime renders seconds as mm:ss.t
func formatTime(seconds float64) string {
	if math.IsNaN(seconds) || seconds < 0 {
		seconds = 0
	}
	tenths := int(math.Round(seconds * 10))
	return fmt.Sprintf("%02d:%02d.%d", tenths/600, (tenths/10)%60, tenths%10)
}

func roundStep(v float64) float64 {
	return math.Round(v*100) / 100
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}
