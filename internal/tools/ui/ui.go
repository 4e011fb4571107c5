// Package ui runs a long task behind a small terminal spinner, used by
// the operational subcommands when stdout is a TTY.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	detailStyle = lipgloss.NewStyle().Faint(true)
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

type tickMsg struct{}

type resultMsg struct {
	details []string
	err     error
}

type model struct {
	title   string
	frame   int
	details []string
	err     error
	done    bool
}

func (m model) Init() tea.Cmd { return tick() }

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(time.Time) tea.Msg { return tickMsg{} })
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		if m.done {
			return m, nil
		}
		m.frame = (m.frame + 1) % len(spinnerFrames)
		return m, tick()
	case resultMsg:
		m.done = true
		m.details = msg.details
		m.err = msg.err
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.done = true
			m.err = context.Canceled
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	if m.done {
		if m.err != nil {
			b.WriteString(failStyle.Render("✗ ") + titleStyle.Render(m.title) + "\n")
		} else {
			b.WriteString(okStyle.Render("✓ ") + titleStyle.Render(m.title) + "\n")
		}
	} else {
		b.WriteString(spinnerFrames[m.frame] + " " + titleStyle.Render(m.title) + "\n")
	}
	for _, d := range m.details {
		b.WriteString(detailStyle.Render("  "+d) + "\n")
	}
	if m.err != nil {
		b.WriteString(failStyle.Render("  "+m.err.Error()) + "\n")
	}
	return b.String()
}

// Run executes fn while animating a spinner titled title, then prints
// the collected detail lines. It returns fn's details and error.
func Run(title string, fn func(context.Context) ([]string, error)) ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	p := tea.NewProgram(model{title: title})
	var (
		details []string
		runErr  error
	)
	go func() {
		details, runErr = fn(ctx)
		p.Send(resultMsg{details: details, err: runErr})
	}()

	if _, err := p.Run(); err != nil {
		return details, fmt.Errorf("ui: %w", err)
	}
	return details, runErr
}
