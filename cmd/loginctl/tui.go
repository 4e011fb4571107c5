package main

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/foundrynet/telegram-login-service/loginclient"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	linkStyle   = lipgloss.NewStyle().Underline(true).Foreground(lipgloss.Color("45"))
	dimStyle    = lipgloss.NewStyle().Faint(true)
	goodStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	badStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	boxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 2)
)

var pollFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

type frameMsg struct{}

// loginModel renders the handshake while the orchestrator drives it in
// the background; orchestrator events arrive as messages via Send.
type loginModel struct {
	orchestrator *loginclient.Orchestrator
	deepLink     string
	state        loginclient.State
	grant        *loginclient.SessionGrant
	flowErr      *loginclient.FlowError
	frame        int
	started      time.Time
}

func newLoginModel(o *loginclient.Orchestrator, deepLink string) loginModel {
	return loginModel{
		orchestrator: o,
		deepLink:     deepLink,
		state:        loginclient.StatePolling,
		started:      time.Now(),
	}
}

func (m loginModel) Init() tea.Cmd { return frameTick() }

func frameTick() tea.Cmd {
	return tea.Tick(120*time.Millisecond, func(time.Time) tea.Msg { return frameMsg{} })
}

func (m loginModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case frameMsg:
		if m.terminal() {
			return m, nil
		}
		m.frame = (m.frame + 1) % len(pollFrames)
		return m, frameTick()
	case loginclient.Event:
		m.state = msg.State
		m.grant = msg.Grant
		m.flowErr = msg.Err
		if msg.DeepLink != "" {
			m.deepLink = msg.DeepLink
		}
		if m.terminal() {
			return m, tea.Quit
		}
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.orchestrator.Cancel()
			m.state = loginclient.StateCancelled
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m loginModel) terminal() bool {
	switch m.state {
	case loginclient.StateSessionEstablished, loginclient.StateError, loginclient.StateCancelled:
		return true
	}
	return false
}

func (m loginModel) View() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Telegram login") + "\n\n")
	b.WriteString("Open this link and press Start in the chat:\n")
	b.WriteString(boxStyle.Render(linkStyle.Render(m.deepLink)) + "\n\n")

	switch m.state {
	case loginclient.StateSessionEstablished:
		b.WriteString(goodStyle.Render("✓ Signed in"))
		if m.grant != nil {
			b.WriteString(fmt.Sprintf(" as %s", m.grant.User.Email))
		}
		b.WriteString("\n")
	case loginclient.StateError:
		b.WriteString(badStyle.Render("✗ Login failed") + "\n")
		if m.flowErr != nil {
			b.WriteString(dimStyle.Render("  "+loginclient.UserMessage(m.flowErr)) + "\n")
		}
	case loginclient.StateCancelled:
		b.WriteString(dimStyle.Render("Login cancelled.") + "\n")
	default:
		elapsed := time.Since(m.started).Round(time.Second)
		b.WriteString(fmt.Sprintf("%s waiting for confirmation… %s\n",
			pollFrames[m.frame], dimStyle.Render(elapsed.String())))
		b.WriteString(dimStyle.Render("press q to cancel") + "\n")
	}
	return b.String()
}
