package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	transcription "github.com/koscakluka/scribe-core/core"
	"github.com/koscakluka/scribe-core/core/connection"
	"github.com/koscakluka/scribe-core/core/status"
	"github.com/koscakluka/scribe-core/internal/config"
)

type (
	wordMsg      transcription.Word
	utteranceMsg transcription.Utterance
	stateMsg     transcription.ConnectionState
	errorMsg     struct{ err *connection.ConnectionError }

	serverStatusMsg struct{ status *status.Status }
	inputDoneMsg    struct{}
	inputFailedMsg  struct{ err error }
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	connectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	pendingStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	downStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	partialStyle   = lipgloss.NewStyle().Faint(true).Italic(true)
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle      = lipgloss.NewStyle().Faint(true).Padding(0, 1)
)

type model struct {
	cfg        config.Config
	controller *transcription.Controller

	spinner  spinner.Model
	viewport viewport.Model
	ready    bool

	state      transcription.ConnectionState
	transcript []string
	partial    []string
	lastError  string
	serverNote string
	inputDone  bool
}

func newModel(cfg config.Config, controller *transcription.Controller) model {
	s := spinner.New()
	s.Spinner = spinner.Dot

	return model{
		cfg:        cfg,
		controller: controller,
		spinner:    s,
		state:      transcription.StateDisconnected,
	}
}

func (m model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			controller := m.controller
			m.lastError = ""
			return m, func() tea.Msg {
				if err := controller.RetryConnection(context.Background()); err != nil {
					return errorMsg{&connection.ConnectionError{
						Category: connection.CategoryConnection,
						Message:  err.Error(),
					}}
				}
				return nil
			}
		}

	case tea.WindowSizeMsg:
		headerHeight := 1
		footerHeight := 2
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-headerHeight-footerHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - headerHeight - footerHeight
		}
		m.refreshViewport()

	case wordMsg:
		m.partial = append(m.partial, msg.Text)
		m.refreshViewport()

	case utteranceMsg:
		m.transcript = append(m.transcript, transcription.Utterance(msg).Text())
		m.partial = nil
		m.refreshViewport()

	case stateMsg:
		m.state = transcription.ConnectionState(msg)
		if m.state == transcription.StateConnected {
			m.lastError = ""
		}

	case errorMsg:
		m.lastError = msg.err.Message
		if msg.err.Description != "" {
			m.lastError = fmt.Sprintf("%s (%s)", msg.err.Message, msg.err.Description)
		}

	case serverStatusMsg:
		modules := 0
		available := 0
		for _, module := range msg.status.Modules {
			modules++
			available += module.AvailableSlots
		}
		m.serverNote = fmt.Sprintf("server %s, %d modules, %d free slots",
			msg.status.Status, modules, available)

	case inputDoneMsg:
		m.inputDone = true

	case inputFailedMsg:
		m.lastError = msg.err.Error()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *model) refreshViewport() {
	if !m.ready {
		return
	}

	var lines []string
	for _, utterance := range m.transcript {
		lines = append(lines, wordwrap.String(utterance, m.viewport.Width))
	}
	if len(m.partial) > 0 {
		pending := strings.Join(m.partial, " ")
		lines = append(lines, partialStyle.Render(wordwrap.String(pending, m.viewport.Width)))
	}

	m.viewport.SetContent(strings.Join(lines, "\n"))
	m.viewport.GotoBottom()
}

func (m model) View() string {
	if !m.ready {
		return "starting..."
	}

	return fmt.Sprintf("%s\n%s\n%s", m.headerView(), m.viewport.View(), m.footerView())
}

func (m model) headerView() string {
	var stateView string
	switch m.state {
	case transcription.StateConnected:
		stateView = connectedStyle.Render("connected")
	case transcription.StateConnecting, transcription.StateHandshakePending:
		stateView = pendingStyle.Render(m.spinner.View() + string(m.state))
	default:
		stateView = downStyle.Render(string(m.state))
	}

	header := headerStyle.Render("scribe") + stateView
	if m.serverNote != "" {
		header += helpStyle.Render(" | " + m.serverNote)
	}
	if m.inputDone {
		header += helpStyle.Render(" | input finished")
	}
	return header
}

func (m model) footerView() string {
	help := helpStyle.Render("q quit | r reconnect")
	if m.lastError == "" {
		return help + "\n"
	}
	return help + "\n" + errorStyle.Render(wordwrap.String(m.lastError, m.viewport.Width))
}
