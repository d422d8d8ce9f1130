// Package main provides the starweave CLI entry point.
// This file implements the interactive chat interface using bubbletea.
package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"starweave/internal/logging"
	"starweave/internal/system"
)

const chatHelp = `**Commands**

- ` + "`/cocreate <module> <text>`" + ` run a co-creation round
- ` + "`/toggle`" + ` switch co-creation mode
- ` + "`/prompt`" + ` show the proactive prompt
- ` + "`/route <text>`" + ` show the module for an input
- ` + "`/status`" + ` show agent state
- ` + "`/help`" + ` show this help
- ` + "`/exit`" + ` quit

Anything else is processed as input.`

// Brand palette shared with the status output
var (
	colorPrimary = lipgloss.Color("#8BC34A")
	colorAccent  = lipgloss.Color("#2196F3")
	colorMuted   = lipgloss.Color("#6b7785")
	colorError   = lipgloss.Color("#e53935")
)

type chatStyles struct {
	Header     lipgloss.Style
	User       lipgloss.Style
	Agent      lipgloss.Style
	Reflection lipgloss.Style
	System     lipgloss.Style
	Error      lipgloss.Style
	Footer     lipgloss.Style
}

func newChatStyles() chatStyles {
	return chatStyles{
		Header:     lipgloss.NewStyle().Bold(true).Foreground(colorPrimary).Padding(0, 1),
		User:       lipgloss.NewStyle().Bold(true).Foreground(colorAccent),
		Agent:      lipgloss.NewStyle().Foreground(colorPrimary),
		Reflection: lipgloss.NewStyle().Italic(true).Foreground(colorPrimary),
		System:     lipgloss.NewStyle().Foreground(colorMuted),
		Error:      lipgloss.NewStyle().Foreground(colorError),
		Footer:     lipgloss.NewStyle().Foreground(colorMuted).Padding(0, 1),
	}
}

// outcomeMsg carries the result of an asynchronous Process call.
type outcomeMsg struct {
	outcome system.Outcome
	err     error
}

// chatModel is the bubbletea model for the interactive chat
type chatModel struct {
	ctx  context.Context
	core *system.Core

	textinput textinput.Model
	viewport  viewport.Model
	styles    chatStyles
	renderer  *glamour.TermRenderer

	transcript []string
	busy       bool
	ready      bool
	width      int
	height     int
}

func newChatModel(ctx context.Context, core *system.Core) chatModel {
	ti := textinput.New()
	ti.Placeholder = "Say something, or /help"
	ti.Prompt = "> "
	ti.CharLimit = 2000
	ti.Focus()

	m := chatModel{
		ctx:       ctx,
		core:      core,
		textinput: ti,
		viewport:  viewport.New(80, 20),
		styles:    newChatStyles(),
		renderer:  newRenderer(80),
	}
	m.appendLine(m.styles.System.Render("Session " + core.SessionID() + ". Type /help for commands."))
	return m
}

func (m chatModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-4, 1)
		m.textinput.Width = max(msg.Width-4, 10)
		m.renderer = newRenderer(max(msg.Width-8, 20))
		m.ready = true
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			if m.busy {
				return m, nil
			}
			input := strings.TrimSpace(m.textinput.Value())
			m.textinput.SetValue("")
			if input == "" {
				return m, nil
			}
			return m.handleInput(input)
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case outcomeMsg:
		m.busy = false
		if msg.err != nil {
			m.appendLine(m.styles.Error.Render("error: " + msg.err.Error()))
			return m, nil
		}
		m.appendLine(m.styles.Agent.Render(strings.TrimRight(formatOutcome(msg.outcome), "\n")))
		return m, nil
	}

	var cmd tea.Cmd
	m.textinput, cmd = m.textinput.Update(msg)
	return m, cmd
}

// handleInput runs a slash command inline or starts processing plain text.
func (m chatModel) handleInput(input string) (tea.Model, tea.Cmd) {
	m.appendLine(m.styles.User.Render("you: ") + input)

	if !strings.HasPrefix(input, "/") {
		m.busy = true
		ctx, core := m.ctx, m.core
		return m, func() tea.Msg {
			out, err := core.Process(ctx, input)
			return outcomeMsg{outcome: out, err: err}
		}
	}

	fields := strings.Fields(input)
	switch fields[0] {
	case "/exit", "/quit":
		return m, tea.Quit
	case "/help":
		m.appendLine(m.markdown(chatHelp))
	case "/toggle":
		m.appendLine(m.styles.System.Render("Co-creation mode " + onOff(m.core.ToggleCoCreation())))
	case "/prompt":
		m.appendLine(m.styles.Reflection.Render(m.core.ProactivePrompt()))
	case "/status":
		var sb strings.Builder
		writeStatus(&sb, m.core.Status())
		m.appendLine(m.styles.System.Render(strings.TrimRight(sb.String(), "\n")))
	case "/route":
		if len(fields) < 2 {
			m.appendLine(m.styles.Error.Render("usage: /route <text>"))
			break
		}
		name, ok, err := m.core.Route(m.ctx, strings.Join(fields[1:], " "))
		switch {
		case err != nil:
			m.appendLine(m.styles.Error.Render("error: " + err.Error()))
		case !ok:
			m.appendLine(m.styles.System.Render("No module matched"))
		default:
			m.appendLine(m.styles.System.Render(fmt.Sprintf("Routed to module '%s'", name)))
		}
	case "/cocreate":
		if len(fields) < 3 {
			m.appendLine(m.styles.Error.Render("usage: /cocreate <module> <text>"))
			break
		}
		result, err := m.core.CoCreate(fields[1], strings.Join(fields[2:], " "))
		if err != nil {
			m.appendLine(m.styles.Error.Render("error: " + err.Error()))
			break
		}
		m.appendLine(m.styles.Agent.Render(strings.TrimRight(result.String(), "\n")))
	default:
		m.appendLine(m.styles.Error.Render("unknown command " + fields[0] + ", try /help"))
	}
	return m, nil
}

func newRenderer(width int) *glamour.TermRenderer {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil
	}
	return r
}

// markdown renders md for the terminal, falling back to the raw text.
func (m chatModel) markdown(md string) string {
	if m.renderer == nil {
		return md
	}
	out, err := m.renderer.Render(md)
	if err != nil {
		return md
	}
	return strings.Trim(out, "\n")
}

func (m *chatModel) appendLine(s string) {
	m.transcript = append(m.transcript, s)
	m.refresh()
}

func (m *chatModel) refresh() {
	m.viewport.SetContent(strings.Join(m.transcript, "\n"))
	m.viewport.GotoBottom()
}

func (m chatModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	status := "ready"
	if m.busy {
		status = "thinking..."
	}
	header := m.styles.Header.Render("starweave")
	footer := m.styles.Footer.Render(fmt.Sprintf("%s | esc to quit", status))
	return lipgloss.JoinVertical(lipgloss.Left, header, m.viewport.View(), m.textinput.View(), footer)
}

// runChat starts the interactive chat interface.
func runChat(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	core, err := bootCore(ctx)
	if err != nil {
		return err
	}
	defer closeCore(core)

	// Pick up logging changes while the session runs
	if ws, err := resolveWorkspace(); err == nil {
		if cw, err := logging.NewConfigWatcher(ws); err == nil {
			if err := cw.Start(ctx); err == nil {
				defer cw.Stop()
			} else {
				cw.Stop()
			}
		}
	}

	p := tea.NewProgram(newChatModel(ctx, core), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("chat: %w", err)
	}
	return nil
}
