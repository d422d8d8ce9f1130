package main

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starweave/internal/config"
	"starweave/internal/orchestrator"
	"starweave/internal/system"
)

func newTestChat(t *testing.T) chatModel {
	t.Helper()
	ctx := context.Background()
	core, err := system.New(ctx, config.DefaultConfig(), system.WithWorkspace(t.TempDir()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = core.Close(ctx) })

	m := newChatModel(ctx, core)
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return updated.(chatModel)
}

// submit types input and presses enter, running any returned command once.
func submit(t *testing.T, m chatModel, input string) (chatModel, tea.Msg) {
	t.Helper()
	m.textinput.SetValue(input)
	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = updated.(chatModel)
	if cmd == nil {
		return m, nil
	}
	msg := cmd()
	if out, ok := msg.(outcomeMsg); ok {
		updated, _ = m.Update(out)
		return updated.(chatModel), msg
	}
	return m, msg
}

func transcript(m chatModel) string {
	return strings.Join(m.transcript, "\n")
}

func TestChat_ProcessInput(t *testing.T) {
	m := newTestChat(t)

	m, msg := submit(t, m, "hello")
	require.IsType(t, outcomeMsg{}, msg)
	assert.False(t, m.busy)
	assert.Contains(t, transcript(m), "you: hello")
	assert.Contains(t, transcript(m), "Matched Curiosity")
	assert.Empty(t, m.textinput.Value())
}

func TestChat_Commands(t *testing.T) {
	m := newTestChat(t)

	m, _ = submit(t, m, "/cocreate Curiosity stars")
	assert.Contains(t, transcript(m), "Module 'Aesthetics' suggests: Aesthetics")

	m, _ = submit(t, m, "/prompt")
	assert.Contains(t, transcript(m), orchestrator.DefaultPrompts[1], "propensity rose to 0.4")

	m, _ = submit(t, m, "/toggle")
	assert.Contains(t, transcript(m), "Co-creation mode on")

	m, _ = submit(t, m, "/route hello")
	assert.Contains(t, transcript(m), "Routed to module 'Curiosity'")

	m, _ = submit(t, m, "/status")
	assert.Contains(t, transcript(m), "Modules:")

	m, _ = submit(t, m, "/dance")
	assert.Contains(t, transcript(m), "unknown command /dance")

	m, _ = submit(t, m, "/cocreate Humor jokes")
	assert.Contains(t, transcript(m), "not found")
}

func TestChat_Help(t *testing.T) {
	m := newTestChat(t)

	m, _ = submit(t, m, "/help")
	last := m.transcript[len(m.transcript)-1]
	assert.Contains(t, last, "/cocreate")
	assert.Contains(t, last, "/exit")
}

func TestChat_Exit(t *testing.T) {
	m := newTestChat(t)

	_, msg := submit(t, m, "/exit")
	assert.Equal(t, tea.Quit(), msg)
}

func TestChat_EmptyInputIgnored(t *testing.T) {
	m := newTestChat(t)
	before := len(m.transcript)

	m, msg := submit(t, m, "   ")
	assert.Nil(t, msg)
	assert.Len(t, m.transcript, before)
}

func TestChat_View(t *testing.T) {
	m := newTestChat(t)
	view := m.View()
	assert.Contains(t, view, "starweave")
	assert.Contains(t, view, "esc to quit")
}
