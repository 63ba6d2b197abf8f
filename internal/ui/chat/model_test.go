// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/yumchat/internal/config"
	"github.com/jeranaias/yumchat/internal/model"
	"github.com/jeranaias/yumchat/internal/ollama"
	"github.com/jeranaias/yumchat/internal/turn"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// fakeGenerator replays body, or blocks until the request is cancelled.
type fakeGenerator struct {
	body  string
	stall bool
}

func (g fakeGenerator) GenerateStream(ctx context.Context, _ ollama.GenerateRequest) (*ollama.Decoder, error) {
	if g.stall {
		return ollama.NewDecoder(blockingSource{ctx}), nil
	}
	return ollama.NewStreamDecoder(io.NopCloser(strings.NewReader(g.body))), nil
}

type blockingSource struct{ ctx context.Context }

func (s blockingSource) NextChunk() ([]byte, error) {
	<-s.ctx.Done()
	return nil, s.ctx.Err()
}

func newTestModel(gen fakeGenerator, opts Options) Model {
	conv := model.NewConversation("qwen3:4b", 4096)
	opts.Session = turn.NewSession(conv, turn.SessionConfig{Generator: gen})
	m := New(context.Background(), opts)
	return update(m, tea.WindowSizeMsg{Width: 80, Height: 24})
}

func update(m Model, msg tea.Msg) Model {
	next, _ := m.Update(msg)
	return next.(Model)
}

func press(m Model, t tea.KeyType) (Model, tea.Cmd) {
	next, cmd := m.Update(tea.KeyMsg{Type: t})
	return next.(Model), cmd
}

func submit(t *testing.T, m Model, text string) Model {
	t.Helper()
	m.input.SetValue(text)
	m, cmd := press(m, tea.KeyEnter)
	require.NotNil(t, cmd)
	return m
}

// tickUntilIdle feeds ticks until the turn finishes.
func tickUntilIdle(t *testing.T, m Model) Model {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for m.session.Busy() {
		if time.Now().After(deadline) {
			t.Fatal("turn did not finish")
		}
		m = update(m, tickMsg(time.Now()))
		time.Sleep(time.Millisecond)
	}
	return m
}

const replyStream = "{\"thinking\":\"hmm\",\"done\":false}\n{\"response\":\"Hello\",\"done\":false}\n{\"response\":\" there\",\"done\":false}\n{\"done\":true}\n"

// =============================================================================
// MODEL TESTS
// =============================================================================

func TestModel_ViewBeforeResize(t *testing.T) {
	m := New(context.Background(), Options{
		Session: turn.NewSession(model.NewConversation("m", 0), turn.SessionConfig{}),
	})
	assert.Equal(t, "Initializing...", m.View())
}

func TestModel_EmptyConversation(t *testing.T) {
	m := newTestModel(fakeGenerator{}, Options{})
	view := m.View()
	assert.Contains(t, view, "Chatting with qwen3:4b")
	assert.Contains(t, view, "ready")
}

func TestModel_SubmitStreamsResponse(t *testing.T) {
	m := newTestModel(fakeGenerator{body: replyStream}, Options{})

	m = submit(t, m, "hi")
	assert.True(t, m.session.Busy())
	assert.True(t, m.ticking)
	assert.Empty(t, m.input.Value())

	m = tickUntilIdle(t, m)
	assert.False(t, m.ticking)

	view := m.View()
	assert.Contains(t, view, "You")
	assert.Contains(t, view, "Hello there")
	assert.NotContains(t, view, "hmm")
	assert.Contains(t, view, "ctx ")
}

func TestModel_EmptyInputIsIgnored(t *testing.T) {
	m := newTestModel(fakeGenerator{body: replyStream}, Options{})

	m.input.SetValue("   ")
	m, cmd := press(m, tea.KeyEnter)
	assert.Nil(t, cmd)
	assert.False(t, m.session.Busy())
	assert.True(t, m.session.Conversation().IsEmpty())
}

func TestModel_EnterIgnoredWhileBusy(t *testing.T) {
	m := newTestModel(fakeGenerator{stall: true}, Options{})
	m = submit(t, m, "first")

	m.input.SetValue("second")
	m, _ = press(m, tea.KeyEnter)

	assert.Equal(t, 2, m.session.Conversation().MessageCount())
	assert.Equal(t, "second", m.input.Value())
	assert.Contains(t, m.notice, "Still generating")

	m, _ = press(m, tea.KeyEsc)
	assert.False(t, m.session.Busy())
}

func TestModel_EscCancels(t *testing.T) {
	m := newTestModel(fakeGenerator{stall: true}, Options{})
	m = submit(t, m, "hi")

	m, _ = press(m, tea.KeyEsc)
	assert.False(t, m.session.Busy())
	assert.Equal(t, "Generation cancelled", m.notice)
	assert.Equal(t, turn.CancelMarker, m.session.Conversation().GetLastMessage().Content)
	assert.Contains(t, m.View(), "[Generation cancelled]")

	// Esc with nothing streaming changes nothing.
	m.notice = ""
	m, _ = press(m, tea.KeyEsc)
	assert.Empty(t, m.notice)
}

func TestModel_ToggleThinking(t *testing.T) {
	m := newTestModel(fakeGenerator{body: replyStream}, Options{})

	m, _ = press(m, tea.KeyCtrlT)
	assert.True(t, m.session.ShowReasoning())
	assert.Equal(t, "Thinking shown", m.notice)

	m = submit(t, m, "hi")
	m = tickUntilIdle(t, m)
	view := m.View()
	assert.Contains(t, view, "hmm")
	assert.NotContains(t, view, "<thinking>")

	m, _ = press(m, tea.KeyCtrlT)
	assert.False(t, m.session.ShowReasoning())
	assert.Equal(t, "Thinking hidden", m.notice)
}

func TestModel_HelpToggle(t *testing.T) {
	m := newTestModel(fakeGenerator{}, Options{})
	before := m.viewport.Height

	m, _ = press(m, tea.KeyCtrlH)
	assert.True(t, m.showHelp)
	assert.Contains(t, m.View(), "go to top")
	assert.Less(t, m.viewport.Height, before)

	m, _ = press(m, tea.KeyCtrlH)
	assert.False(t, m.showHelp)
	assert.Equal(t, before, m.viewport.Height)
}

func TestModel_Quit(t *testing.T) {
	m := newTestModel(fakeGenerator{stall: true}, Options{})
	m = submit(t, m, "hi")

	m, cmd := press(m, tea.KeyCtrlC)
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
	assert.False(t, m.session.Busy())
}

func TestModel_OllamaOffline(t *testing.T) {
	m := newTestModel(fakeGenerator{}, Options{})
	m = update(m, OllamaStatusMsg{Error: ollama.ErrNotRunning})
	assert.Contains(t, m.View(), "ollama offline")
}

func TestModel_ConfigReload(t *testing.T) {
	updates := make(chan ConfigReloadedMsg, 1)
	m := newTestModel(fakeGenerator{}, Options{ConfigUpdates: updates})

	cfg := config.Default()
	cfg.ShowThinking = true
	cfg.Theme.UserMessageColor = "magenta"

	next, cmd := m.Update(ConfigReloadedMsg{Config: cfg})
	m = next.(Model)
	assert.True(t, m.session.ShowReasoning())
	assert.Equal(t, "Config reloaded", m.notice)
	require.NotNil(t, cmd)

	// The returned command waits for the next reload.
	updates <- ConfigReloadedMsg{Err: errors.New("bad toml")}
	m = update(m, cmd())
	assert.Equal(t, "Config not reloaded: bad toml", m.notice)
	assert.True(t, m.session.ShowReasoning())
}

func TestCheckOllamaCmd(t *testing.T) {
	assert.Nil(t, CheckOllamaCmd(nil))

	msg := CheckOllamaCmd(stubChecker{err: ollama.ErrNotRunning})()
	assert.Equal(t, OllamaStatusMsg{Running: false, Error: ollama.ErrNotRunning}, msg)

	msg = CheckOllamaCmd(stubChecker{})()
	assert.Equal(t, OllamaStatusMsg{Running: true}, msg)
}

type stubChecker struct{ err error }

func (s stubChecker) CheckRunning(context.Context) error { return s.err }

// =============================================================================
// RENDERING TESTS
// =============================================================================

func TestRenderContent(t *testing.T) {
	m := newTestModel(fakeGenerator{}, Options{})

	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{"answer only", "plain answer", []string{"plain answer"}},
		{"closed span", turn.ReasoningOpenMarker + "hmm" + turn.ReasoningCloseMarker + "answer", []string{"hmm", "answer"}},
		{"open span", "lead " + turn.ReasoningOpenMarker + "still thinking", []string{"lead", "still thinking"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := m.renderContent(tt.content, 60)
			for _, w := range tt.want {
				assert.Contains(t, out, w)
			}
			assert.NotContains(t, out, "<thinking>")
			assert.NotContains(t, out, "</thinking>")
		})
	}
}

func TestRenderMessage_Error(t *testing.T) {
	m := newTestModel(fakeGenerator{}, Options{})
	conv := model.NewConversation("m", 0)
	notice := conv.AddErrorMessage("Ollama is not running")

	out := m.renderMessage(notice, false, 60)
	assert.Contains(t, out, "Assistant")
	assert.Contains(t, out, "Error: Ollama is not running")
}

func TestKeyMap_Help(t *testing.T) {
	k := DefaultKeyMap()
	assert.Len(t, k.ShortHelp(), 5)

	total := 0
	for _, col := range k.FullHelp() {
		total += len(col)
	}
	assert.Equal(t, 9, total)
}
