// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package turn

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/yumchat/internal/model"
	"github.com/jeranaias/yumchat/internal/ollama"
	"github.com/jeranaias/yumchat/internal/stream"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// scriptedGenerator replays body, fails with err, or stalls until the
// request context is cancelled. A stalling generator delivers body first.
type scriptedGenerator struct {
	body  string
	err   error
	stall bool
	got   ollama.GenerateRequest
}

func (g *scriptedGenerator) GenerateStream(ctx context.Context, request ollama.GenerateRequest) (*ollama.Decoder, error) {
	g.got = request
	if g.err != nil {
		return nil, g.err
	}
	if g.stall {
		return ollama.NewDecoder(&ctxSource{ctx: ctx, head: []byte(g.body)}), nil
	}
	return ollama.NewStreamDecoder(io.NopCloser(strings.NewReader(g.body))), nil
}

type ctxSource struct {
	ctx  context.Context
	head []byte
}

func (s *ctxSource) NextChunk() ([]byte, error) {
	if len(s.head) > 0 {
		head := s.head
		s.head = nil
		return head, nil
	}
	<-s.ctx.Done()
	return nil, s.ctx.Err()
}

type finishRecord struct {
	calls    int
	outcomes []Outcome
}

func newSession(gen stream.Generator, show bool) (*Session, *finishRecord) {
	rec := &finishRecord{}
	conv := model.NewConversation("qwen3:4b", 4096)
	conv.SystemPrompt = "be brief"
	s := NewSession(conv, SessionConfig{
		Generator:     gen,
		ShowReasoning: show,
		OnFinish: func(_ *model.Conversation, t *Turn) {
			rec.calls++
			rec.outcomes = append(rec.outcomes, t.Outcome())
		},
	})
	return s, rec
}

// pollUntilIdle polls the session until its turn finishes.
func pollUntilIdle(t *testing.T, s *Session) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for s.Busy() {
		if time.Now().After(deadline) {
			t.Fatal("turn did not finish")
		}
		s.Poll()
		time.Sleep(time.Millisecond)
	}
}

const helloStream = "{\"thinking\":\"hmm\",\"done\":false}\n{\"response\":\"Hello\",\"done\":false}\n{\"response\":\" there\",\"done\":false}\n{\"done\":true}\n"

// =============================================================================
// SESSION TESTS
// =============================================================================

func TestSession_SubmitAndWait(t *testing.T) {
	gen := &scriptedGenerator{body: helloStream}
	s, rec := newSession(gen, false)

	require.NoError(t, s.Submit(context.Background(), "  hi  "))
	assert.True(t, s.Busy())

	var seen []stream.Event
	s.Wait(context.Background(), func(ev stream.Event) { seen = append(seen, ev) })

	assert.False(t, s.Busy())
	assert.Len(t, seen, 6)
	assert.Equal(t, OutcomeComplete, s.Current().Outcome())

	conv := s.Conversation()
	require.Equal(t, 2, conv.MessageCount())
	assert.Equal(t, "hi", conv.Messages[0].Content)
	assert.Equal(t, "Hello there", conv.Messages[1].Content)
	assert.False(t, conv.Messages[1].IsStreaming)

	assert.Equal(t, conv.Messages[0].TokenCount+conv.Messages[1].TokenCount, conv.TotalTokensUsed())

	assert.Equal(t, "qwen3:4b", gen.got.Model)
	assert.Equal(t, "hi", gen.got.Prompt)
	assert.Equal(t, "be brief", gen.got.System)

	assert.Equal(t, 1, rec.calls)
	assert.Equal(t, []Outcome{OutcomeComplete}, rec.outcomes)
}

func TestSession_PollIsNonBlocking(t *testing.T) {
	s, rec := newSession(&scriptedGenerator{body: helloStream}, true)

	require.NoError(t, s.Submit(context.Background(), "hi"))
	pollUntilIdle(t, s)

	assert.Equal(t, ReasoningOpenMarker+"hmm"+ReasoningCloseMarker+"Hello there",
		s.Conversation().GetLastMessage().Content)
	assert.Equal(t, 1, rec.calls)

	// Nothing left to apply.
	assert.Equal(t, 0, s.Poll())
	assert.Equal(t, 1, rec.calls)
}

func TestSession_EmptyPrompt(t *testing.T) {
	s, _ := newSession(&scriptedGenerator{body: helloStream}, false)

	assert.ErrorIs(t, s.Submit(context.Background(), "   \n"), ErrEmptyPrompt)
	assert.True(t, s.Conversation().IsEmpty())
	assert.False(t, s.Busy())
}

func TestSession_PromptIsNormalized(t *testing.T) {
	gen := &scriptedGenerator{body: "{\"done\":true}\n"}
	s, _ := newSession(gen, false)

	require.NoError(t, s.Submit(context.Background(), "cafe\u0301"))
	s.Wait(context.Background(), nil)

	assert.Equal(t, "café", gen.got.Prompt)
	assert.Equal(t, "café", s.Conversation().Messages[0].Content)
}

func TestSession_SubmitWhileBusy(t *testing.T) {
	s, rec := newSession(&scriptedGenerator{stall: true}, false)

	require.NoError(t, s.Submit(context.Background(), "first"))
	assert.ErrorIs(t, s.Submit(context.Background(), "second"), ErrTurnInProgress)
	assert.Equal(t, 2, s.Conversation().MessageCount())

	require.True(t, s.Cancel())
	assert.False(t, s.Busy())
	assert.Equal(t, []Outcome{OutcomeCancelled}, rec.outcomes)

	last := s.Conversation().GetLastMessage()
	assert.Equal(t, model.RoleAssistant, last.Role)
	assert.Equal(t, CancelMarker, last.Content)

	// A second cancel and later polls change nothing.
	assert.False(t, s.Cancel())
	assert.Equal(t, 0, s.Poll())
	assert.Equal(t, 1, rec.calls)
}

func TestSession_WaitCancelledByContext(t *testing.T) {
	s, rec := newSession(&scriptedGenerator{stall: true}, false)
	require.NoError(t, s.Submit(context.Background(), "hi"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Wait(ctx, nil)

	assert.False(t, s.Busy())
	assert.Equal(t, OutcomeCancelled, s.Current().Outcome())
	assert.Equal(t, 1, rec.calls)
}

// waitForClose blocks until the producer behind s has closed its channel.
func waitForClose(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.turnCtx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("turn context not cancelled")
	}
	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-s.events:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("producer did not close its channel")
		}
	}
}

func TestSession_SharedContextCancelAfterClose(t *testing.T) {
	tests := []struct {
		name   string
		finish func(s *Session, ctx context.Context)
	}{
		{"wait", func(s *Session, ctx context.Context) { s.Wait(ctx, nil) }},
		{"poll", func(s *Session, _ context.Context) { s.Poll() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < 200; i++ {
				s, rec := newSession(&scriptedGenerator{stall: true}, false)
				ctx, cancel := context.WithCancel(context.Background())
				require.NoError(t, s.Submit(ctx, "hi"))

				cancel()
				waitForClose(t, s)
				tt.finish(s, ctx)

				require.False(t, s.Busy())
				require.Equal(t, OutcomeCancelled, s.Current().Outcome(), "iteration %d", i)
				require.Equal(t, []Outcome{OutcomeCancelled}, rec.outcomes)

				conv := s.Conversation()
				require.Equal(t, 2, conv.MessageCount(), "no error notice expected")
				require.True(t, strings.HasSuffix(conv.GetLastMessage().Content, CancelMarker))
			}
		})
	}
}

func TestSession_SharedContextCancelRace(t *testing.T) {
	for i := 0; i < 200; i++ {
		s, rec := newSession(&scriptedGenerator{stall: true}, false)
		ctx, cancel := context.WithCancel(context.Background())
		require.NoError(t, s.Submit(ctx, "hi"))

		cancel()
		if i%2 == 1 {
			time.Sleep(100 * time.Microsecond)
		}
		s.Wait(ctx, nil)

		require.Equal(t, OutcomeCancelled, s.Current().Outcome(), "iteration %d", i)
		require.Equal(t, 1, rec.calls)
		require.Equal(t, 2, s.Conversation().MessageCount())
		require.True(t, strings.HasSuffix(s.Conversation().GetLastMessage().Content, CancelMarker))
	}
}

func TestSession_CancelKeepsBufferedContent(t *testing.T) {
	s, _ := newSession(&scriptedGenerator{
		stall: true,
		body:  "{\"response\":\"partial\",\"done\":false}\n",
	}, false)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Submit(ctx, "hi"))

	var seen []stream.Event
	s.Wait(ctx, func(ev stream.Event) {
		seen = append(seen, ev)
		cancel()
	})

	require.Len(t, seen, 1)
	assert.Equal(t, OutcomeCancelled, s.Current().Outcome())
	assert.Equal(t, "partial"+CancelMarker, s.Conversation().GetLastMessage().Content)
}

func TestSession_SetupFailure(t *testing.T) {
	s, rec := newSession(&scriptedGenerator{err: ollama.ErrNotRunning}, false)

	require.NoError(t, s.Submit(context.Background(), "hi"))
	s.Wait(context.Background(), nil)

	conv := s.Conversation()
	require.Equal(t, 2, conv.MessageCount())
	assert.Equal(t, "Error: Ollama is not running", conv.Messages[1].Content)
	assert.Equal(t, []Outcome{OutcomeFailed}, rec.outcomes)
	assert.Nil(t, s.Current().Message())

	// The user message still counts toward the total.
	assert.Equal(t, conv.Messages[0].TokenCount, conv.TotalTokensUsed())
}

func TestSession_MidStreamFailure(t *testing.T) {
	s, _ := newSession(&scriptedGenerator{body: "{\"response\":\"par\",\"done\":false}\n{\"error\":\"model crashed\"}\n"}, false)

	require.NoError(t, s.Submit(context.Background(), "hi"))
	s.Wait(context.Background(), nil)

	conv := s.Conversation()
	require.Equal(t, 3, conv.MessageCount())
	assert.Equal(t, "par", conv.Messages[1].Content)
	assert.Equal(t, "Error: ollama: model crashed", conv.Messages[2].Content)
	assert.Equal(t, OutcomeFailed, s.Current().Outcome())
}

func TestSession_ToggleReasoning(t *testing.T) {
	s, _ := newSession(&scriptedGenerator{body: helloStream}, false)

	assert.False(t, s.ShowReasoning())
	assert.True(t, s.ToggleReasoning())
	assert.True(t, s.ShowReasoning())

	require.NoError(t, s.Submit(context.Background(), "hi"))
	s.Wait(context.Background(), nil)
	assert.True(t, strings.HasPrefix(s.Conversation().GetLastMessage().Content, ReasoningOpenMarker))

	assert.False(t, s.ToggleReasoning())
}

func TestSession_SetModel(t *testing.T) {
	gen := &scriptedGenerator{body: "{\"done\":true}\n"}
	s, _ := newSession(gen, false)

	s.SetModel("mistral", 8192)
	s.SetModel("mistral", 0)
	assert.Equal(t, 8192, s.Conversation().ContextWindow)

	require.NoError(t, s.Submit(context.Background(), "hi"))
	s.Wait(context.Background(), nil)
	assert.Equal(t, "mistral", gen.got.Model)
}
