// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package turn

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/text/unicode/norm"

	"github.com/jeranaias/yumchat/internal/metrics"
	"github.com/jeranaias/yumchat/internal/model"
	"github.com/jeranaias/yumchat/internal/ollama"
	"github.com/jeranaias/yumchat/internal/stream"
)

// Errors returned by Submit.
var (
	ErrTurnInProgress = errors.New("a response is still being generated")
	ErrEmptyPrompt    = errors.New("prompt is empty")
)

// FinishFunc is called once per finished turn, after the conversation's
// running total has been updated.
type FinishFunc func(conv *model.Conversation, t *Turn)

// SessionConfig holds the collaborators of a Session.
type SessionConfig struct {
	// Generator opens the stream for each turn.
	Generator stream.Generator

	// ShowReasoning is the initial reasoning visibility.
	ShowReasoning bool

	// StreamOptions are passed to stream.Start for every turn.
	StreamOptions []stream.Option

	// OnFinish runs after every turn, typically to persist the conversation.
	OnFinish FinishFunc

	Logger  *log.Logger
	Metrics *metrics.Metrics
}

// Session runs turns against one conversation, one at a time.
//
// All methods must be called from the same goroutine (the UI loop).
type Session struct {
	cfg  SessionConfig
	conv *model.Conversation

	current     *Turn
	events      <-chan stream.Event
	turnCtx     context.Context
	cancel      context.CancelFunc
	userMsg     *model.Message
	submittedAt time.Time
}

// NewSession creates a session for conv.
func NewSession(conv *model.Conversation, cfg SessionConfig) *Session {
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard)
	}
	return &Session{cfg: cfg, conv: conv}
}

// Submit adds the user message and starts a new turn. It fails with
// ErrTurnInProgress while a previous turn is still streaming.
func (s *Session) Submit(ctx context.Context, prompt string) error {
	if s.Busy() {
		return ErrTurnInProgress
	}

	prompt = norm.NFC.String(strings.TrimSpace(prompt))
	if prompt == "" {
		return ErrEmptyPrompt
	}

	s.userMsg = s.conv.AddUserMessage(prompt)

	turnCtx, cancel := context.WithCancel(ctx)
	t := New(s.conv, WithShowReasoning(s.cfg.ShowReasoning))
	t.Begin(cancel)

	s.current = t
	s.turnCtx = turnCtx
	s.cancel = cancel
	s.submittedAt = time.Now()

	opts := append([]stream.Option{
		stream.WithLogger(s.cfg.Logger),
		stream.WithMetrics(s.cfg.Metrics),
	}, s.cfg.StreamOptions...)

	s.events = stream.Start(turnCtx, s.cfg.Generator, ollama.GenerateRequest{
		Model:  s.conv.Model,
		Prompt: prompt,
		System: s.conv.SystemPrompt,
	}, opts...)

	s.cfg.Logger.Debug("turn started", "conversation", s.conv.ID, "model", s.conv.Model)
	return nil
}

// Poll drains pending events into the current turn. It never blocks and
// returns the number of events applied. A turn whose context was cancelled
// ends as cancelled, even if the producer already closed its channel.
func (s *Session) Poll() int {
	if s.current == nil || s.current.Finished() {
		return 0
	}
	if s.turnCtx.Err() != nil {
		s.Cancel()
		return 0
	}
	n := s.current.Drain(s.events)
	if s.current.Finished() {
		s.complete()
	}
	return n
}

// Wait applies events as they arrive until the current turn finishes or
// ctx is done, in which case the turn is cancelled. onEvent, if set, sees
// every applied event.
func (s *Session) Wait(ctx context.Context, onEvent func(stream.Event)) {
	if s.current == nil || s.current.Finished() {
		return
	}

	for !s.current.Finished() {
		// Cancellation wins over events that are already buffered.
		if ctx.Err() != nil || s.turnCtx.Err() != nil {
			s.Cancel()
			return
		}

		select {
		case <-ctx.Done():
			s.Cancel()
			return

		case ev, ok := <-s.events:
			if !ok {
				// The producer closes without a terminal event when its
				// context is done.
				if ctx.Err() != nil || s.turnCtx.Err() != nil {
					s.Cancel()
					return
				}
				// Drain fails the turn on a closed channel.
				s.current.Drain(s.events)
				break
			}
			if s.current.Apply(ev) && onEvent != nil {
				onEvent(ev)
			}
		}
	}
	s.complete()
}

// Cancel cancels the current turn. It is a no-op when nothing is
// streaming.
func (s *Session) Cancel() bool {
	if s.current == nil || !s.current.Cancel() {
		return false
	}
	s.complete()
	return true
}

// ToggleReasoning flips reasoning visibility for this and later turns and
// returns the new setting.
func (s *Session) ToggleReasoning() bool {
	s.cfg.ShowReasoning = !s.cfg.ShowReasoning
	if s.current != nil {
		s.current.SetShowReasoning(s.cfg.ShowReasoning)
	}
	return s.cfg.ShowReasoning
}

// ShowReasoning reports the current reasoning visibility.
func (s *Session) ShowReasoning() bool {
	return s.cfg.ShowReasoning
}

// Busy reports whether a turn is streaming.
func (s *Session) Busy() bool {
	return s.current != nil && !s.current.Finished()
}

// Current returns the latest turn, finished or not.
func (s *Session) Current() *Turn {
	return s.current
}

// Conversation returns the conversation the session appends to.
func (s *Session) Conversation() *model.Conversation {
	return s.conv
}

// SetModel changes the model used by later turns.
func (s *Session) SetModel(name string, contextWindow int) {
	s.conv.Model = name
	if contextWindow > 0 {
		s.conv.ContextWindow = contextWindow
	}
}

// complete runs the once-per-turn bookkeeping after a turn finished.
func (s *Session) complete() {
	t := s.current
	if s.events == nil {
		return
	}
	s.events = nil
	s.cancel()

	used := 0
	if msg := t.Message(); msg != nil {
		used += msg.TokenCount
	}
	if s.userMsg != nil {
		used += s.userMsg.TokenCount
	}
	s.conv.UpdateTokens(used)

	snap := t.Snapshot()
	s.cfg.Metrics.ObserveTurn(t.Outcome().String(), snap.TokensPerSecond, time.Since(s.submittedAt))
	s.cfg.Logger.Info("turn finished",
		"conversation", s.conv.ID,
		"outcome", t.Outcome(),
		"tokens", snap.TokenCount,
		"tps", snap.TokensPerSecond,
		"reason", t.Reason(),
	)

	if s.cfg.OnFinish != nil {
		s.cfg.OnFinish(s.conv, t)
	}
}
