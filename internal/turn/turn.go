// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package turn folds stream events into the assistant message of one
// generation turn and coordinates turns for a conversation.
//
// A Turn is the only writer of its assistant message. It runs on the UI
// loop and never blocks: events are pulled from the producer's channel with
// Drain, once per tick.
package turn

import (
	"context"
	"strings"
	"time"

	"github.com/jeranaias/yumchat/internal/model"
	"github.com/jeranaias/yumchat/internal/stream"
	"github.com/jeranaias/yumchat/internal/tokens"
)

// Markers written into the message content.
const (
	ReasoningOpenMarker  = "<thinking>\n"
	ReasoningCloseMarker = "\n</thinking>\n\n"
	CancelMarker         = "\n\n[Generation cancelled]"
)

// =============================================================================
// PHASE
// =============================================================================

// Phase is the lifecycle position of a turn.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseStreaming
	PhaseFinished
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseStreaming:
		return "streaming"
	case PhaseFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Outcome is how a finished turn ended.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeComplete
	OutcomeFailed
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeComplete:
		return "complete"
	case OutcomeFailed:
		return "failed"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "none"
	}
}

// =============================================================================
// MESSAGE STATE
// =============================================================================

// MessageState is a snapshot of the assistant message being assembled.
type MessageState struct {
	Content    string
	TokenCount int
	// GenerationStartedAt is set from the first append until the timer
	// stops.
	GenerationStartedAt *time.Time
	TokensPerSecond     float64
	InReasoningSpan     bool
}

// =============================================================================
// TURN
// =============================================================================

// Option configures a Turn.
type Option func(*Turn)

// WithShowReasoning controls whether reasoning text is written into the
// message content.
func WithShowReasoning(show bool) Option {
	return func(t *Turn) { t.showReasoning = show }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Turn) { t.now = now }
}

// Turn assembles one assistant response.
//
// A Turn is not safe for concurrent use; all calls come from the consumer
// side.
type Turn struct {
	conv *model.Conversation
	msg  *model.Message

	phase   Phase
	outcome Outcome
	reason  string

	showReasoning bool
	inSpan        bool
	markerOpen    bool
	hidden        strings.Builder

	tokenCount int
	generated  int
	tps        float64
	startedAt  *time.Time
	firstAt    time.Time
	lastAt     time.Time

	cancel context.CancelFunc
	now    func() time.Time
}

// New creates an idle turn for conv.
func New(conv *model.Conversation, opts ...Option) *Turn {
	t := &Turn{conv: conv, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Begin appends the empty assistant placeholder and moves the turn to
// Streaming. cancel tears down the producer; it may be nil.
func (t *Turn) Begin(cancel context.CancelFunc) {
	if t.phase != PhaseIdle {
		return
	}
	t.msg = t.conv.AddAssistantMessage()
	t.tokenCount = tokens.CountMessageTokens("")
	t.msg.TokenCount = t.tokenCount
	t.cancel = cancel
	t.phase = PhaseStreaming
}

// Apply folds one event into the message. It returns false when the event
// was dropped because the turn is not streaming.
func (t *Turn) Apply(ev stream.Event) bool {
	if t.phase != PhaseStreaming {
		return false
	}

	switch e := ev.(type) {
	case stream.ReasoningOpen:
		t.inSpan = true

	case stream.ReasoningChunk:
		t.inSpan = true
		if t.showReasoning {
			if !t.markerOpen {
				t.msg.AppendToken(ReasoningOpenMarker)
				t.markerOpen = true
			}
			t.msg.AppendToken(e.Text)
		} else {
			t.hidden.WriteString(e.Text)
		}
		t.recount(true)

	case stream.ReasoningClose:
		t.inSpan = false
		if t.markerOpen {
			t.msg.AppendToken(ReasoningCloseMarker)
			t.markerOpen = false
			t.recount(true)
		}

	case stream.AnswerChunk:
		t.msg.AppendToken(e.Text)
		t.recount(true)

	case stream.StreamComplete:
		t.finish(OutcomeComplete)

	case stream.StreamFailed:
		t.fail(e.Reason)
	}

	return true
}

// Drain applies every event currently buffered in events without blocking
// and returns how many were applied. A channel closed before a terminal
// event fails the turn.
func (t *Turn) Drain(events <-chan stream.Event) int {
	applied := 0
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				if t.phase == PhaseStreaming {
					t.fail("stream closed before completion")
				}
				return applied
			}
			if t.Apply(ev) {
				applied++
			}
		default:
			return applied
		}
	}
}

// Cancel stops the turn, keeping partial content and appending
// CancelMarker. It returns false if the turn was not streaming.
func (t *Turn) Cancel() bool {
	if t.phase != PhaseStreaming {
		return false
	}

	if t.markerOpen {
		t.msg.AppendToken(ReasoningCloseMarker)
		t.markerOpen = false
	}
	t.msg.AppendToken(CancelMarker)
	t.inSpan = false
	t.recount(false)

	t.finish(OutcomeCancelled)
	if t.cancel != nil {
		t.cancel()
	}
	return true
}

// SetShowReasoning changes reasoning visibility for the rest of the turn.
// Text already hidden stays hidden.
func (t *Turn) SetShowReasoning(show bool) {
	t.showReasoning = show
}

// =============================================================================
// ACCESSORS
// =============================================================================

// Phase returns the current phase.
func (t *Turn) Phase() Phase { return t.phase }

// Outcome returns how the turn ended, or OutcomeNone while it runs.
func (t *Turn) Outcome() Outcome { return t.outcome }

// Reason returns the failure reason of a failed turn.
func (t *Turn) Reason() string { return t.reason }

// Finished reports whether the turn reached its terminal phase.
func (t *Turn) Finished() bool { return t.phase == PhaseFinished }

// Message returns the assistant message, or nil before Begin or after a
// failure removed the empty placeholder.
func (t *Turn) Message() *model.Message { return t.msg }

// Elapsed returns the time between the first and the last append.
func (t *Turn) Elapsed() time.Duration {
	if t.firstAt.IsZero() {
		return 0
	}
	return t.lastAt.Sub(t.firstAt)
}

// Snapshot returns the current message state.
func (t *Turn) Snapshot() MessageState {
	s := MessageState{
		TokenCount:      t.tokenCount,
		TokensPerSecond: t.tps,
		InReasoningSpan: t.inSpan,
	}
	if t.msg != nil {
		s.Content = t.msg.GetDisplayContent()
	}
	if t.startedAt != nil {
		started := *t.startedAt
		s.GenerationStartedAt = &started
	}
	return s
}

// =============================================================================
// INTERNALS
// =============================================================================

// recount refreshes the token count after content changed. With measure
// set the delta also feeds the throughput estimate.
func (t *Turn) recount(measure bool) {
	count := tokens.CountMessageTokens(t.msg.GetDisplayContent()) + tokens.EstimateTokens(t.hidden.String())
	delta := count - t.tokenCount
	if delta < 0 {
		delta = 0
	}
	t.tokenCount = count
	t.msg.TokenCount = count

	if !measure {
		return
	}

	now := t.now()
	if t.startedAt == nil {
		t.startedAt = &now
		t.firstAt = now
	}
	t.lastAt = now
	t.generated += delta

	if elapsed := now.Sub(*t.startedAt).Seconds(); elapsed > 0 {
		t.tps = float64(t.generated) / elapsed
	}
}

// fail finalizes the partial message and adds a separate error notice.
func (t *Turn) fail(reason string) {
	t.reason = reason
	if t.markerOpen {
		t.msg.AppendToken(ReasoningCloseMarker)
		t.markerOpen = false
	}
	empty := t.msg.IsEmpty() && t.hidden.Len() == 0
	t.finish(OutcomeFailed)

	if empty {
		t.conv.RemoveMessage(t.msg.ID)
		t.msg = nil
	}
	t.conv.AddErrorMessage(reason)
}

func (t *Turn) finish(outcome Outcome) {
	t.inSpan = false
	t.startedAt = nil
	t.msg.FinalizeStream(t.tokenCount, t.tps, t.Elapsed())
	t.outcome = outcome
	t.phase = PhaseFinished
}
