// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream turns decoded response units into an ordered sequence of
// events that bracket reasoning text in explicit open and close markers.
//
// The classifier is the only place span boundaries are decided. Consumers
// never inspect raw text to find where thinking starts or ends.
//
// Ordering guarantees:
//   - ReasoningOpen precedes every ReasoningChunk of its span.
//   - ReasoningClose follows the last ReasoningChunk of a span and precedes
//     any later AnswerChunk.
//   - Exactly one StreamComplete or StreamFailed ends the sequence.
package stream

// Event is a sealed interface over the classifier output. The unexported
// marker method prevents implementations outside this package.
type Event interface {
	event()

	// Kind is a stable lowercase name, used for logs and metric labels.
	Kind() string
}

// ReasoningOpen starts a reasoning span.
type ReasoningOpen struct{}

// ReasoningChunk carries reasoning text inside an open span.
type ReasoningChunk struct {
	Text string
}

// ReasoningClose ends the current reasoning span.
type ReasoningClose struct{}

// AnswerChunk carries visible answer text.
type AnswerChunk struct {
	Text string
}

// StreamComplete ends the sequence successfully.
type StreamComplete struct{}

// StreamFailed ends the sequence with an error. Reason is suitable for
// display; Err keeps the underlying error for inspection with errors.As.
type StreamFailed struct {
	Reason string
	Err    error
}

func (ReasoningOpen) event()  {}
func (ReasoningChunk) event() {}
func (ReasoningClose) event() {}
func (AnswerChunk) event()    {}
func (StreamComplete) event() {}
func (StreamFailed) event()   {}

func (ReasoningOpen) Kind() string  { return "reasoning_open" }
func (ReasoningChunk) Kind() string { return "reasoning_chunk" }
func (ReasoningClose) Kind() string { return "reasoning_close" }
func (AnswerChunk) Kind() string    { return "answer_chunk" }
func (StreamComplete) Kind() string { return "stream_complete" }
func (StreamFailed) Kind() string   { return "stream_failed" }

// IsTerminal reports whether ev ends an event sequence.
func IsTerminal(ev Event) bool {
	switch ev.(type) {
	case StreamComplete, StreamFailed:
		return true
	}
	return false
}

// Failed builds a StreamFailed from err.
func Failed(err error) StreamFailed {
	return StreamFailed{Reason: err.Error(), Err: err}
}

// Interface compliance checks.
var (
	_ Event = ReasoningOpen{}
	_ Event = ReasoningChunk{}
	_ Event = ReasoningClose{}
	_ Event = AnswerChunk{}
	_ Event = StreamComplete{}
	_ Event = StreamFailed{}
)
