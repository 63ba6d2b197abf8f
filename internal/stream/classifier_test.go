// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"errors"
	"io"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/yumchat/internal/metrics"
	"github.com/jeranaias/yumchat/internal/ollama"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// step is one result of a fake unit source.
type step struct {
	unit ollama.ResponseUnit
	err  error
}

type fakeUnits struct {
	steps []step
	reads int
}

func units(us ...ollama.ResponseUnit) *fakeUnits {
	f := &fakeUnits{}
	for _, u := range us {
		f.steps = append(f.steps, step{unit: u})
	}
	return f
}

func (f *fakeUnits) thenErr(err error) *fakeUnits {
	f.steps = append(f.steps, step{err: err})
	return f
}

func (f *fakeUnits) Next() (ollama.ResponseUnit, error) {
	f.reads++
	if len(f.steps) == 0 {
		return ollama.ResponseUnit{}, io.EOF
	}
	s := f.steps[0]
	f.steps = f.steps[1:]
	return s.unit, s.err
}

func drain(t *testing.T, c *Classifier) []Event {
	t.Helper()
	var out []Event
	for i := 0; i < 1000; i++ {
		ev, err := c.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, ev)
	}
	t.Fatal("classifier did not terminate")
	return nil
}

// =============================================================================
// CLASSIFIER TESTS
// =============================================================================

func TestClassifier_ReasoningThenAnswer(t *testing.T) {
	c := NewClassifier(units(
		ollama.ResponseUnit{Reasoning: "A"},
		ollama.ResponseUnit{Reasoning: "B"},
		ollama.ResponseUnit{Visible: "C", Final: true},
	))

	assert.Equal(t, []Event{
		ReasoningOpen{},
		ReasoningChunk{Text: "A"},
		ReasoningChunk{Text: "B"},
		ReasoningClose{},
		AnswerChunk{Text: "C"},
		StreamComplete{},
	}, drain(t, c))
}

func TestClassifier_Rules(t *testing.T) {
	tests := []struct {
		name  string
		units []ollama.ResponseUnit
		want  []Event
	}{
		{
			name:  "answer only",
			units: []ollama.ResponseUnit{{Visible: "Hi"}, {Visible: " there"}, {Final: true}},
			want:  []Event{AnswerChunk{Text: "Hi"}, AnswerChunk{Text: " there"}, StreamComplete{}},
		},
		{
			name:  "final closes open span",
			units: []ollama.ResponseUnit{{Reasoning: "x"}, {Final: true}},
			want:  []Event{ReasoningOpen{}, ReasoningChunk{Text: "x"}, ReasoningClose{}, StreamComplete{}},
		},
		{
			name:  "both fields in one unit",
			units: []ollama.ResponseUnit{{Reasoning: "r", Visible: "v"}, {Final: true}},
			want: []Event{
				ReasoningOpen{}, ReasoningChunk{Text: "r"}, ReasoningClose{},
				AnswerChunk{Text: "v"}, StreamComplete{},
			},
		},
		{
			name: "second span reopens",
			units: []ollama.ResponseUnit{
				{Reasoning: "a"}, {Visible: "b"}, {Reasoning: "c"}, {Visible: "d", Final: true},
			},
			want: []Event{
				ReasoningOpen{}, ReasoningChunk{Text: "a"}, ReasoningClose{}, AnswerChunk{Text: "b"},
				ReasoningOpen{}, ReasoningChunk{Text: "c"}, ReasoningClose{}, AnswerChunk{Text: "d"},
				StreamComplete{},
			},
		},
		{
			name:  "empty units produce nothing",
			units: []ollama.ResponseUnit{{}, {Reasoning: "x"}, {}, {Visible: "y"}, {}},
			want: []Event{
				ReasoningOpen{}, ReasoningChunk{Text: "x"}, ReasoningClose{},
				AnswerChunk{Text: "y"}, StreamComplete{},
			},
		},
		{
			name:  "premature end",
			units: []ollama.ResponseUnit{{Reasoning: "x"}},
			want:  []Event{ReasoningOpen{}, ReasoningChunk{Text: "x"}, ReasoningClose{}, StreamComplete{}},
		},
		{
			name:  "empty stream",
			units: nil,
			want:  []Event{StreamComplete{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := drain(t, NewClassifier(units(tt.units...)))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassifier_StopsReadingAfterFinal(t *testing.T) {
	src := units(
		ollama.ResponseUnit{Visible: "a", Final: true},
		ollama.ResponseUnit{Visible: "never"},
	)
	c := NewClassifier(src)

	assert.Equal(t, []Event{AnswerChunk{Text: "a"}, StreamComplete{}}, drain(t, c))
	assert.Equal(t, 1, src.reads)

	_, err := c.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestClassifier_TransportErrorClosesSpan(t *testing.T) {
	readErr := &ollama.TransportError{Err: errors.New("connection reset")}
	c := NewClassifier(units(ollama.ResponseUnit{Reasoning: "x"}).thenErr(readErr))

	got := drain(t, c)
	require.Len(t, got, 4)
	assert.Equal(t, ReasoningClose{}, got[2])

	failed, ok := got[3].(StreamFailed)
	require.True(t, ok)
	assert.Contains(t, failed.Reason, "connection reset")
	var transportErr *ollama.TransportError
	assert.ErrorAs(t, failed.Err, &transportErr)
}

func TestClassifier_MalformedAbortsByDefault(t *testing.T) {
	bad := &ollama.MalformedRecordError{Record: "garbage", Err: errors.New("bad")}
	src := units(ollama.ResponseUnit{Visible: "a"}).thenErr(bad)
	src.steps = append(src.steps, step{unit: ollama.ResponseUnit{Visible: "b", Final: true}})

	got := drain(t, NewClassifier(src))
	require.Len(t, got, 2)
	assert.Equal(t, AnswerChunk{Text: "a"}, got[0])
	assert.IsType(t, StreamFailed{}, got[1])
}

func TestClassifier_SkipMalformed(t *testing.T) {
	bad := &ollama.MalformedRecordError{Record: "garbage", Err: errors.New("bad")}
	src := units(ollama.ResponseUnit{Visible: "a"}).thenErr(bad)
	src.steps = append(src.steps, step{unit: ollama.ResponseUnit{Visible: "b", Final: true}})

	m := metrics.New()
	got := drain(t, NewClassifier(src, WithSkipMalformed(true), WithMetrics(m)))

	assert.Equal(t, []Event{AnswerChunk{Text: "a"}, AnswerChunk{Text: "b"}, StreamComplete{}}, got)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MalformedRecords))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RecordsDecoded))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.StreamEvents.WithLabelValues("answer_chunk")))
}

func TestClassifier_SkipMalformedKeepsServiceErrorsFatal(t *testing.T) {
	src := units().thenErr(&ollama.ServiceError{Message: "model crashed"})
	got := drain(t, NewClassifier(src, WithSkipMalformed(true)))

	require.Len(t, got, 1)
	failed := got[0].(StreamFailed)
	assert.Equal(t, "ollama: model crashed", failed.Reason)
}

func TestClassifier_InReasoningSpan(t *testing.T) {
	c := NewClassifier(units(ollama.ResponseUnit{Reasoning: "x"}, ollama.ResponseUnit{Visible: "y"}))

	_, _ = c.Next() // open
	assert.True(t, c.InReasoningSpan())
	_, _ = c.Next() // chunk
	_, _ = c.Next() // close
	assert.False(t, c.InReasoningSpan())
}

func TestClassifier_OverRealDecoder(t *testing.T) {
	body := "{\"thinking\":\"A\",\"done\":false}\n{\"thinking\":\"B\",\"done\":false}\n{\"response\":\"C\",\"done\":true}\n"
	dec := ollama.NewDecoder(ollama.NewReaderSource(&oneByteReader{data: []byte(body)}))

	assert.Equal(t, []Event{
		ReasoningOpen{}, ReasoningChunk{Text: "A"}, ReasoningChunk{Text: "B"},
		ReasoningClose{}, AnswerChunk{Text: "C"}, StreamComplete{},
	}, drain(t, NewClassifier(dec)))
}

// oneByteReader delivers its data one byte per Read.
type oneByteReader struct {
	data []byte
}

func (r *oneByteReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	p[0] = r.data[0]
	r.data = r.data[1:]
	return 1, nil
}

// =============================================================================
// EVENT TESTS
// =============================================================================

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(StreamComplete{}))
	assert.True(t, IsTerminal(StreamFailed{Reason: "x"}))
	assert.False(t, IsTerminal(ReasoningOpen{}))
	assert.False(t, IsTerminal(AnswerChunk{Text: "x"}))
}

func TestEventKinds(t *testing.T) {
	events := []Event{
		ReasoningOpen{}, ReasoningChunk{}, ReasoningClose{},
		AnswerChunk{}, StreamComplete{}, StreamFailed{},
	}
	seen := map[string]bool{}
	for _, ev := range events {
		assert.NotEmpty(t, ev.Kind())
		seen[ev.Kind()] = true
	}
	assert.Len(t, seen, len(events))
}
