// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"errors"
	"io"

	"github.com/charmbracelet/log"

	"github.com/jeranaias/yumchat/internal/metrics"
	"github.com/jeranaias/yumchat/internal/ollama"
)

// UnitSource yields response units until io.EOF. *ollama.Decoder implements
// it.
type UnitSource interface {
	Next() (ollama.ResponseUnit, error)
}

// Option configures a Classifier or a producer.
type Option func(*options)

type options struct {
	skipMalformed bool
	bufferSize    int
	logger        *log.Logger
	metrics       *metrics.Metrics
}

func defaultOptions() options {
	return options{
		bufferSize: DefaultBufferSize,
		logger:     log.New(io.Discard),
	}
}

// WithSkipMalformed makes the classifier drop malformed records and keep
// reading instead of failing the stream. Transport and service errors are
// always fatal.
func WithSkipMalformed(skip bool) Option {
	return func(o *options) { o.skipMalformed = skip }
}

// WithLogger sets the logger for skipped records and stream diagnostics.
func WithLogger(logger *log.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics records decoded units and emitted events on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithBufferSize sets the capacity of the channel returned by Start.
func WithBufferSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.bufferSize = n
		}
	}
}

// =============================================================================
// CLASSIFIER
// =============================================================================

// Classifier converts response units into events.
//
// A Classifier is not safe for concurrent use.
type Classifier struct {
	src    UnitSource
	opts   options
	inSpan bool
	queue  []Event
	done   bool
}

// NewClassifier creates a classifier reading units from src.
func NewClassifier(src UnitSource, opts ...Option) *Classifier {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Classifier{src: src, opts: o}
}

// Next returns the next event. After the terminal event it returns io.EOF.
func (c *Classifier) Next() (Event, error) {
	for len(c.queue) == 0 {
		if c.done {
			return nil, io.EOF
		}
		c.pull()
	}

	ev := c.queue[0]
	c.queue[0] = nil
	c.queue = c.queue[1:]
	c.opts.metrics.ObserveEvent(ev.Kind())
	return ev, nil
}

// InReasoningSpan reports whether a span is currently open.
func (c *Classifier) InReasoningSpan() bool {
	return c.inSpan
}

// pull reads one unit (or error) from the source and queues its events.
func (c *Classifier) pull() {
	unit, err := c.src.Next()
	switch {
	case err == nil:
		c.opts.metrics.ObserveRecord()
		c.classify(unit)

	case errors.Is(err, io.EOF):
		// Source ended without a final record.
		c.opts.logger.Debug("stream ended without final record")
		c.terminate(StreamComplete{})

	case ollama.IsMalformedRecord(err):
		c.opts.metrics.ObserveMalformed()
		if c.opts.skipMalformed {
			c.opts.logger.Warn("skipping malformed record", "err", err)
			return
		}
		c.terminate(Failed(err))

	default:
		c.terminate(Failed(err))
	}
}

func (c *Classifier) classify(unit ollama.ResponseUnit) {
	if unit.Reasoning != "" {
		if !c.inSpan {
			c.inSpan = true
			c.queue = append(c.queue, ReasoningOpen{})
		}
		c.queue = append(c.queue, ReasoningChunk{Text: unit.Reasoning})
	}

	if unit.Visible != "" {
		c.closeSpan()
		c.queue = append(c.queue, AnswerChunk{Text: unit.Visible})
	}

	if unit.Final {
		c.terminate(StreamComplete{})
	}
}

// terminate closes an open span and queues the final event.
func (c *Classifier) terminate(ev Event) {
	c.closeSpan()
	c.queue = append(c.queue, ev)
	c.done = true
}

func (c *Classifier) closeSpan() {
	if c.inSpan {
		c.inSpan = false
		c.queue = append(c.queue, ReasoningClose{})
	}
}
