// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"errors"
	"io"

	"github.com/jeranaias/yumchat/internal/ollama"
)

// DefaultBufferSize is the default capacity of the event channel.
const DefaultBufferSize = 256

// Generator opens a streaming generation. *ollama.Client implements it.
type Generator interface {
	GenerateStream(ctx context.Context, request ollama.GenerateRequest) (*ollama.Decoder, error)
}

// Start launches the producer for one turn and returns its event channel.
//
// The producer sends every classifier event in order and closes the channel
// after the terminal event. A setup failure is delivered as a single
// StreamFailed. Cancelling ctx tears down the request; the producer then
// stops sending and closes the channel, discarding any partial record.
func Start(ctx context.Context, gen Generator, request ollama.GenerateRequest, opts ...Option) <-chan Event {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	events := make(chan Event, o.bufferSize)
	go produce(ctx, gen, request, events, o, opts)
	return events
}

func produce(ctx context.Context, gen Generator, request ollama.GenerateRequest, events chan<- Event, o options, opts []Option) {
	defer close(events)

	dec, err := gen.GenerateStream(ctx, request)
	if err != nil {
		o.logger.Error("generation setup failed", "model", request.Model, "err", err)
		send(ctx, events, Failed(err))
		return
	}
	defer dec.Close()

	cls := NewClassifier(dec, opts...)
	for {
		ev, err := cls.Next()
		if errors.Is(err, io.EOF) {
			return
		}
		if failed, ok := ev.(StreamFailed); ok && ctx.Err() == nil {
			o.logger.Error("stream failed", "model", request.Model, "err", failed.Err)
		}
		if !send(ctx, events, ev) {
			o.logger.Debug("producer cancelled", "model", request.Model, "buffered", dec.Buffered())
			return
		}
	}
}

// send delivers ev unless ctx is done first.
func send(ctx context.Context, events chan<- Event, ev Event) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// Collect runs the producer to completion and returns all events. Intended
// for non-interactive callers.
func Collect(ctx context.Context, gen Generator, request ollama.GenerateRequest, opts ...Option) []Event {
	var out []Event
	for ev := range Start(ctx, gen, request, opts...) {
		out = append(out, ev)
	}
	return out
}
