// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package metrics exposes Prometheus instrumentation for the streaming
// pipeline and generation turns.
//
// All methods are safe on a nil *Metrics, so components can be built
// without instrumentation.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Turn outcome labels.
const (
	OutcomeComplete  = "complete"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// Metrics holds the collectors for one process.
type Metrics struct {
	registry *prometheus.Registry

	// RecordsDecoded counts response units produced by the decoder.
	RecordsDecoded prometheus.Counter
	// MalformedRecords counts records that failed to parse.
	MalformedRecords prometheus.Counter
	// StreamEvents counts classifier output by event kind.
	StreamEvents *prometheus.CounterVec
	// Turns counts finished turns by outcome.
	Turns *prometheus.CounterVec
	// TokensPerSecond is the throughput of the most recent turn.
	TokensPerSecond prometheus.Gauge
	// TurnDuration records wall time from submit to finish.
	TurnDuration prometheus.Histogram
}

// New creates the collectors and registers them on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RecordsDecoded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "yumchat_records_decoded_total",
			Help: "Total number of stream records decoded",
		}),
		MalformedRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "yumchat_malformed_records_total",
			Help: "Total number of stream records that failed to parse",
		}),
		StreamEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "yumchat_stream_events_total",
				Help: "Total number of stream events emitted by the classifier",
			},
			[]string{"kind"},
		),
		Turns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "yumchat_turns_total",
				Help: "Total number of generation turns by outcome",
			},
			[]string{"outcome"},
		),
		TokensPerSecond: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "yumchat_tokens_per_second",
			Help: "Estimated generation throughput of the last finished turn",
		}),
		TurnDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "yumchat_turn_duration_seconds",
			Help:    "Wall time of generation turns",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),
	}

	m.registry.MustRegister(
		m.RecordsDecoded,
		m.MalformedRecords,
		m.StreamEvents,
		m.Turns,
		m.TokensPerSecond,
		m.TurnDuration,
	)
	return m
}

// Registry returns the registry holding all collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRecord counts one decoded record.
func (m *Metrics) ObserveRecord() {
	if m == nil {
		return
	}
	m.RecordsDecoded.Inc()
}

// ObserveMalformed counts one malformed record.
func (m *Metrics) ObserveMalformed() {
	if m == nil {
		return
	}
	m.MalformedRecords.Inc()
}

// ObserveEvent counts one classifier event of the given kind.
func (m *Metrics) ObserveEvent(kind string) {
	if m == nil {
		return
	}
	m.StreamEvents.WithLabelValues(kind).Inc()
}

// ObserveTurn records a finished turn.
func (m *Metrics) ObserveTurn(outcome string, tokensPerSecond float64, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(outcome).Inc()
	if tokensPerSecond > 0 {
		m.TokensPerSecond.Set(tokensPerSecond)
	}
	m.TurnDuration.Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *log.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
