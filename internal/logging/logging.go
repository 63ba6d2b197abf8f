// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging builds the charmbracelet/log loggers handed to the other
// packages. The TUI owns the terminal, so interactive runs log to a file.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// =============================================================================
// OPTIONS
// =============================================================================

type options struct {
	level     log.Level
	writers   []io.Writer
	json      bool
	prefix    string
	timestamp bool
}

// Option configures a logger created with New.
type Option func(*options)

// WithLevel sets the minimum level.
func WithLevel(level log.Level) Option {
	return func(o *options) { o.level = level }
}

// WithDebug forces debug level when true and leaves the level alone
// otherwise.
func WithDebug(debug bool) Option {
	return func(o *options) {
		if debug {
			o.level = log.DebugLevel
		}
	}
}

// WithWriter overrides the output writer. Defaults to os.Stderr.
func WithWriter(w io.Writer) Option {
	return func(o *options) { o.writers = []io.Writer{w} }
}

// WithWriters fans output out to several writers.
func WithWriters(w ...io.Writer) Option {
	return func(o *options) { o.writers = w }
}

// WithJSON switches to one JSON object per line.
func WithJSON(json bool) Option {
	return func(o *options) { o.json = json }
}

// WithPrefix tags every line.
func WithPrefix(prefix string) Option {
	return func(o *options) { o.prefix = prefix }
}

// WithTimestamp toggles timestamps. On by default.
func WithTimestamp(on bool) Option {
	return func(o *options) { o.timestamp = on }
}

// =============================================================================
// CONSTRUCTORS
// =============================================================================

// New creates a logger.
func New(opts ...Option) *log.Logger {
	o := options{level: log.InfoLevel, timestamp: true}
	for _, opt := range opts {
		opt(&o)
	}

	var w io.Writer = os.Stderr
	switch len(o.writers) {
	case 0:
	case 1:
		w = o.writers[0]
	default:
		w = io.MultiWriter(o.writers...)
	}

	formatter := log.TextFormatter
	if o.json {
		formatter = log.JSONFormatter
	}

	return log.NewWithOptions(w, log.Options{
		Level:           o.level,
		Prefix:          o.prefix,
		ReportTimestamp: o.timestamp,
		TimeFormat:      time.RFC3339,
		Formatter:       formatter,
	})
}

// Nop returns a logger that discards everything.
func Nop() *log.Logger {
	return log.New(io.Discard)
}

// ParseLevel maps a config level name to a log level.
func ParseLevel(name string) (log.Level, error) {
	level, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(name)))
	if err != nil {
		return log.InfoLevel, fmt.Errorf("invalid log level %q: %w", name, err)
	}
	return level, nil
}

// OpenFile creates a logger that appends to path. The returned file must be
// closed by the caller.
func OpenFile(path string, opts ...Option) (*log.Logger, *os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return New(append([]Option{WithWriter(f)}, opts...)...), f, nil
}
