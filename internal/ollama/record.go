// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the HTTP client for communicating with Ollama API.
package ollama

import (
	"bytes"
	"encoding/json"
	"errors"
)

// =============================================================================
// RECORD ERRORS
// =============================================================================

// MalformedRecordError reports a streaming record that is not valid JSON or
// lacks a required field.
type MalformedRecordError struct {
	Record string
	Err    error
}

func (e *MalformedRecordError) Error() string {
	msg := "malformed stream record " + quoteRecord(e.Record)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedRecordError) Unwrap() error {
	return e.Err
}

// ServiceError is an error reported by the server inside the stream.
type ServiceError struct {
	Message string
}

func (e *ServiceError) Error() string {
	return "ollama: " + e.Message
}

// TransportError wraps a failure of the underlying byte source mid-stream.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "stream read failed: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsMalformedRecord checks if an error is a malformed record error.
func IsMalformedRecord(err error) bool {
	var recErr *MalformedRecordError
	return errors.As(err, &recErr)
}

// =============================================================================
// RECORD PARSING
// =============================================================================

// ParseRecord parses one newline-delimited record into a ResponseUnit.
// Surrounding whitespace and the line terminator are ignored.
func ParseRecord(record []byte) (ResponseUnit, error) {
	resp, err := decodeRecord(record)
	if err != nil {
		return ResponseUnit{}, &MalformedRecordError{Record: string(bytes.TrimSpace(record)), Err: err}
	}
	return unitFromResponse(resp)
}

// unitFromResponse converts a decoded record, surfacing in-stream server
// errors.
func unitFromResponse(resp *GenerateResponse) (ResponseUnit, error) {
	if resp.Error != "" {
		return ResponseUnit{}, &ServiceError{Message: resp.Error}
	}
	return ResponseUnit{
		Visible:   resp.Response,
		Reasoning: resp.Thinking,
		Final:     resp.Done,
	}, nil
}

// wireRecord is a GenerateResponse whose done field can be told apart from
// an explicit false. The outer Done shadows the embedded one.
type wireRecord struct {
	GenerateResponse
	Done *bool `json:"done"`
}

// decodeRecord decodes a record without wrapping the error. Only JSON objects
// are accepted; a bare literal such as null is not a record. Every record
// except a server error must carry done.
func decodeRecord(record []byte) (*GenerateResponse, error) {
	trimmed := bytes.TrimSpace(record)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, errNotObject
	}

	var wire wireRecord
	if err := json.Unmarshal(trimmed, &wire); err != nil {
		return nil, err
	}
	resp := wire.GenerateResponse
	if wire.Done == nil {
		if resp.Error == "" {
			return nil, errMissingDone
		}
	} else {
		resp.Done = *wire.Done
	}
	return &resp, nil
}

var (
	errNotObject   = errors.New("record is not a JSON object")
	errMissingDone = errors.New("record has no done field")
)

// quoteRecord keeps error messages readable for very long records.
func quoteRecord(s string) string {
	const maxLen = 120
	if len(s) > maxLen {
		s = s[:maxLen] + "..."
	}
	return "\"" + s + "\""
}
