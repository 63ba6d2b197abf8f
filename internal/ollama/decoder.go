// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the HTTP client for communicating with Ollama API.
package ollama

import (
	"bytes"
	"errors"
	"io"
)

// =============================================================================
// CHUNK SOURCE
// =============================================================================

// ChunkSource yields raw byte chunks as delivered by the transport. Chunk
// boundaries carry no meaning: a chunk may be empty, end mid-record or hold
// several records. NextChunk returns io.EOF once the source is exhausted.
type ChunkSource interface {
	NextChunk() ([]byte, error)
}

// defaultChunkSize matches the read size of the HTTP transport buffers.
const defaultChunkSize = 32 * 1024

// readerSource adapts an io.Reader into a ChunkSource.
type readerSource struct {
	r   io.Reader
	buf []byte
	err error // deferred error returned together with data by the last Read
}

// NewReaderSource returns a ChunkSource reading from r.
func NewReaderSource(r io.Reader) ChunkSource {
	return &readerSource{r: r, buf: make([]byte, defaultChunkSize)}
}

func (s *readerSource) NextChunk() ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}

	n, err := s.r.Read(s.buf)
	if n > 0 {
		// Hand out data first; the error surfaces on the next call.
		s.err = err
		return s.buf[:n], nil
	}
	if err != nil {
		return nil, err
	}
	return nil, nil
}

// =============================================================================
// DECODER
// =============================================================================

// Decoder turns a ChunkSource into a sequence of ResponseUnits, one per
// newline-delimited record.
//
// The decoder owns its pending buffer for the lifetime of one stream. Bytes
// that do not yet form a complete record stay buffered between calls and are
// discarded if the stream is abandoned. Records are read through an offset;
// the unread tail is moved to the front only before the next chunk is
// appended, so a chunk holding many records is never shifted per record.
//
// A Decoder is not safe for concurrent use.
type Decoder struct {
	src     ChunkSource
	pending []byte
	off     int // start of unread bytes in pending
	done    bool
	closer  io.Closer
}

// NewDecoder creates a decoder reading chunks from src.
func NewDecoder(src ChunkSource) *Decoder {
	return &Decoder{src: src}
}

// NewStreamDecoder creates a decoder over a response body. Close releases the
// body.
func NewStreamDecoder(body io.ReadCloser) *Decoder {
	d := NewDecoder(NewReaderSource(body))
	d.closer = body
	return d
}

// Next returns the next ResponseUnit.
//
// A record that fails to parse is returned as a *MalformedRecordError; the
// decoder stays usable and the caller decides whether to continue. A source
// failure is returned as a *TransportError and ends the stream. After the
// final unit, a transport error or source exhaustion, Next returns io.EOF.
func (d *Decoder) Next() (ResponseUnit, error) {
	for {
		if d.done {
			return ResponseUnit{}, io.EOF
		}

		unread := d.pending[d.off:]

		// A complete line is already buffered.
		if idx := bytes.IndexByte(unread, '\n'); idx >= 0 {
			unit, ok, err := d.consume(idx + 1)
			if !ok {
				continue
			}
			return unit, err
		}

		// The final record may arrive without a trailing newline.
		if trimmed := bytes.TrimSpace(unread); len(trimmed) > 0 && trimmed[len(trimmed)-1] == '}' {
			if resp, err := decodeRecord(trimmed); err == nil {
				d.reset()
				unit, err := unitFromResponse(resp)
				if err != nil {
					return ResponseUnit{}, err
				}
				return d.finish(unit)
			}
		}

		chunk, err := d.src.NextChunk()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return d.drain()
			}
			d.done = true
			d.release()
			return ResponseUnit{}, &TransportError{Err: err}
		}
		d.compact()
		d.pending = append(d.pending, chunk...)
	}
}

// consume extracts the next n unread bytes as one record. ok is false for
// blank records, which are skipped.
func (d *Decoder) consume(n int) (ResponseUnit, bool, error) {
	record := d.pending[d.off : d.off+n]
	blank := len(bytes.TrimSpace(record)) == 0

	var (
		unit ResponseUnit
		err  error
	)
	if !blank {
		unit, err = ParseRecord(record)
	}

	d.off += n
	if d.off == len(d.pending) {
		d.reset()
	}

	if blank {
		return ResponseUnit{}, false, nil
	}
	if err != nil {
		return ResponseUnit{}, true, err
	}
	unit, err = d.finish(unit)
	return unit, true, err
}

// drain handles source exhaustion: leftover non-blank bytes get one last
// parse attempt.
func (d *Decoder) drain() (ResponseUnit, error) {
	d.done = true
	leftover := d.pending[d.off:]
	d.release()

	if len(bytes.TrimSpace(leftover)) == 0 {
		return ResponseUnit{}, io.EOF
	}
	return ParseRecord(leftover)
}

// finish marks the decoder done once the final unit has been produced.
func (d *Decoder) finish(unit ResponseUnit) (ResponseUnit, error) {
	if unit.Final {
		d.done = true
		d.release()
	}
	return unit, nil
}

// Buffered returns the number of bytes waiting for a line terminator.
func (d *Decoder) Buffered() int {
	return len(d.pending) - d.off
}

// compact moves the unread tail to the front of the buffer. Parsed records
// never alias the buffer, so the move is safe.
func (d *Decoder) compact() {
	if d.off == 0 {
		return
	}
	n := copy(d.pending, d.pending[d.off:])
	d.pending = d.pending[:n]
	d.off = 0
}

// reset empties the buffer and keeps its capacity.
func (d *Decoder) reset() {
	d.pending = d.pending[:0]
	d.off = 0
}

// release drops the buffer.
func (d *Decoder) release() {
	d.pending = nil
	d.off = 0
}

// Close releases the underlying response body, if any. Buffered partial data
// is discarded.
func (d *Decoder) Close() error {
	d.done = true
	d.release()
	if d.closer != nil {
		return d.closer.Close()
	}
	return nil
}
