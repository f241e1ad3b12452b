// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the HTTP client for communicating with an
// Ollama-style inference server.
package ollama

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
)

// =============================================================================
// STREAM READER
// =============================================================================

// StreamReader decodes a streamed response body into newline-delimited JSON
// frames. Chunk boundaries are arbitrary: a partial trailing line is buffered
// until its terminating newline arrives in a later chunk, so a record split
// across chunks is never lost. A reader is bound to one stream; create a new
// one per request.
type StreamReader struct {
	reader *bufio.Reader

	// PERFORMANCE: strings.Builder avoids quadratic allocations
	accumulator strings.Builder

	frameCount     int
	malformedCount int
}

// NewStreamReader creates a stream reader over a response body.
func NewStreamReader(r io.Reader) *StreamReader {
	return &StreamReader{
		reader: bufio.NewReader(r),
	}
}

// Process reads the stream and calls the callback for each decoded frame.
// Blocks until end-of-stream, an error frame, or context cancellation.
//
// A frame whose error field is set terminates processing with a ModelError;
// a line that fails to parse is skipped and counted, never fatal.
func (s *StreamReader) Process(ctx context.Context, callback FrameCallback) error {
	for {
		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return ErrTimeout
			}
			return ErrCancelled
		default:
		}

		frame, eof, err := s.readFrame()
		if err != nil {
			return err
		}
		if frame != nil {
			if frame.Error != "" {
				return &ClientError{Type: ErrTypeModelError, Message: frame.Error}
			}
			s.accumulator.WriteString(frame.Response)
			s.frameCount++
			callback(*frame)
			if frame.Done {
				return nil
			}
		}
		if eof {
			return nil
		}
	}
}

// readFrame reads one line from the stream and parses it. Returns a nil
// frame for empty or malformed lines. eof reports that the transport closed;
// a final unterminated line is still parsed before eof is surfaced.
func (s *StreamReader) readFrame() (frame *Frame, eof bool, err error) {
	line, readErr := s.reader.ReadBytes('\n')
	if readErr != nil {
		switch {
		case readErr == io.EOF:
			eof = true
		case errors.Is(readErr, context.Canceled):
			// An abort lands on the blocked body read as a wrapped context
			// error; keep it a cancellation, not a transport failure.
			return nil, false, ErrCancelled
		case errors.Is(readErr, context.DeadlineExceeded):
			return nil, false, ErrTimeout
		default:
			// Treat a mid-stream transport failure the same as the server
			// vanishing; partial output already delivered stays delivered.
			return nil, false, &ClientError{Type: ErrTypeNotRunning, Message: "stream read failed", Cause: readErr}
		}
	}

	trimmed := strings.TrimSpace(string(line))
	if trimmed == "" {
		return nil, eof, nil
	}

	var f Frame
	if err := json.Unmarshal([]byte(trimmed), &f); err != nil {
		// Malformed frame: skip and keep streaming.
		s.malformedCount++
		return nil, eof, nil
	}

	return &f, eof, nil
}

// Accumulated returns all response text decoded so far.
func (s *StreamReader) Accumulated() string {
	return s.accumulator.String()
}

// FrameCount returns the number of well-formed frames decoded.
func (s *StreamReader) FrameCount() int {
	return s.frameCount
}

// MalformedCount returns the number of lines skipped as undecodable.
func (s *StreamReader) MalformedCount() int {
	return s.malformedCount
}
