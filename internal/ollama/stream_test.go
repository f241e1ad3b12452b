// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the HTTP client for communicating with an
// Ollama-style inference server.
package ollama

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
)

// chunkReader yields its chunks one Read at a time, simulating arbitrary
// network chunk boundaries.
type chunkReader struct {
	chunks []string
	pos    int
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.chunks) {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[r.pos])
	if n < len(r.chunks[r.pos]) {
		r.chunks[r.pos] = r.chunks[r.pos][n:]
	} else {
		r.pos++
	}
	return n, nil
}

func collectFrames(t *testing.T, body io.Reader) ([]Frame, *StreamReader, error) {
	t.Helper()
	reader := NewStreamReader(body)
	var frames []Frame
	err := reader.Process(context.Background(), func(f Frame) {
		frames = append(frames, f)
	})
	return frames, reader, err
}

// =============================================================================
// STREAM READER TESTS
// =============================================================================

func TestStreamReader_BasicStream(t *testing.T) {
	body := strings.NewReader(
		`{"response":"Hi"}` + "\n" +
			`{"response":" there"}` + "\n" +
			`{"response":"","done":true}` + "\n")

	frames, reader, err := collectFrames(t, body)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if len(frames) != 3 {
		t.Fatalf("Frames = %d, want 3", len(frames))
	}
	if reader.Accumulated() != "Hi there" {
		t.Errorf("Accumulated = %q, want 'Hi there'", reader.Accumulated())
	}
	if !frames[2].Done {
		t.Error("Last frame should carry done")
	}
}

func TestStreamReader_RecordSplitAcrossChunks(t *testing.T) {
	// One record split across three chunks must decode as one frame.
	body := &chunkReader{chunks: []string{
		`{"response":"Hel`,
		`lo wor`,
		"ld\"}\n",
		`{"response":"!"}` + "\n",
	}}

	frames, reader, err := collectFrames(t, body)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if len(frames) != 2 {
		t.Fatalf("Frames = %d, want 2", len(frames))
	}
	if frames[0].Response != "Hello world" {
		t.Errorf("First frame = %q, want 'Hello world'", frames[0].Response)
	}
	if reader.Accumulated() != "Hello world!" {
		t.Errorf("Accumulated = %q", reader.Accumulated())
	}
}

func TestStreamReader_MalformedLineSkipped(t *testing.T) {
	body := strings.NewReader(
		`{"response":"a"}` + "\n" +
			`{not valid json` + "\n" +
			`{"response":"b"}` + "\n")

	frames, reader, err := collectFrames(t, body)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	// Same accumulated output as if the invalid line were absent.
	if reader.Accumulated() != "ab" {
		t.Errorf("Accumulated = %q, want 'ab'", reader.Accumulated())
	}
	if len(frames) != 2 {
		t.Errorf("Frames = %d, want 2", len(frames))
	}
	if reader.MalformedCount() != 1 {
		t.Errorf("MalformedCount = %d, want 1", reader.MalformedCount())
	}
}

func TestStreamReader_EmptyLinesIgnored(t *testing.T) {
	body := strings.NewReader("\n\n" + `{"response":"x"}` + "\n\n")

	frames, _, err := collectFrames(t, body)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(frames) != 1 {
		t.Errorf("Frames = %d, want 1", len(frames))
	}
}

func TestStreamReader_ErrorFrameTerminates(t *testing.T) {
	body := strings.NewReader(
		`{"response":"partial"}` + "\n" +
			`{"error":"model exploded"}` + "\n" +
			`{"response":"never seen"}` + "\n")

	frames, reader, err := collectFrames(t, body)
	if err == nil {
		t.Fatal("Expected an error")
	}
	if !IsModelError(err) {
		t.Errorf("Expected a model error, got %v", err)
	}
	if len(frames) != 1 {
		t.Errorf("Frames = %d, want 1 (stream stops at the error frame)", len(frames))
	}
	if reader.Accumulated() != "partial" {
		t.Errorf("Accumulated = %q, want 'partial'", reader.Accumulated())
	}
}

func TestStreamReader_FinalLineWithoutNewline(t *testing.T) {
	// Transport close without a trailing newline still delivers the record.
	body := strings.NewReader(`{"response":"a"}` + "\n" + `{"response":"b"}`)

	_, reader, err := collectFrames(t, body)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if reader.Accumulated() != "ab" {
		t.Errorf("Accumulated = %q, want 'ab'", reader.Accumulated())
	}
}

func TestStreamReader_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reader := NewStreamReader(strings.NewReader(`{"response":"x"}` + "\n"))
	err := reader.Process(ctx, func(Frame) {})
	if !errors.Is(err, ErrCancelled) {
		t.Errorf("Expected ErrCancelled, got %v", err)
	}
}

// abortedReader delivers some data and then fails the next Read with a
// wrapped context error, the way an HTTP body behaves when its request
// context is cancelled mid-stream.
type abortedReader struct {
	data io.Reader
	err  error
}

func (r *abortedReader) Read(p []byte) (int, error) {
	n, err := r.data.Read(p)
	if err == io.EOF {
		return n, r.err
	}
	return n, err
}

func TestStreamReader_AbortedBodyReadClassified(t *testing.T) {
	tests := []struct {
		name    string
		readErr error
		want    error
	}{
		{"cancel", context.Canceled, ErrCancelled},
		{"deadline", context.DeadlineExceeded, ErrTimeout},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			body := &abortedReader{
				data: strings.NewReader(`{"response":"partial"}` + "\n"),
				err:  &net.OpError{Op: "read", Err: tc.readErr},
			}

			reader := NewStreamReader(body)
			err := reader.Process(context.Background(), func(Frame) {})
			if !errors.Is(err, tc.want) {
				t.Errorf("Process() = %v, want %v", err, tc.want)
			}
			if IsNotRunning(err) {
				t.Error("An aborted body read must not classify as server-unreachable")
			}
			if reader.Accumulated() != "partial" {
				t.Errorf("Accumulated = %q, partial output before the abort should be kept", reader.Accumulated())
			}
		})
	}
}

func TestStreamReader_EmptyResponseFieldAccumulates(t *testing.T) {
	body := strings.NewReader(
		`{"response":""}` + "\n" +
			`{"response":"x"}` + "\n")

	frames, reader, err := collectFrames(t, body)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(frames) != 2 {
		t.Errorf("Frames = %d, want 2 (empty deltas are still frames)", len(frames))
	}
	if reader.Accumulated() != "x" {
		t.Errorf("Accumulated = %q, want 'x'", reader.Accumulated())
	}
}
