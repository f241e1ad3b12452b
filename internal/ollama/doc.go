// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the HTTP client for communicating with an
// Ollama-style inference server.
//
// # Endpoints
//
//   - GET /api/version — reachability probe (status only)
//   - GET /api/tags — model listing
//   - POST /api/generate — streamed newline-delimited JSON for chat,
//     single-object response for summary generation
//
// # Streaming
//
// Generate decodes the response body through a StreamReader, which frames
// the byte stream into JSON records regardless of chunk boundaries and
// tolerates individual malformed lines.
//
// # Errors
//
// Failures are reported as *ClientError values categorized by ErrorType.
// Use the sentinel errors (ErrNotRunning, ErrTimeout, ErrCancelled) with
// errors.Is, or the Is* helpers.
package ollama
