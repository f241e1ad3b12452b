// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the HTTP client for communicating with an
// Ollama-style inference server.
package ollama

// =============================================================================
// REQUEST TYPES
// =============================================================================

// GenerateRequest is the request body for the /api/generate endpoint.
// Stream is omitted for chat requests (the server streams by default) and
// set to an explicit false for the non-streaming path.
type GenerateRequest struct {
	Model   string   `json:"model"`
	Prompt  string   `json:"prompt"`
	Stream  *bool    `json:"stream,omitempty"`
	Options *Options `json:"options,omitempty"`
}

// Options contains model parameters for inference.
type Options struct {
	Temperature float64 `json:"temperature"` // 0.0-2.0
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// Frame is one decoded newline-delimited JSON record from a streamed
// /api/generate response body.
type Frame struct {
	Response string `json:"response"`
	Error    string `json:"error"`
	Done     bool   `json:"done"`
}

// GenerateResponse is the single-object body of a non-streaming generate.
type GenerateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

// ModelInfo describes one model known to the server.
type ModelInfo struct {
	Name       string `json:"name"`
	Size       int64  `json:"size,omitempty"`
	ModifiedAt string `json:"modified_at,omitempty"`
}

// ListModelsResponse is the body of GET /api/tags.
type ListModelsResponse struct {
	Models []ModelInfo `json:"models"`
}

// serverError is the JSON error body an Ollama-style server returns on
// non-2xx responses. Plain-text bodies are also accepted.
type serverError struct {
	Error string `json:"error"`
}
