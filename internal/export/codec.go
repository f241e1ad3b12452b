// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export converts conversations to and from portable JSON documents.
//
// Two document shapes exist: a single conversation (the Conversation entity
// pretty-printed as-is) and a full-store bundle carrying every conversation
// plus the settings and an export timestamp. Import validates structural
// integrity before touching any in-memory state, so a rejected document
// leaves the store unmodified.
package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/ollachat/internal/model"
)

// =============================================================================
// ERROR TYPE
// =============================================================================

// InvalidFormatError describes a structural violation in an imported
// document. Field names the offending element.
type InvalidFormatError struct {
	Field  string
	Reason string
}

func (e *InvalidFormatError) Error() string {
	return fmt.Sprintf("invalid import format: field %q %s", e.Field, e.Reason)
}

// IsInvalidFormat reports whether err is an import validation failure.
func IsInvalidFormat(err error) bool {
	var ife *InvalidFormatError
	return errors.As(err, &ife)
}

// =============================================================================
// SINGLE CONVERSATION
// =============================================================================

// Conversation serializes a single conversation as a pretty-printed JSON
// document suitable for sharing.
func Conversation(c *model.Conversation) ([]byte, error) {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("export conversation: %w", err)
	}
	return data, nil
}

// ConversationFilename returns the suggested file name for a single-chat
// export: chat-<id>-<date>.json.
func ConversationFilename(c *model.Conversation) string {
	return fmt.Sprintf("chat-%s-%s.json", c.ID, time.Now().Format("2006-01-02"))
}

// conversationProbe checks field shapes before the full decode. Messages is
// kept raw so an object- or string-typed value can be rejected explicitly
// instead of surfacing as an opaque unmarshal error.
type conversationProbe struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Messages json.RawMessage `json:"messages"`
}

// ImportConversation parses and validates a single-conversation document.
// The document must carry a non-empty id, a non-empty name, and an
// array-typed messages field. The returned conversation gets a freshly
// generated id so it can never collide with an existing one.
func ImportConversation(data []byte) (*model.Conversation, error) {
	var probe conversationProbe
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, &InvalidFormatError{Field: "document", Reason: "is not a JSON object"}
	}
	if probe.ID == "" {
		return nil, &InvalidFormatError{Field: "id", Reason: "must be a non-empty string"}
	}
	if probe.Name == "" {
		return nil, &InvalidFormatError{Field: "name", Reason: "must be a non-empty string"}
	}
	if !isJSONArray(probe.Messages) {
		return nil, &InvalidFormatError{Field: "messages", Reason: "must be an array"}
	}

	var conv model.Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, &InvalidFormatError{Field: "messages", Reason: "holds malformed entries"}
	}
	conv.ID = uuid.NewString()
	if conv.Messages == nil {
		conv.Messages = make([]*model.Message, 0)
	}
	return &conv, nil
}

// =============================================================================
// FULL STORE BUNDLE
// =============================================================================

// StoreBundle is the full-store document shape: every conversation, the
// settings at export time, and when the export was taken.
type StoreBundle struct {
	Chats      []*model.Conversation `json:"chats"`
	Settings   *model.Settings       `json:"settings"`
	ExportDate string                `json:"exportDate"`

	// SettingsRaw preserves the settings object as written, so the caller
	// can merge only the fields the document actually carries. Nil when the
	// document has no settings.
	SettingsRaw json.RawMessage `json:"-"`
}

// Store serializes the full store as a pretty-printed bundle document.
func Store(convs []*model.Conversation, settings model.Settings) ([]byte, error) {
	bundle := StoreBundle{
		Chats:      convs,
		Settings:   &settings,
		ExportDate: time.Now().Format(time.RFC3339),
	}
	if bundle.Chats == nil {
		bundle.Chats = make([]*model.Conversation, 0)
	}
	data, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("export store: %w", err)
	}
	return data, nil
}

// StoreFilename returns the suggested file name for a full-store export.
func StoreFilename() string {
	return fmt.Sprintf("ollama-chats-backup-%s.json", time.Now().Format("2006-01-02"))
}

type bundleProbe struct {
	Chats    json.RawMessage `json:"chats"`
	Settings json.RawMessage `json:"settings"`
}

// ImportStore parses and validates a full-store bundle. The chats field must
// be array-typed; settings are optional and left to the caller to merge over
// the current settings field by field.
func ImportStore(data []byte) (*StoreBundle, error) {
	var probe bundleProbe
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, &InvalidFormatError{Field: "document", Reason: "is not a JSON object"}
	}
	if !isJSONArray(probe.Chats) {
		return nil, &InvalidFormatError{Field: "chats", Reason: "must be an array"}
	}

	var bundle StoreBundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, &InvalidFormatError{Field: "chats", Reason: "holds malformed entries"}
	}
	if bundle.Chats == nil {
		bundle.Chats = make([]*model.Conversation, 0)
	}
	if len(probe.Settings) > 0 && string(probe.Settings) != "null" {
		bundle.SettingsRaw = probe.Settings
	}
	return &bundle, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// isJSONArray reports whether the raw value starts an array. An absent field
// (nil raw) is not an array.
func isJSONArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '['
}
