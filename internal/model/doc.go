// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// # Key Types
//
//   - Conversation: a named, ordered sequence of Messages with timestamps
//   - Message: one turn, tagged user/assistant/error
//   - Summary: a generated conversation summary (capped history per chat)
//   - Store: the in-memory conversation collection the UI reads and the
//     streaming controller writes into
//   - Settings: the persisted user settings singleton
//
// The Store is the sole mutable owner of conversation data during a session.
// The persistence layer (internal/storage) only reads whole snapshots from it
// and only writes whole snapshots back on load or reconciliation.
package model
