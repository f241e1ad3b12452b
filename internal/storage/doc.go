// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides snapshot persistence for the conversation store.
//
// The store is serialized as whole snapshots through an injected Backend
// key/value port, never as partial patches. Saves enforce the capacity
// bounds (conversation count, messages per conversation, serialized byte
// ceiling) and degrade gracefully when the ceiling is exceeded: conversation
// count is halved (keeping the most recently updated) and messages are
// capped at a smaller floor until the snapshot fits.
//
// A backup copy of the last successful save is refreshed at most once per
// Limits.BackupInterval. Load falls back to the backup when the primary
// snapshot is corrupted, and to an empty collection when both are; it never
// fails.
//
// # Key space
//
//   - chats — primary snapshot (JSON array of conversations)
//   - chats_backup, chats_backup_time — backup copy and its refresh time
//   - settings — settings singleton (JSON object)
//   - active_chat — active conversation id (bare string)
package storage
