// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides shared helpers for the ollachat application.
//
// It contains the atomic file write used by the persistence layer and the
// config writer, and rune-safe string truncation used for conversation
// naming and list previews.
package util
