// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import "encoding/json"

// =============================================================================
// SETTINGS
// =============================================================================

// Settings is the persisted user settings singleton.
type Settings struct {
	SelectedModel string  `json:"selectedModel"`
	Temperature   float64 `json:"temperature"`
	ShowSidebar   bool    `json:"showSidebar"`
}

// DefaultSettings returns the settings applied when nothing is persisted.
func DefaultSettings() Settings {
	return Settings{
		SelectedModel: "",
		Temperature:   0.8,
		ShowSidebar:   true,
	}
}

// Clamp forces the temperature into the supported [0, 2] range.
func (s *Settings) Clamp() {
	if s.Temperature < 0 {
		s.Temperature = 0
	}
	if s.Temperature > 2 {
		s.Temperature = 2
	}
}

// MergeJSON overlays the fields present in raw onto s, leaving absent fields
// untouched. Used by store import, where settings are optional and partial.
func (s *Settings) MergeJSON(raw json.RawMessage) error {
	if len(raw) == 0 {
		return nil
	}
	var partial struct {
		SelectedModel *string  `json:"selectedModel"`
		Temperature   *float64 `json:"temperature"`
		ShowSidebar   *bool    `json:"showSidebar"`
	}
	if err := json.Unmarshal(raw, &partial); err != nil {
		return err
	}
	if partial.SelectedModel != nil {
		s.SelectedModel = *partial.SelectedModel
	}
	if partial.Temperature != nil {
		s.Temperature = *partial.Temperature
	}
	if partial.ShowSidebar != nil {
		s.ShowSidebar = *partial.ShowSidebar
	}
	s.Clamp()
	return nil
}
