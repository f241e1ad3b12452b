// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling system for the ollachat TUI.
// All colors use Lip Gloss AdaptiveColor for automatic light/dark detection.
package styles

import "github.com/charmbracelet/lipgloss"

// =============================================================================
// ACCENT COLORS
// =============================================================================

// Purple - Primary accent, assistant messages, selections
var Purple = lipgloss.AdaptiveColor{Light: "#7C3AED", Dark: "#A78BFA"}

// Cyan - User highlights, active elements
var Cyan = lipgloss.AdaptiveColor{Light: "#0891B2", Dark: "#22D3EE"}

// Emerald - Success states, connected indicator
var Emerald = lipgloss.AdaptiveColor{Light: "#059669", Dark: "#34D399"}

// Rose - Errors, unreachable-server banner
var Rose = lipgloss.AdaptiveColor{Light: "#E11D48", Dark: "#FB7185"}

// Amber - Warnings, degraded-save notices
var Amber = lipgloss.AdaptiveColor{Light: "#D97706", Dark: "#FBBF24"}

// =============================================================================
// SURFACE AND TEXT COLORS
// =============================================================================

// Surface - Main background
var Surface = lipgloss.AdaptiveColor{Light: "#FFFFFF", Dark: "#1E1E2E"}

// Overlay - Borders, separators
var Overlay = lipgloss.AdaptiveColor{Light: "#E5E5E5", Dark: "#313244"}

// TextPrimary - Main body text
var TextPrimary = lipgloss.AdaptiveColor{Light: "#1F2937", Dark: "#CDD6F4"}

// TextSecondary - Labels, sidebar entries
var TextSecondary = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#A6ADC8"}

// TextMuted - Hints, timestamps
var TextMuted = lipgloss.AdaptiveColor{Light: "#9CA3AF", Dark: "#6C7086"}

// =============================================================================
// COMPONENT STYLES
// =============================================================================

// UserLabel renders the "You" prefix on user messages.
var UserLabel = lipgloss.NewStyle().Foreground(Cyan).Bold(true)

// AssistantLabel renders the assistant prefix.
var AssistantLabel = lipgloss.NewStyle().Foreground(Purple).Bold(true)

// ErrorText renders error-role messages.
var ErrorText = lipgloss.NewStyle().Foreground(Rose)

// WarningText renders degraded-save and recovery notices.
var WarningText = lipgloss.NewStyle().Foreground(Amber)

// Banner renders the persistent server-unreachable banner.
var Banner = lipgloss.NewStyle().
	Foreground(Rose).
	Border(lipgloss.RoundedBorder()).
	BorderForeground(Rose).
	Padding(0, 1)

// Sidebar frames the conversation list.
var Sidebar = lipgloss.NewStyle().
	Border(lipgloss.NormalBorder(), false, true, false, false).
	BorderForeground(Overlay).
	Padding(0, 1)

// SidebarActive highlights the selected conversation.
var SidebarActive = lipgloss.NewStyle().Foreground(Cyan).Bold(true)

// SidebarEntry renders an unselected conversation.
var SidebarEntry = lipgloss.NewStyle().Foreground(TextSecondary)

// StatusBar renders the bottom status line.
var StatusBar = lipgloss.NewStyle().Foreground(TextMuted)

// MutedText renders hints and placeholder copy.
var MutedText = lipgloss.NewStyle().Foreground(TextMuted)

// InputFrame frames the textarea.
var InputFrame = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(Overlay)

// InputFrameFocused is the textarea frame while streaming is idle.
var InputFrameFocused = InputFrame.BorderForeground(Purple)
