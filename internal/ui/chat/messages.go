// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/jeranaias/ollachat/internal/chat"
	"github.com/jeranaias/ollachat/internal/ollama"
)

// =============================================================================
// TEA MESSAGES
// =============================================================================

// StreamMsg carries a controller update into the Bubble Tea loop. Delivered
// via Program.Send from the goroutine running the stream.
type StreamMsg struct {
	Update chat.Update
}

// serverStatusMsg reports the startup connectivity probe.
type serverStatusMsg struct {
	err error
}

// modelsMsg delivers the model list fetched at startup.
type modelsMsg struct {
	models []ollama.ModelInfo
	err    error
}
