// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/ollachat/internal/model"
)

// =============================================================================
// MARKDOWN EXPORT
// =============================================================================

// Markdown renders a conversation as a human-readable Markdown document.
// Unlike the JSON document this is one-way: there is no Markdown import.
func Markdown(c *model.Conversation) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("conversation is nil")
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# %s\n\n", c.Name))
	sb.WriteString(fmt.Sprintf("- **Created**: %s\n", c.CreatedAt.Format("2006-01-02 15:04")))
	sb.WriteString(fmt.Sprintf("- **Last Updated**: %s\n", c.UpdatedAt.Format("2006-01-02 15:04")))
	sb.WriteString(fmt.Sprintf("- **Messages**: %d\n", len(c.Messages)))
	sb.WriteString(fmt.Sprintf("- **Exported**: %s\n", time.Now().Format(time.RFC3339)))
	sb.WriteString("\n---\n\n")

	for _, msg := range c.Messages {
		switch msg.Role {
		case model.RoleUser:
			sb.WriteString("### You\n\n")
		case model.RoleAssistant:
			sb.WriteString("### Assistant\n\n")
		case model.RoleError:
			sb.WriteString("### Error\n\n")
		}
		sb.WriteString(msg.Content)
		sb.WriteString("\n\n")
	}

	if len(c.SummaryHistory) > 0 {
		sb.WriteString("---\n\n## Summaries\n\n")
		for _, s := range c.SummaryHistory {
			sb.WriteString(fmt.Sprintf("**%s** (%s)\n\n%s\n\n",
				s.Style, s.Timestamp.Format("2006-01-02 15:04"), s.Content))
		}
	}

	return []byte(sb.String()), nil
}

// MarkdownFilename returns the suggested file name for a Markdown export.
func MarkdownFilename(c *model.Conversation) string {
	return fmt.Sprintf("chat-%s-%s.md", c.ID, time.Now().Format("2006-01-02"))
}
