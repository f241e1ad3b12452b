// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/ollachat/internal/model"
	"github.com/jeranaias/ollachat/internal/ollama"
)

// ErrEmptyConversation is returned when a summary is requested for a
// conversation with no messages.
var ErrEmptyConversation = errors.New("conversation has no messages")

// Summarize generates a summary of a conversation in the given style and
// appends it to the conversation's summary history. Uses the non-streaming
// generate path; the busy indicator and one-in-flight rule do not apply.
func (c *Controller) Summarize(ctx context.Context, convID string, style model.SummaryStyle, customPrompt string, settings model.Settings) (model.Summary, error) {
	conv := c.store.Get(convID)
	if conv == nil {
		return model.Summary{}, fmt.Errorf("conversation %q not found", convID)
	}
	if len(conv.Messages) == 0 {
		return model.Summary{}, ErrEmptyConversation
	}
	if !style.Valid() {
		return model.Summary{}, fmt.Errorf("unknown summary style %q", style)
	}
	instruction, err := summaryInstruction(style, customPrompt)
	if err != nil {
		return model.Summary{}, err
	}

	modelName := settings.SelectedModel
	if modelName == "" {
		modelName = c.client.DefaultModel()
	}
	if modelName == "" {
		return model.Summary{}, ErrNoModel
	}

	req := ollama.GenerateRequest{
		Model:  modelName,
		Prompt: instruction + "\n\n" + transcript(conv),
		Options: &ollama.Options{
			Temperature: settings.Temperature,
		},
	}
	content, err := c.client.GenerateSync(ctx, req)
	if err != nil {
		return model.Summary{}, err
	}

	summary := model.Summary{
		Content:      strings.TrimSpace(content),
		Style:        style,
		CustomPrompt: customPrompt,
		Timestamp:    time.Now(),
	}
	c.store.AddSummary(convID, summary)
	c.SaveNow()
	return summary, nil
}

func summaryInstruction(style model.SummaryStyle, customPrompt string) (string, error) {
	switch style {
	case model.SummaryBrief:
		return "Summarize the following conversation in two or three sentences.", nil
	case model.SummaryDetailed:
		return "Write a detailed summary of the following conversation, covering every topic discussed and the conclusions reached.", nil
	case model.SummaryTopicBased:
		return "List the topics discussed in the following conversation, one line per topic, each with a short description.", nil
	case model.SummaryCustom:
		if strings.TrimSpace(customPrompt) == "" {
			return "", errors.New("custom summary style requires a prompt")
		}
		return customPrompt, nil
	}
	return "", fmt.Errorf("unknown summary style %q", style)
}

// transcript renders the conversation for a summary prompt, error messages
// excluded.
func transcript(conv *model.Conversation) string {
	var b strings.Builder
	for _, msg := range conv.Messages {
		switch msg.Role {
		case model.RoleUser:
			b.WriteString("User: ")
		case model.RoleAssistant:
			b.WriteString("Assistant: ")
		default:
			continue
		}
		b.WriteString(msg.Content)
		b.WriteString("\n")
	}
	return b.String()
}
