// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/ollachat/internal/util"
)

// MaxNameRunes is the number of runes of the first user message used as a
// conversation name.
const MaxNameRunes = 30

// MaxSummaries is the number of summaries retained per conversation; older
// entries are dropped.
const MaxSummaries = 5

// =============================================================================
// SUMMARY TYPE
// =============================================================================

// SummaryStyle selects how a conversation summary is generated.
type SummaryStyle string

const (
	SummaryBrief      SummaryStyle = "brief"
	SummaryDetailed   SummaryStyle = "detailed"
	SummaryTopicBased SummaryStyle = "topic-based"
	SummaryCustom     SummaryStyle = "custom"
)

// Valid reports whether the style is one of the supported values.
func (s SummaryStyle) Valid() bool {
	switch s {
	case SummaryBrief, SummaryDetailed, SummaryTopicBased, SummaryCustom:
		return true
	}
	return false
}

// Summary is one generated summary of a conversation. Summaries are appended,
// never mutated.
type Summary struct {
	Content      string       `json:"content"`
	Style        SummaryStyle `json:"style"`
	CustomPrompt string       `json:"customPrompt,omitempty"`
	Timestamp    time.Time    `json:"timestamp"`
}

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation holds a named, ordered sequence of messages with timestamps.
type Conversation struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Messages       []*Message `json:"messages"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	SummaryHistory []Summary  `json:"summaryHistory,omitempty"`
}

// NewConversation creates an empty conversation with a generated ID.
func NewConversation(name string) *Conversation {
	now := time.Now()
	return &Conversation{
		ID:        uuid.NewString(),
		Name:      name,
		Messages:  make([]*Message, 0),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NameFromText derives a conversation name from the first user message:
// a single line of at most MaxNameRunes runes.
func NameFromText(text string) string {
	name := util.CollapseWhitespace(strings.TrimSpace(text))
	name = util.TruncateRunesNoEllipsis(name, MaxNameRunes)
	if name == "" {
		return "New chat"
	}
	return name
}

// =============================================================================
// MESSAGE MANAGEMENT
// =============================================================================

// AddMessage appends a message and refreshes the update timestamp.
func (c *Conversation) AddMessage(msg *Message) {
	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = time.Now()
}

// LastMessage returns the most recent message, or nil if empty.
func (c *Conversation) LastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return c.Messages[len(c.Messages)-1]
}

// SetLastAssistantContent writes the full accumulated buffer into the trailing
// assistant message, appending a new assistant message first if the trailing
// one has a different role. The visible assistant message therefore only ever
// grows during a streaming turn.
func (c *Conversation) SetLastAssistantContent(content string) {
	last := c.LastMessage()
	if last == nil || last.Role != RoleAssistant {
		c.AddMessage(NewAssistantMessage(content))
		return
	}
	last.Content = content
	c.UpdatedAt = time.Now()
}

// AddSummary appends a summary, dropping the oldest beyond MaxSummaries.
func (c *Conversation) AddSummary(s Summary) {
	c.SummaryHistory = append(c.SummaryHistory, s)
	if len(c.SummaryHistory) > MaxSummaries {
		c.SummaryHistory = c.SummaryHistory[len(c.SummaryHistory)-MaxSummaries:]
	}
	c.UpdatedAt = time.Now()
}

// Preview returns the first user message truncated for list display.
func (c *Conversation) Preview() string {
	for _, msg := range c.Messages {
		if msg.Role == RoleUser && msg.Content != "" {
			return util.TruncateRunes(util.CollapseWhitespace(msg.Content), 80)
		}
	}
	return ""
}

// MessageCount returns the number of messages in the conversation.
func (c *Conversation) MessageCount() int {
	return len(c.Messages)
}

// Clone returns a deep copy of the conversation. The persistence layer trims
// copies rather than the live store's data.
func (c *Conversation) Clone() *Conversation {
	clone := *c
	clone.Messages = make([]*Message, len(c.Messages))
	for i, m := range c.Messages {
		msg := *m
		clone.Messages[i] = &msg
	}
	if c.SummaryHistory != nil {
		clone.SummaryHistory = append([]Summary(nil), c.SummaryHistory...)
	}
	return &clone
}
