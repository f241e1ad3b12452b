// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"sort"
	"sync"
	"time"
)

// =============================================================================
// IN-MEMORY CONVERSATION STORE
// =============================================================================

// Store is the in-memory collection of conversations: the single source of
// truth the UI reads and the streaming controller writes into. The
// persistence layer only ever serializes whole snapshots of it.
//
// All operations are synchronous in-memory transformations. The store is
// safe for concurrent use since streaming happens in a goroutine while the
// UI reads from the main loop: the live data is only ever touched under the
// lock, accessors hand out deep copies, and mutation happens through by-ID
// methods. Holding a returned *Conversation across a mutation observes a
// stale copy, never a torn one.
type Store struct {
	mu            sync.Mutex
	conversations []*Conversation
	activeID      string
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{}
}

// =============================================================================
// CREATE / SELECT
// =============================================================================

// Create adds a new empty conversation with the given name, makes it active,
// and returns a copy of it.
func (s *Store) Create(name string) *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := NewConversation(name)
	s.conversations = append(s.conversations, conv)
	s.activeID = conv.ID
	return conv.Clone()
}

// SetActive selects the conversation with the given ID. Returns false if no
// such conversation exists.
func (s *Store) SetActive(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.findLocked(id) == nil {
		return false
	}
	s.activeID = id
	return true
}

// ClearActive deselects the active conversation.
func (s *Store) ClearActive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeID = ""
}

// Active returns a copy of the active conversation, or nil if none is
// selected.
func (s *Store) Active() *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneOrNil(s.findLocked(s.activeID))
}

// ActiveID returns the active conversation's ID, or "".
func (s *Store) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// Get returns a copy of the conversation with the given ID, or nil.
func (s *Store) Get(id string) *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneOrNil(s.findLocked(id))
}

// =============================================================================
// LIST
// =============================================================================

// List returns copies of all conversations, most recently updated first.
func (s *Store) List() []*Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Conversation, len(s.conversations))
	for i, c := range s.conversations {
		out[i] = c.Clone()
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// Len returns the number of conversations.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conversations)
}

// =============================================================================
// MUTATION
// =============================================================================

// AppendToActive appends a message to the active conversation, creating one
// named from the message text when none is active. Returns a copy of the
// conversation the message landed in.
func (s *Store) AppendToActive(msg *Message) *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.findLocked(s.activeID)
	if conv == nil {
		conv = NewConversation(NameFromText(msg.Content))
		s.conversations = append(s.conversations, conv)
		s.activeID = conv.ID
	}
	conv.AddMessage(msg)
	return conv.Clone()
}

// AppendMessage appends a message to the conversation with the given ID.
// Returns false if no such conversation exists.
func (s *Store) AppendMessage(id string, msg *Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.findLocked(id)
	if conv == nil {
		return false
	}
	conv.AddMessage(msg)
	return true
}

// SetLastAssistantContent writes the accumulated streaming buffer into the
// trailing assistant message of the given conversation, appending one first
// if the trailing message has a different role. Returns false if no such
// conversation exists.
func (s *Store) SetLastAssistantContent(id, content string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.findLocked(id)
	if conv == nil {
		return false
	}
	conv.SetLastAssistantContent(content)
	return true
}

// AddSummary appends a summary to the given conversation's history. Returns
// false if no such conversation exists.
func (s *Store) AddSummary(id string, sum Summary) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.findLocked(id)
	if conv == nil {
		return false
	}
	conv.AddSummary(sum)
	return true
}

// Rename changes a conversation's name and refreshes its update timestamp.
// Returns false if no such conversation exists.
func (s *Store) Rename(id, name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.findLocked(id)
	if conv == nil {
		return false
	}
	conv.Name = name
	conv.UpdatedAt = time.Now()
	return true
}

// Delete removes a conversation. Deleting the active conversation clears the
// active selection. Returns false if no such conversation exists.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, conv := range s.conversations {
		if conv.ID == id {
			s.conversations = append(s.conversations[:i], s.conversations[i+1:]...)
			if s.activeID == id {
				s.activeID = ""
			}
			return true
		}
	}
	return false
}

// Add inserts a copy of an existing conversation (used by single-chat
// import).
func (s *Store) Add(conv *Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations = append(s.conversations, conv.Clone())
}

// ReplaceAll swaps the whole collection for copies of the given
// conversations (used by store import and by reconciliation after a degraded
// save). The active selection is kept if the active conversation survives,
// cleared otherwise.
func (s *Store) ReplaceAll(convs []*Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversations = make([]*Conversation, len(convs))
	for i, c := range convs {
		s.conversations[i] = c.Clone()
	}
	if s.findLocked(s.activeID) == nil {
		s.activeID = ""
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func cloneOrNil(c *Conversation) *Conversation {
	if c == nil {
		return nil
	}
	return c.Clone()
}

// findLocked returns the conversation with the given ID. Caller holds mu.
func (s *Store) findLocked(id string) *Conversation {
	if id == "" {
		return nil
	}
	for _, conv := range s.conversations {
		if conv.ID == id {
			return conv
		}
	}
	return nil
}
