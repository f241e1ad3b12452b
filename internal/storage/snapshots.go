// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides snapshot persistence for the conversation store.
package storage

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/jeranaias/ollachat/internal/model"
)

// =============================================================================
// STORAGE KEYS
// =============================================================================

// Keys in the backend key space. The active id is stored as a bare string;
// everything else is JSON-encoded.
const (
	keyChats      = "chats"
	keyActiveChat = "active_chat"
	keySettings   = "settings"
	keyBackup     = "chats_backup"
	keyBackupTime = "chats_backup_time"
)

// =============================================================================
// LIMITS
// =============================================================================

// Limits bounds what a snapshot may hold. Zero values are filled in from
// DefaultLimits.
type Limits struct {
	// MaxConversations is the conversation count ceiling; the least recently
	// updated are evicted on save.
	MaxConversations int

	// MaxMessages caps messages per conversation; the oldest are trimmed.
	MaxMessages int

	// MaxBytes is the serialized snapshot size ceiling that triggers a
	// degraded save.
	MaxBytes int

	// DegradedMaxMessages is the per-conversation message cap applied by a
	// degraded save.
	DegradedMaxMessages int

	// BackupInterval is the minimum time between backup refreshes,
	// bounding backup-write frequency independent of mutation frequency.
	BackupInterval time.Duration
}

// DefaultLimits returns the default snapshot bounds.
func DefaultLimits() Limits {
	return Limits{
		MaxConversations:    100,
		MaxMessages:         100,
		MaxBytes:            10 << 20, // 10 MiB
		DegradedMaxMessages: 50,
		BackupInterval:      5 * time.Minute,
	}
}

func (l *Limits) fillDefaults() {
	d := DefaultLimits()
	if l.MaxConversations == 0 {
		l.MaxConversations = d.MaxConversations
	}
	if l.MaxMessages == 0 {
		l.MaxMessages = d.MaxMessages
	}
	if l.MaxBytes == 0 {
		l.MaxBytes = d.MaxBytes
	}
	if l.DegradedMaxMessages == 0 {
		l.DegradedMaxMessages = d.DegradedMaxMessages
	}
	if l.BackupInterval == 0 {
		l.BackupInterval = d.BackupInterval
	}
}

// =============================================================================
// SNAPSHOTS
// =============================================================================

// Snapshots persists whole-store snapshots through a Backend, enforcing the
// capacity bounds and maintaining a time-gated backup copy.
type Snapshots struct {
	backend Backend
	limits  Limits

	// now is swappable for backup-gate tests.
	now func() time.Time
}

// SaveInfo reports what a save actually did, so the caller can both
// reconcile in-memory state and tell the user when data was trimmed.
type SaveInfo struct {
	// Trimmed is true when conversations or messages were dropped to meet
	// the count bounds.
	Trimmed bool

	// Degraded is true when the byte ceiling forced a reduced snapshot.
	Degraded bool

	// Persisted is the number of conversations written.
	Persisted int

	// BackupRefreshed is true when the backup copy was rewritten.
	BackupRefreshed bool
}

// NewSnapshots creates a snapshot writer over the given backend.
func NewSnapshots(backend Backend, limits Limits) *Snapshots {
	limits.fillDefaults()
	return &Snapshots{
		backend: backend,
		limits:  limits,
		now:     time.Now,
	}
}

// Limits returns the active bounds.
func (s *Snapshots) Limits() Limits {
	return s.limits
}

// =============================================================================
// SAVE
// =============================================================================

// Save persists a snapshot of the given conversations, applying the trimming
// invariants: per-conversation message trim first, then conversation-count
// eviction (least recently updated dropped), then the byte ceiling. If the
// serialized snapshot exceeds the ceiling, a degraded save halves the
// conversation count (keeping the most recent) and caps messages at the
// degraded floor, halving again until the snapshot fits.
//
// The returned slice is what was actually persisted; callers reconcile the
// in-memory store against it when SaveInfo reports trimming. The input is
// never mutated.
func (s *Snapshots) Save(convs []*model.Conversation) ([]*model.Conversation, SaveInfo, error) {
	var info SaveInfo

	kept := make([]*model.Conversation, len(convs))
	for i, c := range convs {
		kept[i] = c.Clone()
	}

	// Message trim, then conversation-count trim.
	for _, c := range kept {
		if trimOldestMessages(c, s.limits.MaxMessages) {
			info.Trimmed = true
		}
	}
	sortByUpdatedDesc(kept)
	if len(kept) > s.limits.MaxConversations {
		kept = kept[:s.limits.MaxConversations]
		info.Trimmed = true
	}

	data, err := json.Marshal(kept)
	if err != nil {
		return nil, info, err
	}

	// Degraded save: the overflow never surfaces as an error.
	for len(data) > s.limits.MaxBytes && len(kept) > 0 {
		info.Degraded = true
		info.Trimmed = true

		half := (len(kept) + 1) / 2
		kept = kept[:half]
		for _, c := range kept {
			trimOldestMessages(c, s.limits.DegradedMaxMessages)
		}

		data, err = json.Marshal(kept)
		if err != nil {
			return nil, info, err
		}
		if half == 1 && len(data) > s.limits.MaxBytes {
			// A single capped conversation still over the ceiling: persist
			// it anyway rather than losing everything.
			break
		}
	}

	if err := s.backend.Set(keyChats, data); err != nil {
		return nil, info, err
	}
	info.Persisted = len(kept)

	info.BackupRefreshed = s.maybeRefreshBackup(data)
	return kept, info, nil
}

// maybeRefreshBackup rewrites the backup copy when the minimum interval since
// the previous backup has elapsed. Backup failures are swallowed: the primary
// save already succeeded.
func (s *Snapshots) maybeRefreshBackup(data []byte) bool {
	if raw, ok, err := s.backend.Get(keyBackupTime); err == nil && ok {
		if last, perr := time.Parse(time.RFC3339, strings.TrimSpace(string(raw))); perr == nil {
			if s.now().Sub(last) < s.limits.BackupInterval {
				return false
			}
		}
	}

	if err := s.backend.Set(keyBackup, data); err != nil {
		return false
	}
	s.backend.Set(keyBackupTime, []byte(s.now().Format(time.RFC3339)))
	return true
}

// =============================================================================
// LOAD
// =============================================================================

// Load reads the persisted snapshot. An absent primary is a first run and
// returns an empty collection without consulting the backup; a primary that
// exists but fails to read or parse falls back to the backup copy. If the
// backup is unusable too, an empty collection is returned. Load never fails.
// recovered reports that the backup was used.
//
// The result is ordered most recently updated first.
func (s *Snapshots) Load() (convs []*model.Conversation, recovered bool) {
	data, found, err := s.backend.Get(keyChats)
	if err == nil && !found {
		return []*model.Conversation{}, false
	}
	if err == nil {
		if convs, ok := parseSnapshot(data); ok {
			sortByUpdatedDesc(convs)
			return convs, false
		}
	}
	if convs, ok := s.loadKey(keyBackup); ok {
		sortByUpdatedDesc(convs)
		return convs, true
	}
	return []*model.Conversation{}, false
}

// loadKey reads and parses one snapshot key. ok is false when the key is
// absent, unreadable, or does not parse.
func (s *Snapshots) loadKey(key string) ([]*model.Conversation, bool) {
	data, ok, err := s.backend.Get(key)
	if err != nil || !ok {
		return nil, false
	}
	return parseSnapshot(data)
}

func parseSnapshot(data []byte) ([]*model.Conversation, bool) {
	var convs []*model.Conversation
	if err := json.Unmarshal(data, &convs); err != nil {
		return nil, false
	}
	if convs == nil {
		convs = []*model.Conversation{}
	}
	return convs, true
}

// =============================================================================
// ACTIVE CONVERSATION ID
// =============================================================================

// SaveActiveID persists the active conversation id as a bare string. An
// empty id removes the key.
func (s *Snapshots) SaveActiveID(id string) error {
	if id == "" {
		return s.backend.Remove(keyActiveChat)
	}
	return s.backend.Set(keyActiveChat, []byte(id))
}

// LoadActiveID returns the persisted active conversation id, or "".
func (s *Snapshots) LoadActiveID() string {
	data, ok, err := s.backend.Get(keyActiveChat)
	if err != nil || !ok {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// =============================================================================
// SETTINGS
// =============================================================================

// SaveSettings persists the settings singleton. Best-effort for callers:
// the returned error is informational.
func (s *Snapshots) SaveSettings(settings model.Settings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	return s.backend.Set(keySettings, data)
}

// LoadSettings returns the persisted settings. ok is false when nothing
// usable is stored; the caller applies defaults. Never fails.
func (s *Snapshots) LoadSettings() (settings model.Settings, ok bool) {
	data, found, err := s.backend.Get(keySettings)
	if err != nil || !found {
		return model.Settings{}, false
	}
	if err := json.Unmarshal(data, &settings); err != nil {
		return model.Settings{}, false
	}
	settings.Clamp()
	return settings, true
}

// =============================================================================
// HELPERS
// =============================================================================

// trimOldestMessages drops the oldest messages beyond max. Reports whether
// anything was dropped.
func trimOldestMessages(c *model.Conversation, max int) bool {
	if len(c.Messages) <= max {
		return false
	}
	c.Messages = c.Messages[len(c.Messages)-max:]
	return true
}

func sortByUpdatedDesc(convs []*model.Conversation) {
	sort.SliceStable(convs, func(i, j int) bool {
		return convs[i].UpdatedAt.After(convs[j].UpdatedAt)
	})
}
