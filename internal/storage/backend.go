// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides snapshot persistence for the conversation store.
package storage

import (
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/jeranaias/ollachat/internal/util"
)

// =============================================================================
// BACKEND PORT
// =============================================================================

// Backend is the key/value port the persistence layer writes through. It is
// injected rather than ambient so tests can run against an in-memory fake.
type Backend interface {
	// Get returns the value for key. ok is false when the key is absent.
	Get(key string) (value []byte, ok bool, err error)

	// Set stores value under key. The write must be atomic: a concurrent or
	// crashed reader sees either the previous value or the new one.
	Set(key string, value []byte) error

	// Remove deletes key. Removing an absent key is not an error.
	Remove(key string) error
}

// =============================================================================
// FILE BACKEND
// =============================================================================

// keyPattern restricts keys to names that are safe as file names.
var keyPattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// FileBackend stores each key as one file in a directory.
type FileBackend struct {
	dir string
}

// NewFileBackend creates a backend rooted at dir, creating it if needed.
func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &FileBackend{dir: dir}, nil
}

// Dir returns the backing directory.
func (b *FileBackend) Dir() string {
	return b.dir
}

// Get implements Backend.
func (b *FileBackend) Get(key string) ([]byte, bool, error) {
	path, err := b.path(key)
	if err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// Set implements Backend using an atomic write.
func (b *FileBackend) Set(key string, value []byte) error {
	path, err := b.path(key)
	if err != nil {
		return err
	}
	return util.AtomicWriteFile(path, value, 0600)
}

// Remove implements Backend.
func (b *FileBackend) Remove(key string) error {
	path, err := b.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (b *FileBackend) path(key string) (string, error) {
	if !keyPattern.MatchString(key) {
		return "", &BackendError{Message: "invalid storage key: " + key}
	}
	return filepath.Join(b.dir, key+".json"), nil
}

// BackendError represents a storage backend failure.
type BackendError struct {
	Message string
}

func (e *BackendError) Error() string {
	return e.Message
}

// =============================================================================
// MEMORY BACKEND
// =============================================================================

// MemBackend is an in-memory Backend for tests.
type MemBackend struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMemBackend creates an empty in-memory backend.
func NewMemBackend() *MemBackend {
	return &MemBackend{data: make(map[string][]byte)}
}

// Get implements Backend.
func (b *MemBackend) Get(key string) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// Set implements Backend.
func (b *MemBackend) Set(key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[key] = append([]byte(nil), value...)
	return nil
}

// Remove implements Backend.
func (b *MemBackend) Remove(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.data, key)
	return nil
}
