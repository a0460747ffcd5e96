// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Biogate Contributors

package lockout

import (
	"context"
	"sync"

	"github.com/biogate/biogate/internal/biometric"
)

// MemoryStore keeps flags in process memory. It is not durable and exists
// for tests and ephemeral runs.
type MemoryStore struct {
	mu    sync.RWMutex
	flags map[string]struct{}
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{flags: make(map[string]struct{})}
}

// SetPermanentlyLocked implements Store.
func (s *MemoryStore) SetPermanentlyLocked(_ context.Context, t biometric.Type) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags[Key(t)] = struct{}{}
	return nil
}

// IsPermanentlyLocked implements Store.
func (s *MemoryStore) IsPermanentlyLocked(_ context.Context, t biometric.Type) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.flags[Key(t)]
	return ok, nil
}

// Reset implements Store.
func (s *MemoryStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.flags)
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
