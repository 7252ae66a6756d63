package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MemoryCredentialStore keeps whole records in process memory. It backs
// tests and single-node embeddings; durable deployments use the SQL store.
type MemoryCredentialStore struct {
	mu      sync.Mutex
	entries map[string]CredentialRecord
}

func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{
		entries: map[string]CredentialRecord{},
	}
}

func (s *MemoryCredentialStore) Save(_ context.Context, record CredentialRecord) error {
	if s == nil {
		return fmt.Errorf("core: credential store is not configured")
	}
	record = record.Normalize()
	if record.PrincipalID == "" {
		return ErrEmptyPrincipalID
	}

	s.mu.Lock()
	if s.entries == nil {
		s.entries = map[string]CredentialRecord{}
	}
	s.entries[record.PrincipalID] = record.Clone()
	s.mu.Unlock()

	return nil
}

func (s *MemoryCredentialStore) GetByPrincipal(_ context.Context, principalID string) (CredentialRecord, error) {
	if s == nil {
		return CredentialRecord{}, fmt.Errorf("core: credential store is not configured")
	}
	principalID = strings.TrimSpace(principalID)
	if principalID == "" {
		return CredentialRecord{}, ErrEmptyPrincipalID
	}

	s.mu.Lock()
	record, ok := s.entries[principalID]
	s.mu.Unlock()

	if !ok {
		return CredentialRecord{}, NewRecordNotFoundError(principalID)
	}
	return record.Clone(), nil
}

func (s *MemoryCredentialStore) Delete(_ context.Context, principalID string) error {
	if s == nil {
		return fmt.Errorf("core: credential store is not configured")
	}
	principalID = strings.TrimSpace(principalID)
	if principalID == "" {
		return ErrEmptyPrincipalID
	}

	s.mu.Lock()
	delete(s.entries, principalID)
	s.mu.Unlock()

	return nil
}

var _ CredentialStore = (*MemoryCredentialStore)(nil)
