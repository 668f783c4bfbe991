// Copyright (C) 2025 Arashek
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/agpl-3.0.html> for the full license text.

package storage

import (
	"context"
	"sync"

	"github.com/Arashek/ADE-stable-1.0-sub012/services/collab/datatypes"
)

// MemoryService is an in-memory Service implementation, used by tests
// and by the CLI's offline mode.
//
// Thread Safety: safe for concurrent use.
type MemoryService struct {
	mu        sync.Mutex
	documents map[string]datatypes.Document
	persisted map[string][]datatypes.Change
	leaves    map[string][]string

	// FailPersist, when set, makes PersistChange return this error.
	// Lets tests exercise the no-rollback persistence path.
	FailPersist error
}

// NewMemoryService creates an empty MemoryService.
func NewMemoryService() *MemoryService {
	return &MemoryService{
		documents: make(map[string]datatypes.Document),
		persisted: make(map[string][]datatypes.Change),
		leaves:    make(map[string][]string),
	}
}

// Seed installs a document so later fetches succeed.
func (s *MemoryService) Seed(doc datatypes.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[doc.ID] = doc
}

// FetchDocument returns a copy of the seeded document.
func (s *MemoryService) FetchDocument(_ context.Context, id string) (*datatypes.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[id]
	if !ok {
		return nil, &datatypes.NotFoundError{DocumentID: id}
	}
	copied := doc
	copied.Users = append([]datatypes.User(nil), doc.Users...)
	for i := range copied.Users {
		if c := copied.Users[i].Cursor; c != nil {
			clone := *c
			copied.Users[i].Cursor = &clone
		}
	}
	copied.Changes = append([]datatypes.Change(nil), doc.Changes...)
	return &copied, nil
}

// PersistChange records the change in memory.
func (s *MemoryService) PersistChange(_ context.Context, id string, change datatypes.Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailPersist != nil {
		return s.FailPersist
	}
	if _, ok := s.documents[id]; !ok {
		return &datatypes.NotFoundError{DocumentID: id}
	}
	s.persisted[id] = append(s.persisted[id], change)
	return nil
}

// NotifyLeave records the departure.
func (s *MemoryService) NotifyLeave(_ context.Context, id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leaves[id] = append(s.leaves[id], userID)
	return nil
}

// PersistedChanges returns the changes recorded for a document.
func (s *MemoryService) PersistedChanges(id string) []datatypes.Change {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]datatypes.Change(nil), s.persisted[id]...)
}

// Leaves returns the user ids whose departure was recorded for a document.
func (s *MemoryService) Leaves(id string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.leaves[id]...)
}
