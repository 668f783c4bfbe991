// Copyright (C) 2025 Arashek
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/agpl-3.0.html> for the full license text.

// Package datatypes defines the shared data model for the collaboration
// sync core: documents, positional changes, users, and cursors.
//
// All mutation of a Document goes through the engine and presence
// packages; nothing here holds locks. The store funnels every write to a
// given document through a single writer.
package datatypes

import (
	"hash/fnv"
	"strconv"
	"time"
)

// MaxChanges is the sliding window of retained changes per document.
// When the log exceeds this, the oldest entries are evicted first.
const MaxChanges = 1000

// Document is a shared, versioned text buffer plus its roster of
// connected users.
//
// Version increases by exactly 1 for every successfully applied change,
// local or remote: after n applies, Version == (version at join) + n.
type Document struct {
	ID       string   `json:"id"`
	Content  string   `json:"content"`
	Language string   `json:"language,omitempty"`
	Users    []User   `json:"users"`
	Changes  []Change `json:"changes"`
	Version  int64    `json:"version"`

	// FetchedAt records when the document was last fetched from the
	// durable store. Set by the document store for TTL bookkeeping.
	FetchedAt time.Time `json:"-"`
}

// FindUser returns a pointer to the user with the given id, or nil.
func (d *Document) FindUser(userID string) *User {
	for i := range d.Users {
		if d.Users[i].ID == userID {
			return &d.Users[i]
		}
	}
	return nil
}

// User is a participant in a document session.
type User struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Avatar string  `json:"avatar,omitempty"`
	Cursor *Cursor `json:"cursor,omitempty"`
}

// Cursor is a user's live position within a document's content.
type Cursor struct {
	Position int    `json:"position"`
	Color    string `json:"color"`
}

// ColorForUser derives a stable presence color from a user id.
//
// The hue is an FNV-1a hash of the id reduced mod 360, so the same id
// always yields the same color within (and across) process lifetimes.
func ColorForUser(userID string) string {
	h := fnv.New32a()
	h.Write([]byte(userID))
	hue := h.Sum32() % 360
	return "hsl(" + strconv.FormatUint(uint64(hue), 10) + ", 70%, 50%)"
}
