// Copyright (C) 2025 Arashek
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/agpl-3.0.html> for the full license text.

package datatypes

import "fmt"

// ChangeType identifies the kind of positional mutation a Change carries.
type ChangeType string

const (
	// ChangeInsert inserts Text at Position.
	ChangeInsert ChangeType = "insert"

	// ChangeDelete removes Length characters starting at Position.
	ChangeDelete ChangeType = "delete"

	// ChangeReplace removes Length characters at Position and inserts Text.
	ChangeReplace ChangeType = "replace"
)

// Valid reports whether t is one of the three known change types.
func (t ChangeType) Valid() bool {
	switch t {
	case ChangeInsert, ChangeDelete, ChangeReplace:
		return true
	}
	return false
}

// Change is an atomic positional text mutation.
//
// Position is a 0-based offset into the document content. Text is the
// payload for insert/replace; Length is the span removed for
// delete/replace. Timestamp is unix milliseconds at the origin client.
type Change struct {
	Type      ChangeType `json:"type"`
	Position  int        `json:"position"`
	Text      string     `json:"text,omitempty"`
	Length    int        `json:"length,omitempty"`
	UserID    string     `json:"userId"`
	Timestamp int64      `json:"timestamp"`
}

// Validate checks structural validity of the change. It does not check
// the position against any particular document content; the engine
// clamps offsets at apply time.
func (c Change) Validate() error {
	if !c.Type.Valid() {
		return fmt.Errorf("unknown change type %q", c.Type)
	}
	if c.Position < 0 {
		return fmt.Errorf("negative position %d", c.Position)
	}
	if c.Length < 0 {
		return fmt.Errorf("negative length %d", c.Length)
	}
	return nil
}
