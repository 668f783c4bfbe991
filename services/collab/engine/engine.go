// Copyright (C) 2025 Arashek
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/agpl-3.0.html> for the full license text.

// Package engine applies positional text changes to documents.
//
// Changes are applied in arrival order with no positional remapping
// against concurrently in-flight changes from other participants. This
// is last-applied-wins at the offset level, not an OT/CRDT merge: two
// users editing overlapping ranges concurrently can corrupt relative
// offsets. That limitation is inherited from the reference behavior and
// is deliberate; see DESIGN.md.
package engine

import (
	"fmt"

	"github.com/Arashek/ADE-stable-1.0-sub012/services/collab/datatypes"
)

// Splice computes the new content for a change without touching any
// document state. Pure function of (content, change).
//
// Offsets are clamped to the buffer: a position past the end degrades
// an insert to an append, and a span reaching past the end is truncated.
// Out-of-range changes never panic.
func Splice(content string, change datatypes.Change) (string, error) {
	if err := change.Validate(); err != nil {
		return "", fmt.Errorf("engine: %w", err)
	}

	pos := change.Position
	if pos > len(content) {
		pos = len(content)
	}
	end := pos + change.Length
	if end > len(content) {
		end = len(content)
	}

	switch change.Type {
	case datatypes.ChangeInsert:
		return content[:pos] + change.Text + content[pos:], nil
	case datatypes.ChangeDelete:
		return content[:pos] + content[end:], nil
	case datatypes.ChangeReplace:
		return content[:pos] + change.Text + content[end:], nil
	default:
		// Validate already rejected unknown types.
		return "", fmt.Errorf("engine: unknown change type %q", change.Type)
	}
}

// Apply mutates doc in place: recomputes content, appends the change to
// the capped change log, and advances the version by exactly 1.
//
// The caller owns write access to doc. The store funnels all applies for
// a given document through a single writer, so no locking happens here.
func Apply(doc *datatypes.Document, change datatypes.Change) error {
	newContent, err := Splice(doc.Content, change)
	if err != nil {
		return err
	}

	doc.Content = newContent
	doc.Changes = append(doc.Changes, change)
	if len(doc.Changes) > datatypes.MaxChanges {
		// Sliding window of the most recent MaxChanges entries.
		doc.Changes = doc.Changes[len(doc.Changes)-datatypes.MaxChanges:]
	}
	doc.Version++
	return nil
}
