// Copyright (C) 2025 Arashek
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/agpl-3.0.html> for the full license text.

package datatypes

import "fmt"

// NotFoundError indicates an operation referenced a document id that is
// neither cached locally nor known to the durable store.
type NotFoundError struct {
	DocumentID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("document %q not found", e.DocumentID)
}

// ProtocolError indicates a malformed or unparseable inbound wire
// message. The message is dropped; the connection stays open.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("protocol error: %s", e.Reason)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// PersistenceError indicates the durable-write side channel failed after
// an optimistic local apply. Local state is left mutated; there is no
// automatic rollback.
type PersistenceError struct {
	DocumentID string
	Op         string
	Err        error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persisting %s for document %q: %v", e.Op, e.DocumentID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
