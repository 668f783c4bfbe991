// Copyright (C) 2025 Arashek
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/agpl-3.0.html> for the full license text.

// Package storage is the request/response side channel to the durable
// document store. It runs alongside the push connection so that writes
// survive even if the push channel briefly drops. The sync core keeps
// no on-disk state of its own; durability lives behind this interface.
package storage

import (
	"context"

	"github.com/Arashek/ADE-stable-1.0-sub012/services/collab/datatypes"
)

// Service is the durable document store collaborator.
type Service interface {
	// FetchDocument loads a document by id. Unknown ids return
	// *datatypes.NotFoundError.
	FetchDocument(ctx context.Context, id string) (*datatypes.Document, error)

	// PersistChange records an applied change for a document.
	PersistChange(ctx context.Context, id string, change datatypes.Change) error

	// NotifyLeave tells the store a user left a document. Callers treat
	// failures as best-effort.
	NotifyLeave(ctx context.Context, id, userID string) error
}
