// Copyright (C) 2025 Arashek
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/agpl-3.0.html> for the full license text.

// Package presence maintains the live roster and cursor positions of a
// document's participants.
package presence

import (
	"log/slog"

	"github.com/Arashek/ADE-stable-1.0-sub012/services/collab/datatypes"
)

// Tracker mutates document rosters. It holds no state of its own; like
// the engine, it relies on the store's single-writer funnel per
// document, so the zero value is ready to use and safe to share.
type Tracker struct {
	logger *slog.Logger
}

// NewTracker creates a Tracker. logger may be nil, in which case
// slog.Default() is used.
func NewTracker(logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{logger: logger.With(slog.String("component", "presence"))}
}

// UserJoin appends user to the document roster. Idempotent: joining a
// second time with the same id updates name/avatar in place and never
// creates a duplicate entry.
func (t *Tracker) UserJoin(doc *datatypes.Document, user datatypes.User) {
	if existing := doc.FindUser(user.ID); existing != nil {
		existing.Name = user.Name
		existing.Avatar = user.Avatar
		return
	}
	doc.Users = append(doc.Users, user)
	t.logger.Debug("user joined",
		slog.String("document_id", doc.ID),
		slog.String("user_id", user.ID),
		slog.Int("roster_size", len(doc.Users)),
	)
}

// UserLeave removes the matching user from the roster. Unknown ids are
// a no-op.
func (t *Tracker) UserLeave(doc *datatypes.Document, userID string) {
	users := doc.Users[:0]
	for _, u := range doc.Users {
		if u.ID != userID {
			users = append(users, u)
		}
	}
	if len(users) != len(doc.Users) {
		t.logger.Debug("user left",
			slog.String("document_id", doc.ID),
			slog.String("user_id", userID),
			slog.Int("roster_size", len(users)),
		)
	}
	doc.Users = users
}

// CursorMove updates the cursor position for the matching user.
//
// The position is clamped into [0, len(content)]. The cursor color is
// assigned from the deterministic user-id hash on the first move and
// never reassigned afterwards, so a user's color is stable for the
// lifetime of the session.
//
// A move for a user not on the roster is dropped; a user_join for that
// user has either not arrived yet or the user already left. Arrival
// order wins, same as change application.
func (t *Tracker) CursorMove(doc *datatypes.Document, userID string, position int) {
	user := doc.FindUser(userID)
	if user == nil {
		t.logger.Debug("cursor move for unknown user dropped",
			slog.String("document_id", doc.ID),
			slog.String("user_id", userID),
		)
		return
	}

	if position < 0 {
		position = 0
	}
	if position > len(doc.Content) {
		position = len(doc.Content)
	}

	if user.Cursor == nil {
		user.Cursor = &datatypes.Cursor{Color: datatypes.ColorForUser(userID)}
	}
	user.Cursor.Position = position
}

// ClampCursors pulls every roster cursor back into [0, len(content)].
// Called after a change shrinks the content, so no cursor is left
// pointing past the end.
func (t *Tracker) ClampCursors(doc *datatypes.Document) {
	for i := range doc.Users {
		c := doc.Users[i].Cursor
		if c == nil {
			continue
		}
		if c.Position > len(doc.Content) {
			c.Position = len(doc.Content)
		}
		if c.Position < 0 {
			c.Position = 0
		}
	}
}
