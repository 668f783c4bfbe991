// Copyright (C) 2025 Arashek
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/agpl-3.0.html> for the full license text.

// Package wire defines the tagged message union exchanged over the
// persistent collaboration connection, and its JSON codec.
//
// Every payload is a JSON object carrying a "type" tag. Rather than
// dispatching on the raw tag throughout the codebase, Decode returns one
// of a closed set of message structs; consumers switch exhaustively on
// the concrete type or on Kind().
package wire

import (
	"github.com/Arashek/ADE-stable-1.0-sub012/services/collab/datatypes"
)

// Kind is the wire tag of a message.
type Kind string

const (
	KindChange     Kind = "change"
	KindUserJoin   Kind = "user_join"
	KindUserLeave  Kind = "user_leave"
	KindCursorMove Kind = "cursor_move"
	KindHeartbeat  Kind = "heartbeat"
)

// Kinds lists every message kind, in no particular order. Useful for
// registering handlers across the full set.
func Kinds() []Kind {
	return []Kind{KindChange, KindUserJoin, KindUserLeave, KindCursorMove, KindHeartbeat}
}

// Message is the closed union of wire payloads. The unexported method
// keeps the set closed to this package.
type Message interface {
	Kind() Kind
	isMessage()
}

// ChangeMessage carries a positional text mutation for a document.
type ChangeMessage struct {
	DocumentID string           `json:"documentId" validate:"required"`
	Change     datatypes.Change `json:"change"`
}

func (*ChangeMessage) Kind() Kind { return KindChange }
func (*ChangeMessage) isMessage() {}

// UserJoinMessage announces a user joining a document session.
type UserJoinMessage struct {
	DocumentID string         `json:"documentId" validate:"required"`
	User       datatypes.User `json:"user"`
}

func (*UserJoinMessage) Kind() Kind { return KindUserJoin }
func (*UserJoinMessage) isMessage() {}

// UserLeaveMessage announces a user leaving a document session.
type UserLeaveMessage struct {
	DocumentID string `json:"documentId" validate:"required"`
	UserID     string `json:"userId" validate:"required"`
}

func (*UserLeaveMessage) Kind() Kind { return KindUserLeave }
func (*UserLeaveMessage) isMessage() {}

// CursorMoveMessage carries a user's new cursor position.
type CursorMoveMessage struct {
	DocumentID string `json:"documentId" validate:"required"`
	UserID     string `json:"userId" validate:"required"`
	Position   int    `json:"position" validate:"gte=0"`
}

func (*CursorMoveMessage) Kind() Kind { return KindCursorMove }
func (*CursorMoveMessage) isMessage() {}

// HeartbeatMessage is sent periodically while connected so the server
// can detect dead peers.
type HeartbeatMessage struct {
	Timestamp int64 `json:"timestamp" validate:"required"`
}

func (*HeartbeatMessage) Kind() Kind { return KindHeartbeat }
func (*HeartbeatMessage) isMessage() {}
