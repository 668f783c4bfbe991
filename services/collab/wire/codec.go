// Copyright (C) 2025 Arashek
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/agpl-3.0.html> for the full license text.

package wire

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/Arashek/ADE-stable-1.0-sub012/services/collab/datatypes"
)

// validate holds the shared validator instance. validator.Validate
// caches struct metadata and is safe for concurrent use.
var validate = validator.New(validator.WithRequiredStructEnabled())

// Encode serializes a message to its JSON envelope form, with the
// "type" tag spliced alongside the payload fields.
func Encode(m Message) ([]byte, error) {
	switch v := m.(type) {
	case *ChangeMessage:
		return json.Marshal(struct {
			Type Kind `json:"type"`
			*ChangeMessage
		}{KindChange, v})
	case *UserJoinMessage:
		return json.Marshal(struct {
			Type Kind `json:"type"`
			*UserJoinMessage
		}{KindUserJoin, v})
	case *UserLeaveMessage:
		return json.Marshal(struct {
			Type Kind `json:"type"`
			*UserLeaveMessage
		}{KindUserLeave, v})
	case *CursorMoveMessage:
		return json.Marshal(struct {
			Type Kind `json:"type"`
			*CursorMoveMessage
		}{KindCursorMove, v})
	case *HeartbeatMessage:
		return json.Marshal(struct {
			Type Kind `json:"type"`
			*HeartbeatMessage
		}{KindHeartbeat, v})
	default:
		return nil, fmt.Errorf("wire: cannot encode message of type %T", m)
	}
}

// Decode parses an inbound payload into its typed message.
//
// Any failure — malformed JSON, a missing or unknown type tag, or a
// payload that fails field validation — returns a
// *datatypes.ProtocolError. Callers drop the message and keep the
// connection open.
func Decode(data []byte) (Message, error) {
	var head struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, &datatypes.ProtocolError{Reason: "malformed message envelope", Err: err}
	}

	var msg Message
	switch head.Type {
	case KindChange:
		m := &ChangeMessage{}
		if err := json.Unmarshal(data, m); err != nil {
			return nil, &datatypes.ProtocolError{Reason: "malformed change payload", Err: err}
		}
		if err := m.Change.Validate(); err != nil {
			return nil, &datatypes.ProtocolError{Reason: "invalid change", Err: err}
		}
		msg = m
	case KindUserJoin:
		m := &UserJoinMessage{}
		if err := json.Unmarshal(data, m); err != nil {
			return nil, &datatypes.ProtocolError{Reason: "malformed user_join payload", Err: err}
		}
		if m.User.ID == "" {
			return nil, &datatypes.ProtocolError{Reason: "user_join missing user id"}
		}
		msg = m
	case KindUserLeave:
		m := &UserLeaveMessage{}
		if err := json.Unmarshal(data, m); err != nil {
			return nil, &datatypes.ProtocolError{Reason: "malformed user_leave payload", Err: err}
		}
		msg = m
	case KindCursorMove:
		m := &CursorMoveMessage{}
		if err := json.Unmarshal(data, m); err != nil {
			return nil, &datatypes.ProtocolError{Reason: "malformed cursor_move payload", Err: err}
		}
		msg = m
	case KindHeartbeat:
		m := &HeartbeatMessage{}
		if err := json.Unmarshal(data, m); err != nil {
			return nil, &datatypes.ProtocolError{Reason: "malformed heartbeat payload", Err: err}
		}
		msg = m
	case "":
		return nil, &datatypes.ProtocolError{Reason: "message missing type tag"}
	default:
		return nil, &datatypes.ProtocolError{Reason: fmt.Sprintf("unknown message type %q", head.Type)}
	}

	if err := validate.Struct(msg); err != nil {
		return nil, &datatypes.ProtocolError{Reason: "message failed validation", Err: err}
	}
	return msg, nil
}
