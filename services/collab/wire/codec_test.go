// Copyright (C) 2025 Arashek
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/agpl-3.0.html> for the full license text.

package wire

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Arashek/ADE-stable-1.0-sub012/services/collab/datatypes"
)

func TestEncodeCarriesTypeTag(t *testing.T) {
	data, err := Encode(&CursorMoveMessage{DocumentID: "d1", UserID: "u1", Position: 3})
	require.NoError(t, err)

	var envelope map[string]any
	require.NoError(t, json.Unmarshal(data, &envelope))
	assert.Equal(t, "cursor_move", envelope["type"])
	assert.Equal(t, "d1", envelope["documentId"])
	assert.Equal(t, float64(3), envelope["position"])
}

func TestDecodeDispatchesByKind(t *testing.T) {
	t.Run("change", func(t *testing.T) {
		payload := `{"type":"change","documentId":"d1","change":{"type":"insert","position":5,"text":" world","userId":"u1","timestamp":1700000000000}}`
		msg, err := Decode([]byte(payload))
		require.NoError(t, err)

		m, ok := msg.(*ChangeMessage)
		require.True(t, ok, "expected *ChangeMessage, got %T", msg)
		assert.Equal(t, KindChange, m.Kind())
		assert.Equal(t, datatypes.ChangeInsert, m.Change.Type)
		assert.Equal(t, 5, m.Change.Position)
	})

	t.Run("user_join", func(t *testing.T) {
		payload := `{"type":"user_join","documentId":"d1","user":{"id":"u2","name":"Bea"}}`
		msg, err := Decode([]byte(payload))
		require.NoError(t, err)

		m, ok := msg.(*UserJoinMessage)
		require.True(t, ok)
		assert.Equal(t, "u2", m.User.ID)
	})

	t.Run("user_leave", func(t *testing.T) {
		msg, err := Decode([]byte(`{"type":"user_leave","documentId":"d1","userId":"u2"}`))
		require.NoError(t, err)
		assert.Equal(t, KindUserLeave, msg.Kind())
	})

	t.Run("heartbeat", func(t *testing.T) {
		msg, err := Decode([]byte(`{"type":"heartbeat","timestamp":1700000000000}`))
		require.NoError(t, err)
		m := msg.(*HeartbeatMessage)
		assert.Equal(t, int64(1700000000000), m.Timestamp)
	})
}

func TestDecodeRejectsMalformedInput(t *testing.T) {
	cases := []struct {
		name    string
		payload string
	}{
		{"not json", `{{{`},
		{"missing type tag", `{"documentId":"d1"}`},
		{"unknown type", `{"type":"shrug","documentId":"d1"}`},
		{"change with unknown op", `{"type":"change","documentId":"d1","change":{"type":"rotate","position":0}}`},
		{"change with negative position", `{"type":"change","documentId":"d1","change":{"type":"insert","position":-4,"text":"x"}}`},
		{"cursor_move without user", `{"type":"cursor_move","documentId":"d1","position":2}`},
		{"user_join without user id", `{"type":"user_join","documentId":"d1","user":{"name":"ghost"}}`},
		{"user_leave without document", `{"type":"user_leave","userId":"u1"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := Decode([]byte(tc.payload))
			require.Error(t, err)
			assert.Nil(t, msg)

			var protoErr *datatypes.ProtocolError
			assert.True(t, errors.As(err, &protoErr), "want ProtocolError, got %T: %v", err, err)
		})
	}
}

func TestRoundTripEveryKind(t *testing.T) {
	messages := []Message{
		&ChangeMessage{DocumentID: "d1", Change: datatypes.Change{
			Type: datatypes.ChangeReplace, Position: 2, Length: 3, Text: "abc", UserID: "u1", Timestamp: 42,
		}},
		&UserJoinMessage{DocumentID: "d1", User: datatypes.User{ID: "u1", Name: "Avi"}},
		&UserLeaveMessage{DocumentID: "d1", UserID: "u1"},
		&CursorMoveMessage{DocumentID: "d1", UserID: "u1", Position: 9},
		&HeartbeatMessage{Timestamp: 99},
	}

	for _, original := range messages {
		t.Run(string(original.Kind()), func(t *testing.T) {
			data, err := Encode(original)
			require.NoError(t, err)

			decoded, err := Decode(data)
			require.NoError(t, err)
			assert.Equal(t, original, decoded)
		})
	}
}
