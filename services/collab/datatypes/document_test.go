// Copyright (C) 2025 Arashek
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/agpl-3.0.html> for the full license text.

package datatypes

import (
	"errors"
	"strings"
	"testing"
)

func TestColorForUser(t *testing.T) {
	t.Run("is deterministic", func(t *testing.T) {
		a := ColorForUser("u1")
		b := ColorForUser("u1")
		if a != b {
			t.Errorf("color not stable: %s != %s", a, b)
		}
	})

	t.Run("produces an hsl color", func(t *testing.T) {
		c := ColorForUser("someone")
		if !strings.HasPrefix(c, "hsl(") || !strings.HasSuffix(c, ", 70%, 50%)") {
			t.Errorf("unexpected color format: %s", c)
		}
	})

	t.Run("different ids usually differ", func(t *testing.T) {
		if ColorForUser("alice") == ColorForUser("bob") {
			t.Log("hash collision between alice and bob (allowed, hue space is 360)")
		}
	})
}

func TestChangeValidate(t *testing.T) {
	cases := []struct {
		name    string
		change  Change
		wantErr bool
	}{
		{"valid insert", Change{Type: ChangeInsert, Position: 0, Text: "x"}, false},
		{"valid delete", Change{Type: ChangeDelete, Position: 3, Length: 2}, false},
		{"valid replace", Change{Type: ChangeReplace, Position: 1, Length: 1, Text: "y"}, false},
		{"unknown type", Change{Type: "move", Position: 0}, true},
		{"negative position", Change{Type: ChangeInsert, Position: -1}, true},
		{"negative length", Change{Type: ChangeDelete, Position: 0, Length: -2}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.change.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestFindUser(t *testing.T) {
	doc := &Document{Users: []User{{ID: "u1"}, {ID: "u2", Name: "Bea"}}}

	if u := doc.FindUser("u2"); u == nil || u.Name != "Bea" {
		t.Errorf("FindUser(u2) = %+v, want Bea", u)
	}
	if u := doc.FindUser("u3"); u != nil {
		t.Errorf("FindUser(u3) = %+v, want nil", u)
	}

	// The returned pointer aliases the roster entry.
	doc.FindUser("u1").Name = "Avi"
	if doc.Users[0].Name != "Avi" {
		t.Error("FindUser should return a pointer into the roster")
	}
}

func TestErrorTaxonomy(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		err := error(&NotFoundError{DocumentID: "doc-1"})
		var nf *NotFoundError
		if !errors.As(err, &nf) || nf.DocumentID != "doc-1" {
			t.Errorf("errors.As failed on %v", err)
		}
	})

	t.Run("persistence wraps cause", func(t *testing.T) {
		cause := errors.New("boom")
		err := error(&PersistenceError{DocumentID: "doc-1", Op: "change", Err: cause})
		if !errors.Is(err, cause) {
			t.Errorf("expected %v to wrap %v", err, cause)
		}
	})

	t.Run("protocol without cause", func(t *testing.T) {
		err := &ProtocolError{Reason: "unknown message type"}
		if err.Error() != "protocol error: unknown message type" {
			t.Errorf("unexpected message: %s", err.Error())
		}
	})
}
