// Copyright (C) 2025 Arashek
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/agpl-3.0.html> for the full license text.

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Arashek/ADE-stable-1.0-sub012/services/collab/datatypes"
)

func TestFetchDocument(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/documents/doc-1" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(datatypes.Document{
			ID: "doc-1", Content: "hello", Language: "go", Version: 5,
		})
	}))
	defer server.Close()

	svc, err := NewHTTPService(HTTPConfig{BaseURL: server.URL})
	require.NoError(t, err)

	doc, err := svc.FetchDocument(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "hello", doc.Content)
	assert.Equal(t, int64(5), doc.Version)
}

func TestFetchDocumentNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	svc, err := NewHTTPService(HTTPConfig{BaseURL: server.URL})
	require.NoError(t, err)

	_, err = svc.FetchDocument(context.Background(), "ghost")
	var nf *datatypes.NotFoundError
	require.True(t, errors.As(err, &nf), "want NotFoundError, got %v", err)
	assert.Equal(t, "ghost", nf.DocumentID)
}

func TestPersistChangePostsJSON(t *testing.T) {
	var received datatypes.Change
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/documents/doc-1/changes", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	svc, err := NewHTTPService(HTTPConfig{BaseURL: server.URL})
	require.NoError(t, err)

	change := datatypes.Change{Type: datatypes.ChangeInsert, Position: 2, Text: "x", UserID: "u1"}
	require.NoError(t, svc.PersistChange(context.Background(), "doc-1", change))
	assert.Equal(t, change, received)
}

func TestServerErrorSurfaced(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	svc, err := NewHTTPService(HTTPConfig{BaseURL: server.URL})
	require.NoError(t, err)

	err = svc.NotifyLeave(context.Background(), "doc-1", "u1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestNewHTTPServiceRequiresBaseURL(t *testing.T) {
	_, err := NewHTTPService(HTTPConfig{})
	require.Error(t, err)
}
