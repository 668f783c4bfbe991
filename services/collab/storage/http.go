// Copyright (C) 2025 Arashek
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/agpl-3.0.html> for the full license text.

package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Arashek/ADE-stable-1.0-sub012/services/collab/datatypes"
)

// HTTPConfig holds configuration for creating an HTTPService.
type HTTPConfig struct {
	// BaseURL is the root of the document store API,
	// e.g. "http://localhost:8090".
	BaseURL string

	// HTTPClient is used for all requests. If nil, a client with a
	// 15-second timeout is used.
	HTTPClient *http.Client

	// Logger is used for structured logging. If nil, slog.Default().
	Logger *slog.Logger
}

// HTTPService talks JSON over request/response to the document store.
type HTTPService struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPService creates an HTTPService from config.
func NewHTTPService(config HTTPConfig) (*HTTPService, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("storage: BaseURL is required")
	}
	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, fmt.Errorf("storage: invalid BaseURL %q: %w", config.BaseURL, err)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &HTTPService{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		httpClient: httpClient,
		logger:     logger.With(slog.String("component", "document_storage")),
	}, nil
}

// FetchDocument loads a document by id.
func (s *HTTPService) FetchDocument(ctx context.Context, id string) (*datatypes.Document, error) {
	body, err := s.doRequest(ctx, http.MethodGet, "/documents/"+url.PathEscape(id), nil, id)
	if err != nil {
		return nil, err
	}

	var doc datatypes.Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("storage: parsing document %q: %w", id, err)
	}
	return &doc, nil
}

// PersistChange records an applied change.
func (s *HTTPService) PersistChange(ctx context.Context, id string, change datatypes.Change) error {
	path := "/documents/" + url.PathEscape(id) + "/changes"
	_, err := s.doRequest(ctx, http.MethodPost, path, change, id)
	return err
}

// NotifyLeave tells the store a user left.
func (s *HTTPService) NotifyLeave(ctx context.Context, id, userID string) error {
	path := "/documents/" + url.PathEscape(id) + "/leave"
	_, err := s.doRequest(ctx, http.MethodPost, path, map[string]string{"userId": userID}, id)
	return err
}

// doRequest performs one JSON request and returns the response body.
// 404 maps to *datatypes.NotFoundError; other non-2xx statuses return a
// generic error with the status and a body excerpt.
func (s *HTTPService) doRequest(ctx context.Context, method, path string, requestBody any, documentID string) ([]byte, error) {
	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("storage: encoding request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("storage: creating request: %w", err)
	}
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := s.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("storage: %s %s failed: %w", method, path, err)
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(io.LimitReader(response.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("storage: reading response body: %w", err)
	}

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return responseBody, nil
	}
	if response.StatusCode == http.StatusNotFound {
		return nil, &datatypes.NotFoundError{DocumentID: documentID}
	}

	excerpt := string(responseBody)
	if len(excerpt) > 256 {
		excerpt = excerpt[:256]
	}
	return nil, fmt.Errorf("storage: %s %s returned %d: %s", method, path, response.StatusCode, excerpt)
}
