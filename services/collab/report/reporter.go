// Copyright (C) 2025 Arashek
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/agpl-3.0.html> for the full license text.

// Package report is the seam to the centralized error-reporting
// collaborator. The sync core forwards application-layer faults here
// with severity and context before re-surfacing them to its caller; it
// never composes user-facing error text itself.
package report

import (
	"context"
	"log/slog"
	"sync"
)

// Severity classifies a reported error.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// String returns the lowercase severity name.
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Reporter receives application-layer faults. Implementations must be
// safe for concurrent use and must not block the caller for long;
// reports are fired from hot paths.
type Reporter interface {
	Report(ctx context.Context, err error, severity Severity, fields map[string]any)
}

// SlogReporter logs reports through a structured logger. It is the
// default collaborator when no external reporting backend is wired in.
type SlogReporter struct {
	logger *slog.Logger
}

// NewSlogReporter creates a SlogReporter. logger may be nil, in which
// case slog.Default() is used.
func NewSlogReporter(logger *slog.Logger) *SlogReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogReporter{logger: logger.With(slog.String("component", "error_report"))}
}

// Report logs the error at a level mapped from its severity.
func (r *SlogReporter) Report(ctx context.Context, err error, severity Severity, fields map[string]any) {
	attrs := make([]any, 0, 2+2*len(fields))
	attrs = append(attrs, slog.String("severity", severity.String()), slog.Any("error", err))
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}

	switch severity {
	case SeverityLow:
		r.logger.DebugContext(ctx, "error reported", attrs...)
	case SeverityMedium:
		r.logger.WarnContext(ctx, "error reported", attrs...)
	default:
		r.logger.ErrorContext(ctx, "error reported", attrs...)
	}
}

// Entry is a single captured report.
type Entry struct {
	Err      error
	Severity Severity
	Fields   map[string]any
}

// Recorder captures reports for assertions in tests.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Report records the entry.
func (r *Recorder) Report(_ context.Context, err error, severity Severity, fields map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{Err: err, Severity: severity, Fields: fields})
}

// Entries returns a copy of everything reported so far.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Count returns the number of captured reports.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
