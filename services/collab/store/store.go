// Copyright (C) 2025 Arashek
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/agpl-3.0.html> for the full license text.

// Package store is the façade over the collaboration sync core. It owns
// the in-memory document cache, funnels every mutation of a document
// through a per-document lock, and coordinates the engine, presence
// tracker, durable storage, and the live connection.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Arashek/ADE-stable-1.0-sub012/services/collab/connection"
	"github.com/Arashek/ADE-stable-1.0-sub012/services/collab/datatypes"
	"github.com/Arashek/ADE-stable-1.0-sub012/services/collab/engine"
	"github.com/Arashek/ADE-stable-1.0-sub012/services/collab/presence"
	"github.com/Arashek/ADE-stable-1.0-sub012/services/collab/report"
	"github.com/Arashek/ADE-stable-1.0-sub012/services/collab/storage"
	"github.com/Arashek/ADE-stable-1.0-sub012/services/collab/wire"
)

// Sender transmits outbound collaboration messages. *connection.Manager
// satisfies it; a nil sender runs the store in local-only mode.
type Sender interface {
	Send(msg wire.Message) error
}

// Session is the inbound side of the live connection: the surface
// Attach needs to subscribe to remote events.
type Session interface {
	Sender
	On(kind wire.Kind, handler connection.Handler)
}

// Config holds document store settings.
type Config struct {
	// CacheTTL is how long a fetched document stays fresh. A join after
	// expiry refetches from the durable store. Defaults to 5 minutes.
	CacheTTL time.Duration

	// EnableMetrics turns on OpenTelemetry counters and histograms.
	EnableMetrics bool
}

// ApplyDefaults fills zero values with defaults.
func (c *Config) ApplyDefaults() {
	if c.CacheTTL <= 0 {
		c.CacheTTL = 5 * time.Minute
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.CacheTTL <= 0 {
		return fmt.Errorf("cache TTL must be positive, got %v", c.CacheTTL)
	}
	return nil
}

// entry pairs a cached document with its write lock. Every mutation of
// the document goes through mu, which is what upholds the one-increment-
// per-apply version invariant under concurrent local and remote edits.
type entry struct {
	mu  sync.Mutex
	doc *datatypes.Document
}

// Store caches documents fetched from durable storage and applies
// local and remote mutations to them.
//
// Thread Safety: safe for concurrent use.
type Store struct {
	config   Config
	logger   *slog.Logger
	storage  storage.Service
	presence *presence.Tracker
	reporter report.Reporter

	group singleflight.Group

	// mu guards docs and sender. Attach may race with in-flight sends
	// from the persist and handler goroutines.
	mu     sync.RWMutex
	sender Sender
	docs   map[string]*entry

	persistWG   sync.WaitGroup
	persistErrs chan error
}

// Option configures a Store.
type Option func(*Store)

// WithSender wires the live connection for outbound echo of local
// operations.
func WithSender(s Sender) Option {
	return func(st *Store) { st.sender = s }
}

// WithReporter supplies the error-reporting collaborator.
func WithReporter(r report.Reporter) Option {
	return func(st *Store) { st.reporter = r }
}

// NewStore creates a Store backed by the given durable storage service.
// logger may be nil, in which case slog.Default() is used.
func NewStore(config Config, logger *slog.Logger, svc storage.Service, opts ...Option) (*Store, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if svc == nil {
		return nil, errors.New("storage service is required")
	}

	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "document_store"))

	s := &Store{
		config:      config,
		logger:      logger,
		storage:     svc,
		presence:    presence.NewTracker(logger),
		docs:        make(map[string]*entry),
		persistErrs: make(chan error, 16),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.reporter == nil {
		s.reporter = report.NewSlogReporter(logger)
	}
	return s, nil
}

// JoinDocument adds the user to the document's roster and announces the
// join. The document comes from the cache when fresh; otherwise it is
// fetched from durable storage, with concurrent joins for the same id
// collapsed into a single fetch. Returns a snapshot of the document.
func (s *Store) JoinDocument(ctx context.Context, documentID string, user datatypes.User) (*datatypes.Document, error) {
	ctx, span := startStoreSpan(ctx, "JoinDocument", documentID)
	defer span.End()

	ent, err := s.entryFor(ctx, documentID)
	if err != nil {
		return nil, err
	}

	ent.mu.Lock()
	s.presence.UserJoin(ent.doc, user)
	snapshot := snapshotDocument(ent.doc)
	ent.mu.Unlock()

	s.send(&wire.UserJoinMessage{DocumentID: documentID, User: user})
	s.logger.Info("user joined document",
		slog.String("document_id", documentID),
		slog.String("user_id", user.ID),
	)
	return snapshot, nil
}

// LeaveDocument removes the user from the roster, announces the leave,
// and notifies durable storage best-effort. A notification failure is
// logged and reported but never propagated; the local leave already
// happened.
func (s *Store) LeaveDocument(ctx context.Context, documentID, userID string) error {
	ctx, span := startStoreSpan(ctx, "LeaveDocument", documentID)
	defer span.End()

	ent, ok := s.lookup(documentID)
	if !ok {
		return &datatypes.NotFoundError{DocumentID: documentID}
	}

	ent.mu.Lock()
	s.presence.UserLeave(ent.doc, userID)
	ent.mu.Unlock()

	s.send(&wire.UserLeaveMessage{DocumentID: documentID, UserID: userID})

	if err := s.storage.NotifyLeave(ctx, documentID, userID); err != nil {
		s.logger.Warn("leave notification failed",
			slog.String("document_id", documentID),
			slog.String("user_id", userID),
			slog.Any("error", err),
		)
		s.reporter.Report(ctx, err, report.SeverityLow, map[string]any{
			"document_id": documentID,
			"user_id":     userID,
		})
	}
	return nil
}

// ApplyChange applies a local change to the cached document, announces
// it on the wire, and persists it to durable storage asynchronously.
//
// The local apply is not rolled back if the durable write later fails:
// the failure is reported at critical severity and surfaced on Errors().
// Returns the document version after the apply.
func (s *Store) ApplyChange(ctx context.Context, documentID string, change datatypes.Change) (int64, error) {
	ctx, span := startStoreSpan(ctx, "ApplyChange", documentID)
	defer span.End()

	ent, ok := s.lookup(documentID)
	if !ok {
		err := &datatypes.NotFoundError{DocumentID: documentID}
		s.reporter.Report(ctx, err, report.SeverityHigh, map[string]any{
			"document_id": documentID,
			"user_id":     change.UserID,
		})
		return 0, err
	}

	ent.mu.Lock()
	if err := engine.Apply(ent.doc, change); err != nil {
		ent.mu.Unlock()
		return 0, err
	}
	s.presence.ClampCursors(ent.doc)
	version := ent.doc.Version
	ent.mu.Unlock()

	if s.config.EnableMetrics {
		recordChangeApplied(ctx, "local")
	}

	s.send(&wire.ChangeMessage{DocumentID: documentID, Change: change})
	s.persistAsync(documentID, change)
	return version, nil
}

// MoveCursor updates the local user's cursor and announces the move.
func (s *Store) MoveCursor(ctx context.Context, documentID, userID string, position int) error {
	_, span := startStoreSpan(ctx, "MoveCursor", documentID)
	defer span.End()

	ent, ok := s.lookup(documentID)
	if !ok {
		return &datatypes.NotFoundError{DocumentID: documentID}
	}

	ent.mu.Lock()
	s.presence.CursorMove(ent.doc, userID, position)
	ent.mu.Unlock()

	s.send(&wire.CursorMoveMessage{DocumentID: documentID, UserID: userID, Position: position})
	return nil
}

// Attach subscribes the store to remote events on the session. Remote
// operations run the same mutation paths as local ones but are not
// echoed back or persisted; the originating peer owns durability.
func (s *Store) Attach(session Session) {
	s.mu.Lock()
	s.sender = session
	s.mu.Unlock()

	session.On(wire.KindChange, func(msg wire.Message) {
		m := msg.(*wire.ChangeMessage)
		s.applyRemote(m.DocumentID, m.Change)
	})
	session.On(wire.KindUserJoin, func(msg wire.Message) {
		m := msg.(*wire.UserJoinMessage)
		if ent, ok := s.lookup(m.DocumentID); ok {
			ent.mu.Lock()
			s.presence.UserJoin(ent.doc, m.User)
			ent.mu.Unlock()
		}
	})
	session.On(wire.KindUserLeave, func(msg wire.Message) {
		m := msg.(*wire.UserLeaveMessage)
		if ent, ok := s.lookup(m.DocumentID); ok {
			ent.mu.Lock()
			s.presence.UserLeave(ent.doc, m.UserID)
			ent.mu.Unlock()
		}
	})
	session.On(wire.KindCursorMove, func(msg wire.Message) {
		m := msg.(*wire.CursorMoveMessage)
		if ent, ok := s.lookup(m.DocumentID); ok {
			ent.mu.Lock()
			s.presence.CursorMove(ent.doc, m.UserID, m.Position)
			ent.mu.Unlock()
		}
	})
}

// applyRemote applies a change that arrived over the wire. Changes for
// documents this peer has not joined are dropped; there is nothing to
// apply them to.
func (s *Store) applyRemote(documentID string, change datatypes.Change) {
	ent, ok := s.lookup(documentID)
	if !ok {
		s.logger.Debug("remote change for unjoined document dropped",
			slog.String("document_id", documentID))
		return
	}

	ent.mu.Lock()
	err := engine.Apply(ent.doc, change)
	if err == nil {
		s.presence.ClampCursors(ent.doc)
	}
	ent.mu.Unlock()

	if err != nil {
		s.logger.Warn("remote change rejected",
			slog.String("document_id", documentID),
			slog.Any("error", err),
		)
		s.reporter.Report(context.Background(), err, report.SeverityMedium, map[string]any{
			"document_id": documentID,
			"user_id":     change.UserID,
		})
		return
	}
	if s.config.EnableMetrics {
		recordChangeApplied(context.Background(), "remote")
	}
}

// GetDocument returns a snapshot of the cached document, if present.
func (s *Store) GetDocument(documentID string) (*datatypes.Document, bool) {
	ent, ok := s.lookup(documentID)
	if !ok {
		return nil, false
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()
	return snapshotDocument(ent.doc), true
}

// GetUsers returns the current roster of the cached document.
func (s *Store) GetUsers(documentID string) ([]datatypes.User, bool) {
	ent, ok := s.lookup(documentID)
	if !ok {
		return nil, false
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()
	return copyUsers(ent.doc.Users), true
}

// Clear drops every cached document. The next join refetches from
// durable storage.
func (s *Store) Clear() {
	s.mu.Lock()
	s.docs = make(map[string]*entry)
	s.mu.Unlock()
	s.logger.Info("document cache cleared")
}

// Errors exposes asynchronous persistence failures. The channel is
// buffered; when no one is draining it, further failures are dropped
// after being reported.
func (s *Store) Errors() <-chan error {
	return s.persistErrs
}

// Close waits for in-flight durable writes to finish.
func (s *Store) Close() {
	s.persistWG.Wait()
}

// entryFor returns the cache entry for the document, fetching from
// durable storage on a miss or when the cached copy is past its TTL.
// Concurrent fetches for the same id are deduplicated.
func (s *Store) entryFor(ctx context.Context, documentID string) (*entry, error) {
	if ent, ok := s.lookup(documentID); ok {
		ent.mu.Lock()
		fresh := time.Since(ent.doc.FetchedAt) < s.config.CacheTTL
		ent.mu.Unlock()
		if fresh {
			if s.config.EnableMetrics {
				recordCacheHit(ctx)
			}
			return ent, nil
		}
		s.logger.Debug("cached document expired",
			slog.String("document_id", documentID))
	}
	if s.config.EnableMetrics {
		recordCacheMiss(ctx)
	}

	v, err, _ := s.group.Do(documentID, func() (any, error) {
		start := time.Now()
		doc, err := s.storage.FetchDocument(ctx, documentID)
		if s.config.EnableMetrics {
			recordFetchLatency(ctx, time.Since(start), err == nil)
		}
		if err != nil {
			return nil, err
		}
		doc.FetchedAt = time.Now()

		ent := &entry{doc: doc}
		s.mu.Lock()
		s.docs[documentID] = ent
		s.mu.Unlock()

		s.logger.Info("document fetched",
			slog.String("document_id", documentID),
			slog.Int64("version", doc.Version),
		)
		return ent, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*entry), nil
}

// lookup returns the cache entry without freshness checks.
func (s *Store) lookup(documentID string) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ent, ok := s.docs[documentID]
	return ent, ok
}

// send transmits a message when a sender is wired. The connection layer
// buffers while offline, so failures here are capacity problems only.
func (s *Store) send(msg wire.Message) {
	s.mu.RLock()
	sender := s.sender
	s.mu.RUnlock()
	if sender == nil {
		return
	}
	if err := sender.Send(msg); err != nil {
		s.logger.Error("outbound message rejected",
			slog.String("kind", string(msg.Kind())),
			slog.Any("error", err),
		)
	}
}

// persistAsync writes the change to durable storage off the caller's
// path. Failure reports at critical severity: the document has diverged
// from its durable copy and the local state is deliberately kept.
func (s *Store) persistAsync(documentID string, change datatypes.Change) {
	s.persistWG.Add(1)
	go func() {
		defer s.persistWG.Done()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := s.storage.PersistChange(ctx, documentID, change); err != nil {
			perr := &datatypes.PersistenceError{DocumentID: documentID, Op: "persist_change", Err: err}
			s.logger.Error("durable write failed, local state kept",
				slog.String("document_id", documentID),
				slog.Any("error", err),
			)
			s.reporter.Report(ctx, perr, report.SeverityCritical, map[string]any{
				"document_id": documentID,
				"user_id":     change.UserID,
			})
			if s.config.EnableMetrics {
				recordPersistFailure(ctx)
			}
			select {
			case s.persistErrs <- perr:
			default:
			}
		}
	}()
}

// snapshotDocument deep-copies the slices and cursors callers could
// otherwise mutate out from under the store.
func snapshotDocument(doc *datatypes.Document) *datatypes.Document {
	out := *doc
	out.Users = copyUsers(doc.Users)
	out.Changes = make([]datatypes.Change, len(doc.Changes))
	copy(out.Changes, doc.Changes)
	return &out
}

// copyUsers clones the roster. Cursor pointers are cloned too so later
// moves on the live roster cannot show through a snapshot.
func copyUsers(users []datatypes.User) []datatypes.User {
	out := make([]datatypes.User, len(users))
	copy(out, users)
	for i := range out {
		if c := out[i].Cursor; c != nil {
			clone := *c
			out[i].Cursor = &clone
		}
	}
	return out
}
