// Copyright (C) 2025 Arashek
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/agpl-3.0.html> for the full license text.

package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Arashek/ADE-stable-1.0-sub012/services/collab/connection"
	"github.com/Arashek/ADE-stable-1.0-sub012/services/collab/datatypes"
	"github.com/Arashek/ADE-stable-1.0-sub012/services/collab/report"
	"github.com/Arashek/ADE-stable-1.0-sub012/services/collab/storage"
	"github.com/Arashek/ADE-stable-1.0-sub012/services/collab/wire"
)

// countingService wraps a storage.Service and counts fetches. An
// optional gate blocks every fetch until released, for dedup tests.
type countingService struct {
	storage.Service

	mu      sync.Mutex
	fetches int
	gate    chan struct{}
}

func (c *countingService) FetchDocument(ctx context.Context, id string) (*datatypes.Document, error) {
	c.mu.Lock()
	c.fetches++
	gate := c.gate
	c.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return c.Service.FetchDocument(ctx, id)
}

func (c *countingService) fetchCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetches
}

// failLeaveService wraps a storage.Service with a failing NotifyLeave.
type failLeaveService struct {
	storage.Service
}

func (f *failLeaveService) NotifyLeave(context.Context, string, string) error {
	return errors.New("leave endpoint unreachable")
}

// fakeSession records outbound messages and captures handler
// registrations so tests can inject remote events.
type fakeSession struct {
	mu       sync.Mutex
	sent     []wire.Message
	handlers map[wire.Kind]connection.Handler
}

func newFakeSession() *fakeSession {
	return &fakeSession{handlers: make(map[wire.Kind]connection.Handler)}
}

func (f *fakeSession) Send(msg wire.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeSession) On(kind wire.Kind, handler connection.Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[kind] = handler
}

func (f *fakeSession) deliver(t *testing.T, msg wire.Message) {
	t.Helper()
	f.mu.Lock()
	handler := f.handlers[msg.Kind()]
	f.mu.Unlock()
	require.NotNil(t, handler, "no handler registered for %s", msg.Kind())
	handler(msg)
}

func (f *fakeSession) sentKinds() []wire.Kind {
	f.mu.Lock()
	defer f.mu.Unlock()
	kinds := make([]wire.Kind, 0, len(f.sent))
	for _, msg := range f.sent {
		kinds = append(kinds, msg.Kind())
	}
	return kinds
}

func seedService() *storage.MemoryService {
	svc := storage.NewMemoryService()
	svc.Seed(datatypes.Document{
		ID:      "d1",
		Content: "hello",
		Version: 5,
	})
	return svc
}

func newTestStore(t *testing.T, svc storage.Service, opts ...Option) *Store {
	t.Helper()
	s, err := NewStore(Config{}, nil, svc, opts...)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func insertAt(pos int, text, userID string) datatypes.Change {
	return datatypes.Change{
		Type:      datatypes.ChangeInsert,
		Position:  pos,
		Text:      text,
		UserID:    userID,
		Timestamp: time.Now().UnixMilli(),
	}
}

func deleteAt(pos, length int, userID string) datatypes.Change {
	return datatypes.Change{
		Type:      datatypes.ChangeDelete,
		Position:  pos,
		Length:    length,
		UserID:    userID,
		Timestamp: time.Now().UnixMilli(),
	}
}

func TestJoinDocumentFetchesOnceThenServesFromCache(t *testing.T) {
	counting := &countingService{Service: seedService()}
	s := newTestStore(t, counting)

	doc, err := s.JoinDocument(context.Background(), "d1", datatypes.User{ID: "u1", Name: "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "hello", doc.Content)
	assert.Equal(t, int64(5), doc.Version)
	require.Len(t, doc.Users, 1)

	_, err = s.JoinDocument(context.Background(), "d1", datatypes.User{ID: "u2", Name: "Grace"})
	require.NoError(t, err)
	assert.Equal(t, 1, counting.fetchCount(), "second join must hit the cache")

	users, ok := s.GetUsers("d1")
	require.True(t, ok)
	assert.Len(t, users, 2)
}

func TestJoinDocumentUnknownID(t *testing.T) {
	s := newTestStore(t, storage.NewMemoryService())

	_, err := s.JoinDocument(context.Background(), "ghost", datatypes.User{ID: "u1"})
	var nf *datatypes.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "ghost", nf.DocumentID)
}

func TestCacheTTLExpiryTriggersRefetch(t *testing.T) {
	counting := &countingService{Service: seedService()}
	s, err := NewStore(Config{CacheTTL: 10 * time.Millisecond}, nil, counting)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	_, err = s.JoinDocument(context.Background(), "d1", datatypes.User{ID: "u1"})
	require.NoError(t, err)
	require.Equal(t, 1, counting.fetchCount())

	time.Sleep(25 * time.Millisecond)

	_, err = s.JoinDocument(context.Background(), "d1", datatypes.User{ID: "u2"})
	require.NoError(t, err)
	assert.Equal(t, 2, counting.fetchCount(), "expired entry must be refetched")
}

func TestConcurrentJoinsShareOneFetch(t *testing.T) {
	counting := &countingService{Service: seedService(), gate: make(chan struct{})}
	s := newTestStore(t, counting)

	const joiners = 8
	var wg sync.WaitGroup
	errs := make([]error, joiners)
	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.JoinDocument(context.Background(), "d1", datatypes.User{ID: "u1"})
		}(i)
	}

	// Give the goroutines time to pile up on the in-flight fetch.
	time.Sleep(20 * time.Millisecond)
	close(counting.gate)
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 1, counting.fetchCount(), "concurrent joins must share one fetch")
}

func TestApplyChangeHelloWorld(t *testing.T) {
	svc := seedService()
	session := newFakeSession()
	s := newTestStore(t, svc, WithSender(session))

	_, err := s.JoinDocument(context.Background(), "d1", datatypes.User{ID: "u1"})
	require.NoError(t, err)

	version, err := s.ApplyChange(context.Background(), "d1", insertAt(5, " world", "u1"))
	require.NoError(t, err)
	assert.Equal(t, int64(6), version)

	doc, ok := s.GetDocument("d1")
	require.True(t, ok)
	assert.Equal(t, "hello world", doc.Content)

	assert.Contains(t, session.sentKinds(), wire.KindChange)

	s.Close()
	require.Len(t, svc.PersistedChanges("d1"), 1)
	assert.Equal(t, " world", svc.PersistedChanges("d1")[0].Text)
}

func TestApplyChangeUnknownDocumentReported(t *testing.T) {
	recorder := report.NewRecorder()
	s := newTestStore(t, seedService(), WithReporter(recorder))

	_, err := s.ApplyChange(context.Background(), "ghost", insertAt(0, "x", "u1"))
	var nf *datatypes.NotFoundError
	require.ErrorAs(t, err, &nf)

	require.Equal(t, 1, recorder.Count())
	assert.Equal(t, report.SeverityHigh, recorder.Entries()[0].Severity)
}

func TestApplyChangeInvalidRejected(t *testing.T) {
	s := newTestStore(t, seedService())
	_, err := s.JoinDocument(context.Background(), "d1", datatypes.User{ID: "u1"})
	require.NoError(t, err)

	_, err = s.ApplyChange(context.Background(), "d1", datatypes.Change{Type: "scribble", UserID: "u1"})
	require.Error(t, err)

	doc, _ := s.GetDocument("d1")
	assert.Equal(t, int64(5), doc.Version, "failed apply must not bump the version")
}

func TestPersistFailureReportedWithoutRollback(t *testing.T) {
	svc := seedService()
	svc.FailPersist = errors.New("storage down")
	recorder := report.NewRecorder()
	s := newTestStore(t, svc, WithReporter(recorder))

	_, err := s.JoinDocument(context.Background(), "d1", datatypes.User{ID: "u1"})
	require.NoError(t, err)

	version, err := s.ApplyChange(context.Background(), "d1", insertAt(5, "!", "u1"))
	require.NoError(t, err, "durable write failures must not fail the local apply")
	assert.Equal(t, int64(6), version)

	s.Close()

	doc, _ := s.GetDocument("d1")
	assert.Equal(t, "hello!", doc.Content, "local state kept despite persist failure")

	require.Equal(t, 1, recorder.Count())
	assert.Equal(t, report.SeverityCritical, recorder.Entries()[0].Severity)

	select {
	case err := <-s.Errors():
		var perr *datatypes.PersistenceError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, "d1", perr.DocumentID)
	default:
		t.Fatal("persistence failure not surfaced on Errors()")
	}
}

func TestVersionMonotonicUnderMixedApplies(t *testing.T) {
	session := newFakeSession()
	s := newTestStore(t, seedService())
	s.Attach(session)

	_, err := s.JoinDocument(context.Background(), "d1", datatypes.User{ID: "u1"})
	require.NoError(t, err)

	const perSide = 20
	var wg sync.WaitGroup
	applyErrs := make(chan error, perSide)
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < perSide; i++ {
			if _, err := s.ApplyChange(context.Background(), "d1", insertAt(0, "a", "u1")); err != nil {
				applyErrs <- err
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < perSide; i++ {
			session.deliver(t, &wire.ChangeMessage{
				DocumentID: "d1",
				Change:     insertAt(0, "b", "u2"),
			})
		}
	}()
	wg.Wait()
	close(applyErrs)
	for err := range applyErrs {
		require.NoError(t, err)
	}

	doc, _ := s.GetDocument("d1")
	assert.Equal(t, int64(5+2*perSide), doc.Version,
		"every apply, local or remote, bumps the version by exactly one")
	assert.Len(t, doc.Content, len("hello")+2*perSide)
}

func TestLeaveDocument(t *testing.T) {
	svc := seedService()
	session := newFakeSession()
	s := newTestStore(t, svc, WithSender(session))

	_, err := s.JoinDocument(context.Background(), "d1", datatypes.User{ID: "u1"})
	require.NoError(t, err)

	require.NoError(t, s.LeaveDocument(context.Background(), "d1", "u1"))

	users, _ := s.GetUsers("d1")
	assert.Empty(t, users)
	assert.Contains(t, session.sentKinds(), wire.KindUserLeave)
	assert.Equal(t, []string{"u1"}, svc.Leaves("d1"))
}

func TestLeaveNotificationFailureNotPropagated(t *testing.T) {
	recorder := report.NewRecorder()
	s := newTestStore(t, &failLeaveService{Service: seedService()}, WithReporter(recorder))

	_, err := s.JoinDocument(context.Background(), "d1", datatypes.User{ID: "u1"})
	require.NoError(t, err)

	require.NoError(t, s.LeaveDocument(context.Background(), "d1", "u1"),
		"leave notification is best-effort")

	users, _ := s.GetUsers("d1")
	assert.Empty(t, users, "local roster removal happens regardless")
	assert.Equal(t, 1, recorder.Count())
}

func TestMoveCursorClampsAndColors(t *testing.T) {
	session := newFakeSession()
	s := newTestStore(t, seedService(), WithSender(session))

	_, err := s.JoinDocument(context.Background(), "d1", datatypes.User{ID: "u1"})
	require.NoError(t, err)

	require.NoError(t, s.MoveCursor(context.Background(), "d1", "u1", 999))

	users, _ := s.GetUsers("d1")
	require.Len(t, users, 1)
	require.NotNil(t, users[0].Cursor)
	assert.Equal(t, len("hello"), users[0].Cursor.Position)
	assert.Equal(t, datatypes.ColorForUser("u1"), users[0].Cursor.Color)
	assert.Contains(t, session.sentKinds(), wire.KindCursorMove)
}

func TestAttachRoutesRemotePresence(t *testing.T) {
	session := newFakeSession()
	s := newTestStore(t, seedService())
	s.Attach(session)

	_, err := s.JoinDocument(context.Background(), "d1", datatypes.User{ID: "u1"})
	require.NoError(t, err)

	session.deliver(t, &wire.UserJoinMessage{DocumentID: "d1", User: datatypes.User{ID: "u2", Name: "Grace"}})
	session.deliver(t, &wire.CursorMoveMessage{DocumentID: "d1", UserID: "u2", Position: 3})

	users, _ := s.GetUsers("d1")
	require.Len(t, users, 2)
	remote := users[1]
	assert.Equal(t, "u2", remote.ID)
	require.NotNil(t, remote.Cursor)
	assert.Equal(t, 3, remote.Cursor.Position)

	session.deliver(t, &wire.UserLeaveMessage{DocumentID: "d1", UserID: "u2"})
	users, _ = s.GetUsers("d1")
	assert.Len(t, users, 1)

	// Events for documents this peer never joined are dropped.
	session.deliver(t, &wire.ChangeMessage{DocumentID: "ghost", Change: insertAt(0, "x", "u9")})
}

func TestRemoteChangeAppliedWithoutEchoOrPersist(t *testing.T) {
	svc := seedService()
	session := newFakeSession()
	s := newTestStore(t, svc)
	s.Attach(session)

	_, err := s.JoinDocument(context.Background(), "d1", datatypes.User{ID: "u1"})
	require.NoError(t, err)
	sentBefore := len(session.sentKinds())

	session.deliver(t, &wire.ChangeMessage{DocumentID: "d1", Change: insertAt(5, " world", "u2")})

	doc, _ := s.GetDocument("d1")
	assert.Equal(t, "hello world", doc.Content)
	assert.Equal(t, int64(6), doc.Version)

	s.Close()
	assert.Empty(t, svc.PersistedChanges("d1"), "remote changes are not re-persisted")
	assert.Len(t, session.sentKinds(), sentBefore, "remote changes are not echoed")
}

func TestClearDropsCache(t *testing.T) {
	counting := &countingService{Service: seedService()}
	s := newTestStore(t, counting)

	_, err := s.JoinDocument(context.Background(), "d1", datatypes.User{ID: "u1"})
	require.NoError(t, err)

	s.Clear()

	_, ok := s.GetDocument("d1")
	assert.False(t, ok)

	_, err = s.JoinDocument(context.Background(), "d1", datatypes.User{ID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 2, counting.fetchCount())
}

func TestSnapshotsAreIsolated(t *testing.T) {
	s := newTestStore(t, seedService())

	doc, err := s.JoinDocument(context.Background(), "d1", datatypes.User{ID: "u1"})
	require.NoError(t, err)
	require.NoError(t, s.MoveCursor(context.Background(), "d1", "u1", 1))

	snap, ok := s.GetDocument("d1")
	require.True(t, ok)
	users, ok := s.GetUsers("d1")
	require.True(t, ok)

	doc.Users[0].Name = "mutated"
	doc.Content = "mutated"

	fresh, _ := s.GetDocument("d1")
	assert.Equal(t, "hello", fresh.Content)
	assert.NotEqual(t, "mutated", fresh.Users[0].Name)

	// Cursors are cloned too: a later move must not show through a
	// snapshot captured before it.
	require.NoError(t, s.MoveCursor(context.Background(), "d1", "u1", 4))
	require.NotNil(t, snap.Users[0].Cursor)
	assert.Equal(t, 1, snap.Users[0].Cursor.Position)
	require.NotNil(t, users[0].Cursor)
	assert.Equal(t, 1, users[0].Cursor.Position)

	// Nor the other way around: writing through a snapshot cursor must
	// not reach the live roster.
	users[0].Cursor.Position = 0
	after, _ := s.GetUsers("d1")
	assert.Equal(t, 4, after[0].Cursor.Position)
}

func TestChangeShrinkingContentReclampsCursors(t *testing.T) {
	s := newTestStore(t, seedService())

	_, err := s.JoinDocument(context.Background(), "d1", datatypes.User{ID: "u1"})
	require.NoError(t, err)
	require.NoError(t, s.MoveCursor(context.Background(), "d1", "u1", 5))

	// "hello" minus three bytes at 2 leaves "he"; a cursor parked at 5
	// has to follow the end in.
	_, err = s.ApplyChange(context.Background(), "d1", deleteAt(2, 3, "u1"))
	require.NoError(t, err)

	doc, ok := s.GetDocument("d1")
	require.True(t, ok)
	assert.Equal(t, "he", doc.Content)

	users, _ := s.GetUsers("d1")
	require.NotNil(t, users[0].Cursor)
	assert.Equal(t, 2, users[0].Cursor.Position)
}

func TestRemoteChangeReclampsCursors(t *testing.T) {
	session := newFakeSession()
	s := newTestStore(t, seedService())
	s.Attach(session)

	_, err := s.JoinDocument(context.Background(), "d1", datatypes.User{ID: "u1"})
	require.NoError(t, err)
	require.NoError(t, s.MoveCursor(context.Background(), "d1", "u1", 5))

	session.deliver(t, &wire.ChangeMessage{DocumentID: "d1", Change: deleteAt(2, 3, "u2")})

	users, _ := s.GetUsers("d1")
	require.NotNil(t, users[0].Cursor)
	assert.Equal(t, 2, users[0].Cursor.Position)
}

func TestAttachConcurrentWithOutboundTraffic(t *testing.T) {
	s := newTestStore(t, seedService(), WithSender(newFakeSession()))

	_, err := s.JoinDocument(context.Background(), "d1", datatypes.User{ID: "u1"})
	require.NoError(t, err)

	// Attach swaps the sender while cursor moves are echoing through it.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			_ = s.MoveCursor(context.Background(), "d1", "u1", i%5)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			s.Attach(newFakeSession())
		}
	}()
	wg.Wait()
}

func TestNewStoreValidation(t *testing.T) {
	_, err := NewStore(Config{}, nil, nil)
	require.Error(t, err)

	_, err = NewStore(Config{CacheTTL: -time.Second}, nil, storage.NewMemoryService())
	require.NoError(t, err, "non-positive TTL falls back to the default")
}
