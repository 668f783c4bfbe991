// Copyright (C) 2025 Arashek
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/agpl-3.0.html> for the full license text.

// Package outbox buffers outbound messages while the collaboration
// connection is down. Entries are flushed strictly in submission order
// on reconnect; nothing is deduplicated and nothing is dropped silently.
package outbox

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Arashek/ADE-stable-1.0-sub012/services/collab/wire"
)

// ErrFull is returned by Enqueue when a capacity bound is configured
// and reached. The caller decides what to do; the queue never discards
// an entry on its own.
var ErrFull = errors.New("outbox: queue is full")

// Pending is a queued outbound envelope awaiting a live connection.
type Pending struct {
	ID       string
	Message  wire.Message
	QueuedAt time.Time
}

// Queue is a FIFO buffer of pending messages.
//
// Thread Safety: safe for concurrent use.
type Queue struct {
	mu       sync.Mutex
	entries  []Pending
	capacity int
}

// Option configures a Queue.
type Option func(*Queue)

// WithCapacity bounds the queue. Zero (the default) means unbounded.
func WithCapacity(n int) Option {
	return func(q *Queue) {
		q.capacity = n
	}
}

// NewQueue creates an empty queue.
func NewQueue(opts ...Option) *Queue {
	q := &Queue{}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue appends a message to the back of the queue.
func (q *Queue) Enqueue(msg wire.Message) (Pending, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.capacity > 0 && len(q.entries) >= q.capacity {
		return Pending{}, ErrFull
	}

	entry := Pending{
		ID:       uuid.NewString(),
		Message:  msg,
		QueuedAt: time.Now(),
	}
	q.entries = append(q.entries, entry)
	return entry, nil
}

// Drain atomically removes and returns all entries in submission order.
//
// The connection manager calls this exactly once per successful connect
// and re-sends every entry before any newly submitted message; a message
// enqueued while the drain is being replayed lands in the fresh queue
// and goes out afterwards.
func (q *Queue) Drain() []Pending {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries := q.entries
	q.entries = nil
	return entries
}

// Requeue puts already-drained entries back at the front of the queue,
// ahead of anything enqueued since the drain. Used when a flush is
// interrupted mid-replay so the unsent tail keeps its position.
func (q *Queue) Requeue(entries []Pending) {
	if len(entries) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	merged := make([]Pending, 0, len(entries)+len(q.entries))
	merged = append(merged, entries...)
	merged = append(merged, q.entries...)
	q.entries = merged
}

// Len returns the number of buffered entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
