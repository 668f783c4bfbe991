// Copyright (C) 2025 Arashek
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/agpl-3.0.html> for the full license text.

package outbox

import (
	"errors"
	"sync"
	"testing"

	"github.com/Arashek/ADE-stable-1.0-sub012/services/collab/wire"
)

func heartbeat(ts int64) wire.Message {
	return &wire.HeartbeatMessage{Timestamp: ts}
}

func TestFIFOOrder(t *testing.T) {
	q := NewQueue()

	for i := int64(1); i <= 3; i++ {
		if _, err := q.Enqueue(heartbeat(i)); err != nil {
			t.Fatalf("enqueue %d failed: %v", i, err)
		}
	}

	drained := q.Drain()
	if len(drained) != 3 {
		t.Fatalf("drained %d entries, want 3", len(drained))
	}
	for i, entry := range drained {
		hb := entry.Message.(*wire.HeartbeatMessage)
		if hb.Timestamp != int64(i+1) {
			t.Errorf("entry %d has timestamp %d, want %d", i, hb.Timestamp, i+1)
		}
	}
}

func TestDrainEmptiesQueue(t *testing.T) {
	q := NewQueue()
	_, _ = q.Enqueue(heartbeat(1))

	if got := len(q.Drain()); got != 1 {
		t.Fatalf("first drain returned %d entries, want 1", got)
	}
	if got := len(q.Drain()); got != 0 {
		t.Errorf("second drain returned %d entries, want 0", got)
	}
	if q.Len() != 0 {
		t.Errorf("Len() = %d after drain, want 0", q.Len())
	}
}

func TestCapacityBound(t *testing.T) {
	q := NewQueue(WithCapacity(2))

	_, _ = q.Enqueue(heartbeat(1))
	_, _ = q.Enqueue(heartbeat(2))

	_, err := q.Enqueue(heartbeat(3))
	if !errors.Is(err, ErrFull) {
		t.Fatalf("expected ErrFull, got %v", err)
	}

	// Nothing was dropped to make room.
	if q.Len() != 2 {
		t.Errorf("Len() = %d, want 2", q.Len())
	}
}

func TestRequeuePreservesOrder(t *testing.T) {
	q := NewQueue()
	_, _ = q.Enqueue(heartbeat(1))
	_, _ = q.Enqueue(heartbeat(2))

	drained := q.Drain()

	// A new message arrives while the drained batch is being replayed,
	// then the replay fails and the batch is put back.
	_, _ = q.Enqueue(heartbeat(3))
	q.Requeue(drained)

	order := make([]int64, 0, 3)
	for _, entry := range q.Drain() {
		order = append(order, entry.Message.(*wire.HeartbeatMessage).Timestamp)
	}
	want := []int64{1, 2, 3}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestEnqueueAssignsIDs(t *testing.T) {
	q := NewQueue()

	a, _ := q.Enqueue(heartbeat(1))
	b, _ := q.Enqueue(heartbeat(2))

	if a.ID == "" || b.ID == "" || a.ID == b.ID {
		t.Errorf("pending ids not unique: %q, %q", a.ID, b.ID)
	}
	if a.QueuedAt.IsZero() {
		t.Error("QueuedAt not set")
	}
}

func TestConcurrentEnqueue(t *testing.T) {
	q := NewQueue()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int64) {
			defer wg.Done()
			_, _ = q.Enqueue(heartbeat(n))
		}(int64(i))
	}
	wg.Wait()

	if q.Len() != 20 {
		t.Errorf("Len() = %d, want 20", q.Len())
	}
}
