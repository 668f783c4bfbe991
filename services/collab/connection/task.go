// Copyright (C) 2025 Arashek
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/agpl-3.0.html> for the full license text.

package connection

import (
	"sync"
	"time"
)

// scheduledTask is a cancellable one-shot timer. Unlike a bare
// time.AfterFunc, Cancel deterministically prevents the callback even
// when it races with the timer firing: the callback re-checks the
// cancelled flag before running. This is what lets a fresh Connect call
// supersede a pending backoff timer.
type scheduledTask struct {
	mu        sync.Mutex
	timer     *time.Timer
	cancelled bool
}

// schedule runs fn after delay unless cancelled first.
func schedule(delay time.Duration, fn func()) *scheduledTask {
	t := &scheduledTask{}
	t.timer = time.AfterFunc(delay, func() {
		t.mu.Lock()
		if t.cancelled {
			t.mu.Unlock()
			return
		}
		t.mu.Unlock()
		fn()
	})
	return t
}

// Cancel stops the task. Safe to call multiple times and after firing.
func (t *scheduledTask) Cancel() {
	t.mu.Lock()
	t.cancelled = true
	t.mu.Unlock()
	t.timer.Stop()
}
