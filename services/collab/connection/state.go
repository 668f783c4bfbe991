// Copyright (C) 2025 Arashek
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/agpl-3.0.html> for the full license text.

package connection

// State is the lifecycle state of the collaboration connection.
//
// Transitions:
//
//	Disconnected -(Connect)-> Connecting -(open)-> Connected
//	Connected    -(close/error)-> Reconnecting -(backoff elapsed)-> Connecting
//	Reconnecting -(attempts >= max)-> Failed   (terminal for automatic retry)
//
// An explicit Connect call supersedes any pending backoff timer and may
// restart a Failed manager.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
