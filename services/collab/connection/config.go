// Copyright (C) 2025 Arashek
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/agpl-3.0.html> for the full license text.

package connection

import (
	"fmt"
	"time"
)

// Config holds configuration for creating a Manager.
type Config struct {
	// Endpoint is the websocket URL of the collaboration server,
	// e.g. "ws://localhost:8090/collaboration". Required.
	Endpoint string

	// MaxReconnectAttempts bounds automatic reconnection. Once this
	// many consecutive reconnects have failed the manager enters
	// StateFailed and stops retrying on its own.
	MaxReconnectAttempts int

	// ReconnectBaseDelay is the unit of the linear backoff: the delay
	// before reconnect attempt n is ReconnectBaseDelay * n.
	ReconnectBaseDelay time.Duration

	// HeartbeatInterval is how often a heartbeat message is sent while
	// connected.
	HeartbeatInterval time.Duration

	// DialTimeout bounds the websocket handshake.
	DialTimeout time.Duration

	// WriteTimeout bounds a single outbound write.
	WriteTimeout time.Duration

	// EnableMetrics turns on Prometheus metrics. Metrics register with
	// the default registerer, so at most one metrics-enabled Manager
	// may exist per process.
	EnableMetrics bool
}

// ApplyDefaults fills zero values with defaults.
func (c *Config) ApplyDefaults() {
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = 5
	}
	if c.ReconnectBaseDelay == 0 {
		c.ReconnectBaseDelay = time.Second
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 10 * time.Second
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("Endpoint is required")
	}
	if c.MaxReconnectAttempts < 0 {
		return fmt.Errorf("MaxReconnectAttempts must not be negative")
	}
	if c.ReconnectBaseDelay < 0 {
		return fmt.Errorf("ReconnectBaseDelay must not be negative")
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("HeartbeatInterval must be positive")
	}
	return nil
}
