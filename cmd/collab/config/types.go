// Copyright (C) 2025 Arashek
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/agpl-3.0.html> for the full license text.

package config

import (
	"fmt"
	"time"
)

// CollabConfig is the on-disk configuration for the collab CLI.
// Durations are written as Go duration strings ("30s", "5m").
type CollabConfig struct {
	Logging    LoggingConfig    `yaml:"logging"`
	Connection ConnectionConfig `yaml:"connection"`
	Storage    StorageConfig    `yaml:"storage"`
	Cache      CacheConfig      `yaml:"cache"`
}

// LoggingConfig controls the process logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
	JSON  bool   `yaml:"json"`
	Quiet bool   `yaml:"quiet"`
}

// ConnectionConfig controls the websocket session.
type ConnectionConfig struct {
	Endpoint             string `yaml:"endpoint"`
	MaxReconnectAttempts int    `yaml:"max_reconnect_attempts"`
	ReconnectBaseDelay   string `yaml:"reconnect_base_delay"`
	HeartbeatInterval    string `yaml:"heartbeat_interval"`
	EnableMetrics        bool   `yaml:"enable_metrics"`
}

// StorageConfig controls the durable document store client. When
// Offline is true the CLI runs against an in-memory store instead.
type StorageConfig struct {
	BaseURL string `yaml:"base_url"`
	Offline bool   `yaml:"offline"`
}

// CacheConfig controls the local document cache.
type CacheConfig struct {
	TTL string `yaml:"ttl"`
}

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() CollabConfig {
	return CollabConfig{
		Logging: LoggingConfig{
			Level: "info",
			Dir:   "~/.arashek/logs",
		},
		Connection: ConnectionConfig{
			Endpoint:             "ws://localhost:8080/collab",
			MaxReconnectAttempts: 5,
			ReconnectBaseDelay:   "1s",
			HeartbeatInterval:    "30s",
		},
		Storage: StorageConfig{
			BaseURL: "http://localhost:8080",
		},
		Cache: CacheConfig{
			TTL: "5m",
		},
	}
}

// Duration parses a duration field, falling back to def when empty.
func Duration(value string, def time.Duration) (time.Duration, error) {
	if value == "" {
		return def, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", value, err)
	}
	return d, nil
}
