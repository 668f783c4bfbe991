// Copyright (C) 2025 Arashek
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/agpl-3.0.html> for the full license text.

package connection

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the connection lifecycle.
//
// Thread Safety: safe for concurrent use (Prometheus metrics are
// thread-safe).
type Metrics struct {
	// ConnectsTotal counts successful connection opens.
	ConnectsTotal prometheus.Counter

	// ReconnectsScheduledTotal counts backoff timers armed.
	ReconnectsScheduledTotal prometheus.Counter

	// ConnectionFailuresTotal counts dial/read/write failures by kind.
	ConnectionFailuresTotal *prometheus.CounterVec

	// MessagesSentTotal counts outbound messages by wire kind.
	MessagesSentTotal *prometheus.CounterVec

	// MessagesReceivedTotal counts inbound messages by wire kind.
	MessagesReceivedTotal *prometheus.CounterVec

	// MessagesBufferedTotal counts sends deferred to the outbox.
	MessagesBufferedTotal prometheus.Counter

	// OutboxFlushedTotal counts entries replayed after reconnect.
	OutboxFlushedTotal prometheus.Counter

	// ProtocolErrorsTotal counts dropped malformed inbound messages.
	ProtocolErrorsTotal prometheus.Counter

	// CurrentState exports the numeric connection state.
	CurrentState prometheus.Gauge
}

// NewMetrics creates and registers all connection metrics with the
// default registerer. Create at most one per process.
func NewMetrics() *Metrics {
	return &Metrics{
		ConnectsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "collab",
			Subsystem: "connection",
			Name:      "connects_total",
			Help:      "Successful connection opens",
		}),
		ReconnectsScheduledTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "collab",
			Subsystem: "connection",
			Name:      "reconnects_scheduled_total",
			Help:      "Backoff reconnect timers armed",
		}),
		ConnectionFailuresTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "collab",
			Subsystem: "connection",
			Name:      "failures_total",
			Help:      "Connection failures by kind",
		}, []string{"kind"}),
		MessagesSentTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "collab",
			Subsystem: "connection",
			Name:      "messages_sent_total",
			Help:      "Outbound messages by wire kind",
		}, []string{"kind"}),
		MessagesReceivedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "collab",
			Subsystem: "connection",
			Name:      "messages_received_total",
			Help:      "Inbound messages by wire kind",
		}, []string{"kind"}),
		MessagesBufferedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "collab",
			Subsystem: "connection",
			Name:      "messages_buffered_total",
			Help:      "Sends deferred to the outbox while disconnected",
		}),
		OutboxFlushedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "collab",
			Subsystem: "connection",
			Name:      "outbox_flushed_total",
			Help:      "Outbox entries replayed after reconnect",
		}),
		ProtocolErrorsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "collab",
			Subsystem: "connection",
			Name:      "protocol_errors_total",
			Help:      "Malformed inbound messages dropped",
		}),
		CurrentState: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "collab",
			Subsystem: "connection",
			Name:      "state",
			Help:      "Connection state (0 disconnected through 4 failed)",
		}),
	}
}
