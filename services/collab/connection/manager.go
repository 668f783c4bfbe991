// Copyright (C) 2025 Arashek
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/agpl-3.0.html> for the full license text.

// Package connection owns the persistent collaboration connection: the
// lifecycle state machine, linear-backoff reconnection, heartbeating,
// and typed dispatch of inbound messages.
//
// Transport faults never cross this package's boundary. A failed send
// buffers the message for redelivery; a dropped connection arms a
// backoff timer. Callers observe connectivity only through State().
package connection

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Arashek/ADE-stable-1.0-sub012/services/collab/outbox"
	"github.com/Arashek/ADE-stable-1.0-sub012/services/collab/report"
	"github.com/Arashek/ADE-stable-1.0-sub012/services/collab/wire"
)

// Handler processes one inbound message. Handlers run on the read-pump
// goroutine; long work should be handed off.
type Handler func(msg wire.Message)

// Manager maintains exactly one logical connection per collaboration
// session.
//
// Thread Safety: safe for concurrent use.
type Manager struct {
	config   Config
	logger   *slog.Logger
	dialer   Dialer
	queue    *outbox.Queue
	reporter report.Reporter
	metrics  *Metrics

	mu            sync.Mutex
	state         State
	attempts      int
	gen           uint64
	conn          Conn
	done          chan struct{}
	reconnectTask *scheduledTask
	handlers      map[wire.Kind]Handler

	// sendMu serializes every write to the transport. Connect acquires
	// it before the state flips to Connected and holds it through the
	// outbox replay, which is what guarantees drained entries go out
	// before any newly submitted message. Lock order: sendMu before mu.
	sendMu sync.Mutex
}

// Option configures a Manager beyond its Config.
type Option func(*Manager)

// WithDialer replaces the websocket dialer, mainly for tests.
func WithDialer(d Dialer) Option {
	return func(m *Manager) { m.dialer = d }
}

// WithOutbox supplies an externally constructed outbox queue.
func WithOutbox(q *outbox.Queue) Option {
	return func(m *Manager) { m.queue = q }
}

// WithReporter supplies the error-reporting collaborator.
func WithReporter(r report.Reporter) Option {
	return func(m *Manager) { m.reporter = r }
}

// NewManager creates a Manager. logger may be nil, in which case
// slog.Default() is used.
func NewManager(config Config, logger *slog.Logger, opts ...Option) (*Manager, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		config:   config,
		logger:   logger.With(slog.String("component", "connection")),
		handlers: make(map[wire.Kind]Handler),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.dialer == nil {
		m.dialer = &WebSocketDialer{
			HandshakeTimeout: config.DialTimeout,
			WriteTimeout:     config.WriteTimeout,
		}
	}
	if m.queue == nil {
		m.queue = outbox.NewQueue()
	}
	if m.reporter == nil {
		m.reporter = report.NewSlogReporter(logger)
	}
	if config.EnableMetrics {
		m.metrics = NewMetrics()
	}

	return m, nil
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ReconnectAttempts returns the consecutive failed-reconnect counter.
// It resets to zero on a successful open.
func (m *Manager) ReconnectAttempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// Buffered returns how many outbound messages are waiting in the outbox.
func (m *Manager) Buffered() int {
	return m.queue.Len()
}

// On registers the handler for a message kind. Each kind has a single
// slot: registering again for the same kind replaces the previous
// handler rather than adding a subscriber.
func (m *Manager) On(kind wire.Kind, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[kind] = handler
}

// Off removes the handler for a message kind.
func (m *Manager) Off(kind wire.Kind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers, kind)
}

// Connect opens the connection.
//
// A call while Connecting or Connected is a no-op. A call while a
// backoff timer is pending cancels that timer; the explicit attempt
// wins. A call on a Failed manager restarts it for one more round of
// attempts.
//
// Dial failures are not returned; they fall through to the reconnect
// path like any other transport fault.
func (m *Manager) Connect(ctx context.Context) {
	m.mu.Lock()
	m.cancelReconnectLocked()
	if m.state == StateConnecting || m.state == StateConnected {
		m.mu.Unlock()
		return
	}
	if m.state == StateFailed {
		// Explicit restart gets a fresh attempt budget.
		m.attempts = 0
	}
	m.gen++
	gen := m.gen
	m.setStateLocked(StateConnecting)
	m.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, m.config.DialTimeout)
	conn, err := m.dialer.Dial(dialCtx, m.config.Endpoint)
	cancel()

	if err != nil {
		m.logger.Warn("connect failed",
			slog.String("endpoint", m.config.Endpoint),
			slog.Any("error", err),
		)
		if m.metrics != nil {
			m.metrics.ConnectionFailuresTotal.WithLabelValues("dial").Inc()
		}
		m.mu.Lock()
		if gen == m.gen {
			m.scheduleReconnectLocked()
		}
		m.mu.Unlock()
		return
	}

	// sendMu is taken before the state flips to Connected and held
	// through the outbox replay. A concurrent Send that observes
	// Connected queues behind it, so it cannot write ahead of the
	// buffered backlog.
	m.sendMu.Lock()
	m.mu.Lock()
	if gen != m.gen {
		// Superseded by Disconnect or a newer Connect while dialing.
		m.mu.Unlock()
		m.sendMu.Unlock()
		_ = conn.Close()
		return
	}
	m.conn = conn
	m.done = make(chan struct{})
	done := m.done
	m.attempts = 0
	m.setStateLocked(StateConnected)
	m.mu.Unlock()

	m.logger.Info("connected", slog.String("endpoint", m.config.Endpoint))
	if m.metrics != nil {
		m.metrics.ConnectsTotal.Inc()
	}

	m.flushOutbox(gen, conn)
	m.sendMu.Unlock()

	go m.readPump(gen, conn)
	go m.heartbeatLoop(done)
}

// Send transmits a message if connected, or buffers it in the outbox
// otherwise. Transport errors are never returned: a failed write
// buffers the message for redelivery and arms the reconnect path. The
// only possible error is outbox.ErrFull on a bounded queue.
func (m *Manager) Send(msg wire.Message) error {
	m.mu.Lock()
	connected := m.state == StateConnected
	gen := m.gen
	m.mu.Unlock()

	if !connected {
		return m.buffer(msg)
	}

	m.sendMu.Lock()
	// Re-check under sendMu: the connection may have dropped while we
	// waited behind a flush or another writer.
	m.mu.Lock()
	if m.state != StateConnected || m.gen != gen {
		m.mu.Unlock()
		m.sendMu.Unlock()
		return m.buffer(msg)
	}
	conn := m.conn
	m.mu.Unlock()

	err := m.writeConn(conn, msg)
	m.sendMu.Unlock()

	if err != nil {
		m.logger.Warn("send failed, buffering for redelivery",
			slog.String("kind", string(msg.Kind())),
			slog.Any("error", err),
		)
		if m.metrics != nil {
			m.metrics.ConnectionFailuresTotal.WithLabelValues("write").Inc()
		}
		bufferErr := m.buffer(msg)
		m.connectionLost(gen, err)
		return bufferErr
	}
	return nil
}

// Disconnect tears the connection down: cancels any pending reconnect,
// closes the transport, clears handler registrations, and returns to
// Disconnected. Idempotent; never returns an error.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.cancelReconnectLocked()
	m.gen++
	conn := m.conn
	m.conn = nil
	if m.done != nil {
		close(m.done)
		m.done = nil
	}
	m.handlers = make(map[wire.Kind]Handler)
	m.attempts = 0
	wasDisconnected := m.state == StateDisconnected
	m.setStateLocked(StateDisconnected)
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	if !wasDisconnected {
		m.logger.Info("disconnected")
	}
}

// setStateLocked updates the state. Caller holds m.mu.
func (m *Manager) setStateLocked(s State) {
	if m.state == s {
		return
	}
	m.logger.Debug("connection state change",
		slog.String("from", m.state.String()),
		slog.String("to", s.String()),
	)
	m.state = s
	if m.metrics != nil {
		m.metrics.CurrentState.Set(float64(s))
	}
}

// cancelReconnectLocked cancels a pending backoff timer. Caller holds m.mu.
func (m *Manager) cancelReconnectLocked() {
	if m.reconnectTask != nil {
		m.reconnectTask.Cancel()
		m.reconnectTask = nil
	}
}

// scheduleReconnectLocked arms the next backoff timer or transitions to
// Failed when the attempt budget is spent. Caller holds m.mu.
func (m *Manager) scheduleReconnectLocked() {
	if m.attempts >= m.config.MaxReconnectAttempts {
		m.setStateLocked(StateFailed)
		m.logger.Error("reconnect attempts exhausted",
			slog.Int("attempts", m.attempts),
			slog.String("endpoint", m.config.Endpoint),
		)
		return
	}

	m.attempts++
	delay := time.Duration(m.attempts) * m.config.ReconnectBaseDelay
	m.setStateLocked(StateReconnecting)

	m.logger.Info("reconnect scheduled",
		slog.Int("attempt", m.attempts),
		slog.Duration("delay", delay),
	)
	if m.metrics != nil {
		m.metrics.ReconnectsScheduledTotal.Inc()
	}

	m.reconnectTask = schedule(delay, func() {
		m.mu.Lock()
		// The timer only proceeds if nothing superseded it.
		if m.state != StateReconnecting {
			m.mu.Unlock()
			return
		}
		m.setStateLocked(StateDisconnected)
		m.mu.Unlock()
		m.Connect(context.Background())
	})
}

// connectionLost handles a read or write failure on the connection
// identified by gen. Stale generations are ignored, so the read pump
// exiting after an intentional Disconnect does nothing.
func (m *Manager) connectionLost(gen uint64, cause error) {
	m.mu.Lock()
	if gen != m.gen || m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	m.gen++
	conn := m.conn
	m.conn = nil
	if m.done != nil {
		close(m.done)
		m.done = nil
	}
	m.setStateLocked(StateReconnecting)
	m.scheduleReconnectLocked()
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	m.logger.Warn("connection lost", slog.Any("error", cause))
}

// buffer pushes a message onto the outbox for redelivery.
func (m *Manager) buffer(msg wire.Message) error {
	if _, err := m.queue.Enqueue(msg); err != nil {
		m.logger.Error("outbox rejected message",
			slog.String("kind", string(msg.Kind())),
			slog.Any("error", err),
		)
		return err
	}
	if m.metrics != nil {
		m.metrics.MessagesBufferedTotal.Inc()
	}
	m.logger.Debug("message buffered while offline",
		slog.String("kind", string(msg.Kind())),
		slog.Int("outbox_depth", m.queue.Len()),
	)
	return nil
}

// flushOutbox replays buffered messages in submission order. The caller
// holds sendMu from before the state flipped to Connected, so no new
// send can interleave with the replay. It loops until the queue is
// empty to cover entries buffered by senders that still saw the old
// state after the last drain.
func (m *Manager) flushOutbox(gen uint64, conn Conn) {
	total := 0
	for {
		entries := m.queue.Drain()
		if len(entries) == 0 {
			break
		}
		for i, entry := range entries {
			if err := m.writeConn(conn, entry.Message); err != nil {
				// Put the unsent tail back, ahead of anything new, and
				// let the reconnect path take over. Nothing is dropped.
				m.queue.Requeue(entries[i:])
				m.logger.Warn("outbox flush interrupted",
					slog.Int("flushed", total),
					slog.Int("requeued", len(entries)-i),
					slog.Any("error", err),
				)
				m.connectionLost(gen, err)
				return
			}
			total++
			if m.metrics != nil {
				m.metrics.OutboxFlushedTotal.Inc()
			}
		}
	}

	if total > 0 {
		m.logger.Info("outbox flushed", slog.Int("messages", total))
	}
}

// writeConn encodes and transmits one message. Caller holds sendMu.
func (m *Manager) writeConn(conn Conn, msg wire.Message) error {
	data, err := wire.Encode(msg)
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(data); err != nil {
		return err
	}
	if m.metrics != nil {
		m.metrics.MessagesSentTotal.WithLabelValues(string(msg.Kind())).Inc()
	}
	return nil
}

// readPump reads inbound payloads until the connection dies.
func (m *Manager) readPump(gen uint64, conn Conn) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			if m.metrics != nil {
				m.metrics.ConnectionFailuresTotal.WithLabelValues("read").Inc()
			}
			m.connectionLost(gen, err)
			return
		}
		m.dispatch(data)
	}
}

// dispatch decodes an inbound payload and routes it to the registered
// handler for its kind. Malformed payloads are reported and dropped;
// the connection stays open.
func (m *Manager) dispatch(data []byte) {
	msg, err := wire.Decode(data)
	if err != nil {
		if m.metrics != nil {
			m.metrics.ProtocolErrorsTotal.Inc()
		}
		m.logger.Warn("dropping malformed inbound message", slog.Any("error", err))
		m.reporter.Report(context.Background(), err, report.SeverityMedium,
			map[string]any{"payload_bytes": len(data)})
		return
	}

	if m.metrics != nil {
		m.metrics.MessagesReceivedTotal.WithLabelValues(string(msg.Kind())).Inc()
	}

	m.mu.Lock()
	handler := m.handlers[msg.Kind()]
	m.mu.Unlock()

	if handler == nil {
		m.logger.Debug("no handler for message kind",
			slog.String("kind", string(msg.Kind())))
		return
	}
	m.invokeHandler(handler, msg)
}

// invokeHandler calls a handler with panic recovery so one misbehaving
// handler cannot take down the read pump.
func (m *Manager) invokeHandler(handler Handler, msg wire.Message) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("message handler panicked",
				slog.String("kind", string(msg.Kind())),
				slog.Any("panic", r),
			)
		}
	}()
	handler(msg)
}

// heartbeatLoop emits a heartbeat at the configured interval until the
// current connection is torn down.
func (m *Manager) heartbeatLoop(done chan struct{}) {
	ticker := time.NewTicker(m.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			_ = m.Send(&wire.HeartbeatMessage{Timestamp: time.Now().UnixMilli()})
		}
	}
}
