// Copyright (C) 2025 Arashek
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/agpl-3.0.html> for the full license text.

package store

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for document store operations.
var (
	tracer = otel.Tracer("arashek.collab.store")
	meter  = otel.Meter("arashek.collab.store")
)

// Metrics for document store operations.
var (
	cacheHits       metric.Int64Counter
	cacheMisses     metric.Int64Counter
	fetchLatency    metric.Float64Histogram
	changesApplied  metric.Int64Counter
	persistFailures metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		cacheHits, err = meter.Int64Counter(
			"document_cache_hits_total",
			metric.WithDescription("Total number of document cache hits"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cacheMisses, err = meter.Int64Counter(
			"document_cache_misses_total",
			metric.WithDescription("Total number of document cache misses"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		fetchLatency, err = meter.Float64Histogram(
			"document_fetch_duration_seconds",
			metric.WithDescription("Duration of durable-store document fetches"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		changesApplied, err = meter.Int64Counter(
			"changes_applied_total",
			metric.WithDescription("Total number of changes applied to documents"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		persistFailures, err = meter.Int64Counter(
			"change_persist_failures_total",
			metric.WithDescription("Total number of failed durable-store change writes"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordCacheHit records a document cache hit.
func recordCacheHit(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	cacheHits.Add(ctx, 1)
}

// recordCacheMiss records a document cache miss.
func recordCacheMiss(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	cacheMisses.Add(ctx, 1)
}

// recordFetchLatency records the latency of a durable-store fetch.
func recordFetchLatency(ctx context.Context, duration time.Duration, ok bool) {
	if err := initMetrics(); err != nil {
		return
	}
	fetchLatency.Record(ctx, duration.Seconds(),
		metric.WithAttributes(attribute.Bool("ok", ok)),
	)
}

// recordChangeApplied records one applied change, local or remote.
func recordChangeApplied(ctx context.Context, origin string) {
	if err := initMetrics(); err != nil {
		return
	}
	changesApplied.Add(ctx, 1,
		metric.WithAttributes(attribute.String("origin", origin)),
	)
}

// recordPersistFailure records one failed durable write.
func recordPersistFailure(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	persistFailures.Add(ctx, 1)
}

// startStoreSpan creates a span for a store operation.
func startStoreSpan(ctx context.Context, operation, documentID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "DocumentStore."+operation,
		trace.WithAttributes(
			attribute.String("store.operation", operation),
			attribute.String("store.document_id", documentID),
		),
	)
}
