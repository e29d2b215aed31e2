// Copyright (C) 2025 PersonaCast Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides metrics and instrumentation for the chatbot.
//
// # Description
//
// Prometheus metrics for the chat pipeline:
//   - Request counters by endpoint and status
//   - Strategy decision counters (full retrieval, memory only, blended)
//   - Retrieval and generation latency histograms
//   - Fallback and retrieval failure counters
//   - Active session gauge
//
// # Integration
//
// Metrics are exposed via the /metrics endpoint. Use with Prometheus +
// Grafana for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

const metricsNamespace = "personacast"

const chatSubsystem = "chat"

// ChatMetrics holds all Prometheus metrics for chat operations.
//
// # Fields
//
//   - RequestsTotal: Counter of chat requests by endpoint and status.
//   - StrategyDecisionsTotal: Counter of classifier decisions by strategy and origin.
//   - RetrievalDurationSeconds: Histogram of vector store query latency.
//   - GenerationDurationSeconds: Histogram of model generation latency.
//   - FallbacksTotal: Counter of degraded answers by cause.
//   - ActiveSessions: Gauge of sessions currently held in memory.
//
// # Thread Safety
//
// All operations are thread-safe.
type ChatMetrics struct {
	// RequestsTotal counts chat requests.
	// Labels: endpoint (chat, voice, ws), status (success, error)
	RequestsTotal *prometheus.CounterVec

	// StrategyDecisionsTotal counts classifier outcomes.
	// Labels: strategy (FULL_RETRIEVAL, MEMORY_ONLY, BLENDED),
	// origin (rule, llm, cache, degraded)
	StrategyDecisionsTotal *prometheus.CounterVec

	// RetrievalDurationSeconds measures vector store query latency.
	RetrievalDurationSeconds prometheus.Histogram

	// GenerationDurationSeconds measures model generation latency.
	GenerationDurationSeconds prometheus.Histogram

	// FallbacksTotal counts degraded answers.
	// Labels: cause (generation_failed, retrieval_failed, classifier_degraded)
	FallbacksTotal *prometheus.CounterVec

	// ActiveSessions tracks sessions currently held in memory.
	ActiveSessions prometheus.Gauge
}

// DefaultMetrics is the singleton instance of ChatMetrics.
// Initialized by InitMetrics().
var DefaultMetrics *ChatMetrics

// InitMetrics creates and registers all Prometheus metrics. Call once at
// application startup; a second call panics on duplicate registration.
func InitMetrics() *ChatMetrics {
	DefaultMetrics = &ChatMetrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "requests_total",
				Help:      "Total chat requests by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),

		StrategyDecisionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "strategy_decisions_total",
				Help:      "Classifier decisions by strategy and origin",
			},
			[]string{"strategy", "origin"},
		),

		RetrievalDurationSeconds: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "retrieval_duration_seconds",
				Help:      "Vector store query latency in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
		),

		GenerationDurationSeconds: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "generation_duration_seconds",
				Help:      "Model generation latency in seconds",
				Buckets:   []float64{0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
			},
		),

		FallbacksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "fallbacks_total",
				Help:      "Degraded answers by cause",
			},
			[]string{"cause"},
		),

		ActiveSessions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "active_sessions",
				Help:      "Sessions currently held in memory",
			},
		),
	}

	return DefaultMetrics
}

// =============================================================================
// Fallback Causes
// =============================================================================

// FallbackCause categorizes why an answer degraded.
type FallbackCause string

const (
	// CauseGenerationFailed indicates the response model failed.
	CauseGenerationFailed FallbackCause = "generation_failed"

	// CauseRetrievalFailed indicates the vector store was unreachable.
	CauseRetrievalFailed FallbackCause = "retrieval_failed"

	// CauseClassifierDegraded indicates the classifier fell back to the
	// default strategy.
	CauseClassifierDegraded FallbackCause = "classifier_degraded"
)

// =============================================================================
// Helper Methods
// =============================================================================

// RecordRequest records a completed chat request.
func (m *ChatMetrics) RecordRequest(endpoint string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.RequestsTotal.WithLabelValues(endpoint, status).Inc()
}

// RecordStrategy records one classifier decision.
func (m *ChatMetrics) RecordStrategy(strategy, origin string) {
	m.StrategyDecisionsTotal.WithLabelValues(strategy, origin).Inc()
}

// RecordFallback records a degraded answer.
func (m *ChatMetrics) RecordFallback(cause FallbackCause) {
	m.FallbacksTotal.WithLabelValues(string(cause)).Inc()
}

// ObserveRetrieval records vector store query latency.
func (m *ChatMetrics) ObserveRetrieval(seconds float64) {
	m.RetrievalDurationSeconds.Observe(seconds)
}

// ObserveGeneration records model generation latency.
func (m *ChatMetrics) ObserveGeneration(seconds float64) {
	m.GenerationDurationSeconds.Observe(seconds)
}

// SetActiveSessions updates the session gauge.
func (m *ChatMetrics) SetActiveSessions(n int) {
	m.ActiveSessions.Set(float64(n))
}
