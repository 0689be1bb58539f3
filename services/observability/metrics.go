// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package observability

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/tweetcheck/services/policy_engine"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "tweetcheck"

// Metrics holds the application's Prometheus series.
//
// # Description
//
// One Metrics value is created at startup and handed to every component that
// reports measurements. It satisfies factcheck.Recorder and fetcher.Observer
// directly; model calls are measured by wrapping a client with
// InstrumentLLM.
//
// # Fields
//
//   - PipelineRuns: Counter of pipeline runs by status
//   - PipelineDuration: Histogram of pipeline wall time
//   - Fetches: Counter of page fetches by outcome
//   - FetchDuration: Histogram of page fetch latency
//   - LLMCalls: Counter of model calls by model and status
//   - LLMDuration: Histogram of model call latency
//   - Redactions: Counter of redacted spans by source and classification
//   - TweetLookups: Counter of tweet lookups by outcome
//   - HTTPRequests: Counter of API requests by route, method and code
//   - HTTPDuration: Histogram of API request latency
//
// # Thread Safety
//
// All operations are thread-safe.
type Metrics struct {
	// PipelineRuns counts runs.
	// Labels: status (ok, degraded, failed)
	PipelineRuns *prometheus.CounterVec

	// PipelineDuration measures a run end to end.
	// Labels: status
	PipelineDuration *prometheus.HistogramVec

	// Fetches counts network fetches.
	// Labels: outcome (success, error)
	Fetches *prometheus.CounterVec

	// FetchDuration measures fetch latency.
	// Labels: outcome
	FetchDuration *prometheus.HistogramVec

	// LLMCalls counts model calls.
	// Labels: model, status (success, error)
	LLMCalls *prometheus.CounterVec

	// LLMDuration measures model latency.
	// Labels: model
	LLMDuration *prometheus.HistogramVec

	// Redactions counts spans removed from scraped content.
	// Labels: source, classification (secret, pii)
	Redactions *prometheus.CounterVec

	// TweetLookups counts tweet extraction attempts.
	// Labels: outcome (success, cooldown, rejected, error)
	TweetLookups *prometheus.CounterVec

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers every series on reg.
//
// # Description
//
// A nil reg registers on prometheus.DefaultRegisterer, which is what the
// /metrics handler serves. Tests pass a fresh prometheus.NewRegistry().
//
// # Limitations
//
//   - Panics if called twice against the same registry (duplicate registration).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		PipelineRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "pipeline",
				Name:      "runs_total",
				Help:      "Total number of fact-check runs by status",
			},
			[]string{"status"},
		),
		PipelineDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "pipeline",
				Name:      "duration_seconds",
				Help:      "Fact-check run duration",
				Buckets:   []float64{1, 2.5, 5, 10, 20, 30, 60, 120, 300},
			},
			[]string{"status"},
		),
		Fetches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "fetcher",
				Name:      "requests_total",
				Help:      "Total number of page fetches by outcome",
			},
			[]string{"outcome"},
		),
		FetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "fetcher",
				Name:      "duration_seconds",
				Help:      "Page fetch latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		LLMCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "llm",
				Name:      "calls_total",
				Help:      "Total number of model calls by model and status",
			},
			[]string{"model", "status"},
		),
		LLMDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "llm",
				Name:      "duration_seconds",
				Help:      "Model call latency",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 60, 120},
			},
			[]string{"model"},
		),
		Redactions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "policy",
				Name:      "redactions_total",
				Help:      "Spans redacted from content before it reaches a model",
			},
			[]string{"source", "classification"},
		),
		TweetLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "twitter",
				Name:      "lookups_total",
				Help:      "Tweet lookups by outcome",
			},
			[]string{"outcome"},
		),
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "API requests by route, method and status code",
			},
			[]string{"route", "method", "code"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "API request latency",
				Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"route", "method"},
		),
	}
}

// =============================================================================
// Recording Helpers
// =============================================================================

// RecordRun records one pipeline run.
func (m *Metrics) RecordRun(status string, duration time.Duration) {
	m.PipelineRuns.WithLabelValues(status).Inc()
	m.PipelineDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordRedactions counts findings by classification.
func (m *Metrics) RecordRedactions(source string, findings []policy_engine.Finding) {
	for _, f := range findings {
		m.Redactions.WithLabelValues(source, f.ClassificationName).Inc()
	}
}

// ObserveFetch records one page fetch.
func (m *Metrics) ObserveFetch(outcome string, duration time.Duration) {
	m.Fetches.WithLabelValues(outcome).Inc()
	m.FetchDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordLLMCall records one model call.
func (m *Metrics) RecordLLMCall(model string, duration time.Duration, err error) {
	m.LLMCalls.WithLabelValues(model, statusLabel(err)).Inc()
	m.LLMDuration.WithLabelValues(model).Observe(duration.Seconds())
}

// RecordLookup records one tweet lookup.
func (m *Metrics) RecordLookup(outcome string) {
	m.TweetLookups.WithLabelValues(outcome).Inc()
}

// RecordHTTP records one API request.
func (m *Metrics) RecordHTTP(route, method string, code int, duration time.Duration) {
	m.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	m.HTTPDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

func statusLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
