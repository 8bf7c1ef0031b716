// vnrec - VNDB Recommendation Engine
// Copyright 2026 vndb-tools
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vndb-tools/vnrec

// Package metrics exposes Prometheus instrumentation for the HTTP API, the
// rebuild cycle and the VNDB enrichment path.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP API metrics
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vnrec_api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vnrec_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// Pairwise table rebuild metrics
	RebuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vnrec_rebuild_duration_seconds",
			Help:    "Duration of pairwise table rebuilds in seconds",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
		},
	)

	RebuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vnrec_rebuilds_total",
			Help: "Total number of pairwise table rebuilds",
		},
		[]string{"result"}, // "success", "error", "canceled"
	)

	// Rating cache gauges
	CacheUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vnrec_cache_users",
			Help: "Number of users retained after filtering",
		},
	)

	CacheTitles = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vnrec_cache_titles",
			Help: "Number of titles known to the rating cache",
		},
	)

	// Recommendation serving metrics
	RecommendationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vnrec_recommendation_duration_seconds",
			Help:    "Duration of full recommendation requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	RecommendationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vnrec_recommendations_total",
			Help: "Total number of recommendation requests",
		},
		[]string{"result"}, // "success", "user_not_found", "error"
	)
)

// RecordAPIRequest records one served HTTP request.
func RecordAPIRequest(method, endpoint, status string, duration time.Duration) {
	APIRequestDuration.WithLabelValues(method, endpoint, status).Observe(duration.Seconds())
	APIRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
}

// RecordRebuild records the outcome of one rebuild cycle.
func RecordRebuild(duration time.Duration, result string) {
	RebuildDuration.Observe(duration.Seconds())
	RebuildsTotal.WithLabelValues(result).Inc()
}

// SetCacheSize updates the rating cache gauges.
func SetCacheSize(users, titles int) {
	CacheUsers.Set(float64(users))
	CacheTitles.Set(float64(titles))
}
