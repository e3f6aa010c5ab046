package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "therapy_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "therapy_http_request_duration_seconds",
			Help: "HTTP request duration in seconds",
		},
		[]string{"method", "route"},
	)

	AIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "therapy_ai_requests_total",
			Help: "Provider calls by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	AILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "therapy_ai_request_duration_seconds",
			Help:    "Provider call latency in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
		},
		[]string{"operation"},
	)

	SessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "therapy_sessions_created_total",
			Help: "Total number of chat sessions created",
		},
	)

	Evaluations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "therapy_evaluations_total",
			Help: "Wellness evaluations attempted, by outcome",
		},
		[]string{"outcome"},
	)

	CrisisSignals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "therapy_crisis_signals_total",
			Help: "User messages flagged by the crisis screen, by level",
		},
		[]string{"level"},
	)
)

// Outcome labels shared by the AI and evaluation counters.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeInvalid = "invalid"
)
