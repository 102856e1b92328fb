package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "support_actions_total",
		Help: "Total number of dispatched support actions by outcome",
	}, []string{"action", "outcome"})

	ActionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "support_action_duration_seconds",
		Help:    "Latency of support action dispatch",
		Buckets: prometheus.DefBuckets,
	}, []string{"action"})

	VerificationFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "support_verification_failures_total",
		Help: "Total number of sensitive actions denied by email verification",
	}, []string{"action"})

	AuditEntriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audit_entries_total",
		Help: "Total number of audit entries recorded",
	})

	AuditSinkFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audit_sink_failures_total",
		Help: "Total number of failed audit sink writes",
	}, []string{"sink"})

	AuditSinkLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "audit_sink_latency_seconds",
		Help:    "Latency of audit sink writes",
		Buckets: prometheus.DefBuckets,
	}, []string{"sink"})

	SessionsEndedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sessions_ended_total",
		Help: "Total number of call sessions ended",
	})

	SessionTeardownFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_teardown_failures_total",
		Help: "Total number of failed teardown steps",
	}, []string{"step"})

	EventsConsumedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "action_events_consumed_total",
		Help: "Total number of action events consumed from Kafka",
	}, []string{"result"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
