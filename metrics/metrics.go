package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ux_interviewer_http_requests_total",
			Help: "Total number of HTTP requests served",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ux_interviewer_http_request_duration_seconds",
			Help:    "Time taken to serve HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	RateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ux_interviewer_rate_limited_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
	)

	// WebSocketConnections tracks clients connected to this process
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ux_interviewer",
			Subsystem: "realtime",
			Name:      "connections",
			Help:      "Number of connected WebSocket clients",
		},
	)

	// WebSocketEvents counts events by direction ("inbound", "outbound") and outcome
	WebSocketEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ux_interviewer",
			Subsystem: "realtime",
			Name:      "events_total",
			Help:      "Total number of WebSocket events processed",
		},
		[]string{"direction", "result"},
	)

	EmailsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ux_interviewer_emails_sent_total",
			Help: "Total number of email send attempts",
		},
		[]string{"result"},
	)

	DatabaseResets = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ux_interviewer_database_resets_total",
			Help: "Total number of database resets performed",
		},
	)
)
