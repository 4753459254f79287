package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ping_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ping_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	AgentsRegistered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ping_agents_registered_total",
			Help: "Total agents registered",
		},
	)

	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ping_messages_sent_total",
			Help: "Total messages accepted",
		},
		[]string{"kind"},
	)

	MessagesDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ping_messages_delivered_total",
			Help: "Delivery outcomes by channel",
		},
		[]string{"method"}, // "push", "webhook" or "polling"
	)

	MessagesAcknowledged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ping_messages_acknowledged_total",
			Help: "Total messages acknowledged",
		},
	)

	SignatureFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ping_signature_failures_total",
			Help: "Total rejected message signatures",
		},
	)

	WebhookFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ping_webhook_failures_total",
			Help: "Total failed webhook delivery attempts",
		},
	)

	OpenPushSockets = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ping_open_push_sockets",
			Help: "Currently open push channel connections",
		},
	)
)
