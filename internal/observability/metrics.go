package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lending_http_requests_total",
			Help: "HTTP requests by route, method and status.",
		},
		[]string{"route", "method", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lending_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	OutboxJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lending_outbox_jobs_total",
			Help: "Outbox jobs processed by topic and result.",
		},
		[]string{"topic", "result"},
	)

	WSClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lending_ws_clients",
			Help: "Connected websocket clients.",
		},
	)
)
