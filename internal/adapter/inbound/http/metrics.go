// Package http provides the HTTP transport adapter: the composition root
// that dispatches inbound requests to resolution, route CRUD and the login
// flow.
package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for linkgate.
// Pass to components that need to record metrics.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	ResolutionsTotal *prometheus.CounterVec
	SessionsIssued   prometheus.Counter
	ProbesTotal      *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "linkgate",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests processed",
			},
			[]string{"method", "status"}, // status=ok/error
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "linkgate",
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		ResolutionsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "linkgate",
				Name:      "resolutions_total",
				Help:      "Total route resolutions",
			},
			[]string{"outcome"}, // outcome=redirect/not_found
		),
		SessionsIssued: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "linkgate",
				Name:      "sessions_issued_total",
				Help:      "Total sessions issued after successful login",
			},
		),
		ProbesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "linkgate",
				Name:      "target_probes_total",
				Help:      "Total health probes of route targets",
			},
			[]string{"result"}, // result=up/down
		),
	}
}
