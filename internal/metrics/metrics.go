// The metrics package exposes the service's prometheus instrumentation,
// served on /metrics by the HTTP server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SamplesTotal counts every accepted humidity sample.
	SamplesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "humidstat_samples_total",
			Help: "Total number of humidity samples ingested",
		},
	)

	// AlertsTotal counts emitted alert events by type.
	AlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "humidstat_alerts_total",
			Help: "Total number of alert events emitted",
		},
		[]string{"type"},
	)

	// LastHumidity is the most recently ingested humidity value.
	LastHumidity = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "humidstat_last_humidity_percent",
			Help: "Last ingested humidity value",
		},
	)
)
