package route

import (
	mux "github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"humidstat.api/v0/internal/config"
	"humidstat.api/v0/pkg/alert"
	"humidstat.api/v0/pkg/sensor"
	"humidstat.api/v0/server/route/alerts"
	"humidstat.api/v0/server/route/device"
	"humidstat.api/v0/server/route/live"
	"humidstat.api/v0/server/route/ping"
	"humidstat.api/v0/server/route/readings"
	"humidstat.api/v0/server/route/settings"
	"humidstat.api/v0/storage"
)

// Core bundles the components the route packages serve.
type Core struct {
	Config    *config.Config
	Readings  *storage.ReadingStore
	AlertLog  *storage.AlertLog
	Evaluator *alert.Evaluator
	Sensor    *sensor.Manager
	Live      *live.Hub
}

func InitRootRoute(r *mux.Router, core *Core) {
	// Ping endpoint.
	pingSubrouter := r.PathPrefix("/ping").Subrouter()
	ping.CreateRoute(pingSubrouter)

	// Reading queries and export.
	readingsSubrouter := r.PathPrefix("/api/readings").Subrouter()
	readings.CreateRoute(readingsSubrouter, core.Readings)

	// Alert history, state and settings.
	alertsSubrouter := r.PathPrefix("/api/alerts").Subrouter()
	alerts.CreateRoute(alertsSubrouter, core.Config, core.Evaluator, core.AlertLog)

	thresholdsSubrouter := r.PathPrefix("/api/thresholds").Subrouter()
	alerts.CreateThresholdsRoute(thresholdsSubrouter)

	// Display, device and data-retention settings.
	settingsSubrouter := r.PathPrefix("/api/settings").Subrouter()
	settings.CreateRoute(settingsSubrouter, core.Config, core.Evaluator)

	// Device connection lifecycle.
	deviceSubrouter := r.PathPrefix("/api/sensor").Subrouter()
	device.CreateRoute(deviceSubrouter, core.Sensor)

	// Live sample/alert stream.
	liveSubrouter := r.PathPrefix("/api/live").Subrouter()
	live.CreateRoute(liveSubrouter, core.Live)

	// Prometheus instrumentation.
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
}
