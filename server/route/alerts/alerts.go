// The alerts package serves the alert history, live alert state and the
// alert/threshold settings mutators.
package alerts

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"humidstat.api/v0/internal/config"
	"humidstat.api/v0/pkg/alert"
	"humidstat.api/v0/storage"
)

var (
	cfg       *config.Config
	evaluator *alert.Evaluator
	alertLog  *storage.AlertLog
)

// Requests the alert records emitted within the last N hours.
func recentGetHandler(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if raw := r.URL.Query().Get("hours"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			http.Error(w, fmt.Sprintf("invalid hours '%s'", raw), http.StatusBadRequest)
			return
		}
		hours = parsed
	}
	writeJSON(w, alertLog.Recent(hours))
}

// Requests the live active flags per alert kind.
func activeGetHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, evaluator.ActiveAlerts())
}

// Requests a synthetic notification through the full pipeline.
func testPostHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]bool{"success": evaluator.TestAlert()})
}

// Requests the current alert settings.
func settingsGetHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, cfg.Alerts())
}

// Requests an alert settings update.
func settingsPutHandler(w http.ResponseWriter, r *http.Request) {
	settings := cfg.Alerts()
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		http.Error(w, fmt.Sprintf("failed to parse settings: %v", err), http.StatusBadRequest)
		return
	}

	cfg.SetAlerts(settings)
	if !settings.Enabled {
		evaluator.ClearAll()
	}
	writeJSON(w, cfg.Alerts())
}

// Requests the current thresholds.
func thresholdsGetHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, cfg.Thresholds())
}

// Requests a threshold update. Values are clamped rather than rejected; the
// stored values are returned.
func thresholdsPutHandler(w http.ResponseWriter, r *http.Request) {
	var thresholds config.ThresholdSettings
	if err := json.NewDecoder(r.Body).Decode(&thresholds); err != nil {
		http.Error(w, fmt.Sprintf("failed to parse thresholds: %v", err), http.StatusBadRequest)
		return
	}
	writeJSON(w, evaluator.UpdateThresholds(thresholds.High, thresholds.Low))
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	serialized, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to serialize response", http.StatusInternalServerError)
		return
	}
	w.Header().Add("Content-Type", "application/json")
	w.Write(serialized)
}

func CreateRoute(r *mux.Router, conf *config.Config, ev *alert.Evaluator, records *storage.AlertLog) {
	cfg = conf
	evaluator = ev
	alertLog = records

	r.HandleFunc("/recent", recentGetHandler).Methods("GET")
	r.HandleFunc("/active", activeGetHandler).Methods("GET")
	r.HandleFunc("/test", testPostHandler).Methods("POST")
	r.HandleFunc("/settings", settingsGetHandler).Methods("GET")
	r.HandleFunc("/settings", settingsPutHandler).Methods("PUT")
}

// CreateThresholdsRoute registers the threshold accessors, mounted apart
// from the alert group.
func CreateThresholdsRoute(r *mux.Router) {
	r.HandleFunc("", thresholdsGetHandler).Methods("GET")
	r.HandleFunc("", thresholdsPutHandler).Methods("PUT")
}
