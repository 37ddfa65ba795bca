// The settings package serves the non-alert configuration groups, the
// rendering of the original settings form against the HTTP surface.
package settings

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"humidstat.api/v0/internal/config"
	"humidstat.api/v0/pkg/alert"
)

var (
	cfg       *config.Config
	evaluator *alert.Evaluator
)

// Requests the full settings tree.
func settingsGetHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, cfg.Snapshot())
}

// Requests the current display settings.
func displayGetHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, cfg.Display())
}

// Requests a display settings update.
func displayPutHandler(w http.ResponseWriter, r *http.Request) {
	settings := cfg.Display()
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		http.Error(w, fmt.Sprintf("failed to parse display settings: %v", err), http.StatusBadRequest)
		return
	}
	cfg.SetDisplay(settings)
	writeJSON(w, cfg.Display())
}

// Requests the current device settings.
func deviceGetHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, cfg.Device())
}

// Requests a device settings update. Takes effect on the next connection
// attempt; an open connection is left alone.
func devicePutHandler(w http.ResponseWriter, r *http.Request) {
	settings := cfg.Device()
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		http.Error(w, fmt.Sprintf("failed to parse device settings: %v", err), http.StatusBadRequest)
		return
	}
	cfg.SetDevice(settings)
	writeJSON(w, cfg.Device())
}

// Requests the current data-retention settings.
func dataGetHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, cfg.Data())
}

// Requests a data-retention settings update.
func dataPutHandler(w http.ResponseWriter, r *http.Request) {
	settings := cfg.Data()
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		http.Error(w, fmt.Sprintf("failed to parse data settings: %v", err), http.StatusBadRequest)
		return
	}
	cfg.SetData(settings)
	writeJSON(w, cfg.Data())
}

// Requests a reset of every settings group back to the defaults. The reset
// moves the thresholds, so prior alert context is invalidated with it.
func resetPostHandler(w http.ResponseWriter, r *http.Request) {
	cfg.ResetToDefaults()
	evaluator.ClearAll()
	writeJSON(w, cfg.Snapshot())
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

func CreateRoute(r *mux.Router, conf *config.Config, ev *alert.Evaluator) {
	cfg = conf
	evaluator = ev

	r.HandleFunc("", settingsGetHandler).Methods("GET")
	r.HandleFunc("/display", displayGetHandler).Methods("GET")
	r.HandleFunc("/display", displayPutHandler).Methods("PUT")
	r.HandleFunc("/device", deviceGetHandler).Methods("GET")
	r.HandleFunc("/device", devicePutHandler).Methods("PUT")
	r.HandleFunc("/data", dataGetHandler).Methods("GET")
	r.HandleFunc("/data", dataPutHandler).Methods("PUT")
	r.HandleFunc("/reset", resetPostHandler).Methods("POST")
}
