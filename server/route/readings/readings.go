// The readings package serves the query and export surface over the
// reading store.
package readings

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"humidstat.api/v0/storage"
)

const defaultRecentCount = 50

var store *storage.ReadingStore

// Requests the last n readings.
func recentGetHandler(w http.ResponseWriter, r *http.Request) {
	count := defaultRecentCount
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			http.Error(w, fmt.Sprintf("invalid count '%s'", raw), http.StatusBadRequest)
			return
		}
		count = parsed
	}
	writeJSON(w, store.Recent(count))
}

// Requests the readings within a daily/weekly/monthly window.
func periodGetHandler(w http.ResponseWriter, r *http.Request) {
	period := mux.Vars(r)["period"]
	writeJSON(w, store.ByPeriod(period))
}

// Requests the readings between two calendar days, inclusive.
func rangeGetHandler(w http.ResponseWriter, r *http.Request) {
	start := r.URL.Query().Get("start")
	end := r.URL.Query().Get("end")
	writeJSON(w, store.ByDateRange(start, end))
}

// Requests statistics over a period window.
func statsGetHandler(w http.ResponseWriter, r *http.Request) {
	period := mux.Vars(r)["period"]
	writeJSON(w, store.Statistics(period))
}

// Requests an export of the readings in csv or json form.
func exportGetHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	format := query.Get("format")
	if format == "" {
		format = "csv"
	}

	content, err := store.Export(format, query.Get("start"), query.Get("end"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if strings.EqualFold(format, "json") {
		w.Header().Add("Content-Type", "application/json")
	} else {
		w.Header().Add("Content-Type", "text/csv")
	}
	w.Write([]byte(content))
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

func CreateRoute(r *mux.Router, readingStore *storage.ReadingStore) {
	store = readingStore

	r.HandleFunc("/recent", recentGetHandler).Methods("GET")
	r.HandleFunc("/period/{period}", periodGetHandler).Methods("GET")
	r.HandleFunc("/range", rangeGetHandler).Methods("GET")
	r.HandleFunc("/stats/{period}", statsGetHandler).Methods("GET")
	r.HandleFunc("/export", exportGetHandler).Methods("GET")
}
