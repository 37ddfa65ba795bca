// The device package serves the connection lifecycle of the sensor device:
// connect, disconnect, acquisition start/stop and raw commands.
package device

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"humidstat.api/v0/pkg/sensor"
)

var manager *sensor.Manager

// Requests the current connection state snapshot.
func infoGetHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, manager.ConnectionInfo())
}

// Requests an automatic connection attempt: serial first, then networked.
func connectPostHandler(w http.ResponseWriter, r *http.Request) {
	connected, message := manager.AutoConnect()
	writeJSON(w, map[string]interface{}{
		"connected": connected,
		"message":   message,
	})
}

// Requests a disconnect. Safe when already disconnected.
func disconnectPostHandler(w http.ResponseWriter, r *http.Request) {
	manager.Disconnect()
	writeJSON(w, manager.ConnectionInfo())
}

// Requests the acquisition loop to start.
func startPostHandler(w http.ResponseWriter, r *http.Request) {
	if err := manager.Start(); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, manager.ConnectionInfo())
}

// Requests the acquisition loop to stop.
func stopPostHandler(w http.ResponseWriter, r *http.Request) {
	manager.Stop()
	writeJSON(w, manager.ConnectionInfo())
}

// Requests a raw command round-trip over the serial transport.
func commandPostHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Command string `json:"command"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Command == "" {
		http.Error(w, "expected a non-empty 'command' field", http.StatusBadRequest)
		return
	}

	reply, err := manager.SendCommand(body.Command)
	if err != nil {
		http.Error(w, fmt.Sprintf("command failed: %v", err), http.StatusConflict)
		return
	}
	writeJSON(w, map[string]string{"reply": reply})
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

func CreateRoute(r *mux.Router, mgr *sensor.Manager) {
	manager = mgr

	r.HandleFunc("", infoGetHandler).Methods("GET")
	r.HandleFunc("/connect", connectPostHandler).Methods("POST")
	r.HandleFunc("/disconnect", disconnectPostHandler).Methods("POST")
	r.HandleFunc("/start", startPostHandler).Methods("POST")
	r.HandleFunc("/stop", stopPostHandler).Methods("POST")
	r.HandleFunc("/command", commandPostHandler).Methods("POST")
}
