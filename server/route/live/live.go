// The live package streams samples and alert events to websocket clients,
// the remote rendering of the onSample/onAlert registrations.
package live

import (
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"humidstat.api/v0/pkg/alert"
	"humidstat.api/v0/storage"
)

// Upper bound on a single client write. A client that cannot take a
// message within this window is dropped; broadcasts sit on the sample
// ingestion path and must never block on a stalled peer.
var writeWait = 2 * time.Second

// message is the envelope pushed to every connected client.
type message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// conn is the slice of gorilla's websocket.Conn the hub needs; narrowed so
// tests can substitute a transport.
type conn interface {
	SetWriteDeadline(t time.Time) error
	WriteJSON(v interface{}) error
	Close() error
	RemoteAddr() net.Addr
}

// Hub tracks connected websocket clients and fans messages out to them.
// A client that fails or times out a write is dropped.
type Hub struct {
	mutex   sync.Mutex
	clients map[conn]bool
}

func NewHub() *Hub {
	return &Hub{clients: map[conn]bool{}}
}

// BroadcastReading pushes a stored reading to every client.
func (hub *Hub) BroadcastReading(reading storage.Reading) {
	hub.broadcast(message{Type: "sample", Data: reading})
}

// BroadcastAlert pushes an alert event to every client.
func (hub *Hub) BroadcastAlert(event alert.Event) {
	hub.broadcast(message{Type: "alert", Data: event.Record()})
}

func (hub *Hub) broadcast(msg message) {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()

	for client := range hub.clients {
		client.SetWriteDeadline(time.Now().Add(writeWait))
		if err := client.WriteJSON(msg); err != nil {
			log.Printf("Dropping live client %s: %v\n", client.RemoteAddr(), err)
			client.Close()
			delete(hub.clients, client)
		}
	}
}

// ClientCount returns the number of connected clients.
func (hub *Hub) ClientCount() int {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()
	return len(hub.clients)
}

var upgrader = websocket.Upgrader{
	// The presentation layer may be served from anywhere on the local
	// network.
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (hub *Hub) register(client conn) {
	hub.mutex.Lock()
	hub.clients[client] = true
	hub.mutex.Unlock()
}

func (hub *Hub) unregister(client conn) {
	hub.mutex.Lock()
	if hub.clients[client] {
		client.Close()
		delete(hub.clients, client)
	}
	hub.mutex.Unlock()
}

func CreateRoute(r *mux.Router, hub *Hub) {
	r.HandleFunc("", func(w http.ResponseWriter, req *http.Request) {
		wsConn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			log.Printf("Failed to upgrade live client: %v\n", err)
			return
		}
		hub.register(wsConn)

		// Drain the connection to observe the client going away.
		go func() {
			defer hub.unregister(wsConn)
			for {
				if _, _, err := wsConn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}).Methods("GET")
}
