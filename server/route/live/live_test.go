package live

import (
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"humidstat.api/v0/storage"
)

type fakeAddr struct{ name string }

func (a fakeAddr) Network() string { return "fake" }
func (a fakeAddr) String() string  { return a.name }

// recordingConn accepts every write and keeps the payloads.
type recordingConn struct {
	mutex    sync.Mutex
	messages []interface{}
	closed   bool
}

func (c *recordingConn) SetWriteDeadline(t time.Time) error { return nil }

func (c *recordingConn) WriteJSON(v interface{}) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.messages = append(c.messages, v)
	return nil
}

func (c *recordingConn) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.closed = true
	return nil
}

func (c *recordingConn) RemoteAddr() net.Addr { return fakeAddr{"recording"} }

func (c *recordingConn) count() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.messages)
}

// stalledConn models a peer that stopped reading: writes hang until the
// configured deadline and then fail, like a websocket write timing out.
type stalledConn struct {
	mutex    sync.Mutex
	deadline time.Time
	closed   bool
}

func (c *stalledConn) SetWriteDeadline(t time.Time) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.deadline = t
	return nil
}

func (c *stalledConn) WriteJSON(v interface{}) error {
	c.mutex.Lock()
	deadline := c.deadline
	c.mutex.Unlock()

	if deadline.IsZero() {
		select {} // no deadline set: hangs forever
	}
	time.Sleep(time.Until(deadline))
	return fmt.Errorf("write timed out")
}

func (c *stalledConn) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.closed = true
	return nil
}

func (c *stalledConn) RemoteAddr() net.Addr { return fakeAddr{"stalled"} }

func TestBroadcastDropsStalledClient(t *testing.T) {
	savedWriteWait := writeWait
	writeWait = 100 * time.Millisecond
	defer func() { writeWait = savedWriteWait }()

	hub := NewHub()
	stalled := &stalledConn{}
	healthy := &recordingConn{}
	hub.register(stalled)
	hub.register(healthy)

	// The broadcast sits on the ingestion path; a peer that stopped
	// reading must cost at most the write deadline, once.
	done := make(chan struct{})
	go func() {
		hub.BroadcastReading(storage.Reading{Timestamp: "2026-08-30 12:00:00", Humidity: 45.3})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(writeWait + time.Second):
		t.Fatal("broadcast stalled on a client that stopped reading")
	}

	if hub.ClientCount() != 1 {
		t.Fatalf("client count: got %d, want 1 (stalled client dropped)", hub.ClientCount())
	}
	stalled.mutex.Lock()
	closed := stalled.closed
	stalled.mutex.Unlock()
	if !closed {
		t.Error("expected the stalled client's connection to be closed")
	}

	// Subsequent broadcasts are unaffected and reach the healthy client.
	hub.BroadcastReading(storage.Reading{Timestamp: "2026-08-30 12:00:05", Humidity: 46.1})
	if got := healthy.count(); got != 2 {
		t.Errorf("healthy client messages: got %d, want 2", got)
	}
}

func TestUnregisterIsIdempotent(t *testing.T) {
	hub := NewHub()
	client := &recordingConn{}

	hub.register(client)
	if hub.ClientCount() != 1 {
		t.Fatalf("client count: got %d, want 1", hub.ClientCount())
	}

	hub.unregister(client)
	hub.unregister(client)
	if hub.ClientCount() != 0 {
		t.Fatalf("client count: got %d, want 0", hub.ClientCount())
	}
}
