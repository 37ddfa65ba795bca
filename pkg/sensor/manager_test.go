package sensor

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.bug.st/serial/enumerator"
)

// fakePort is an in-memory serial transport. An empty buffer behaves like a
// read timeout (n == 0, no error), matching go.bug.st/serial semantics.
type fakePort struct {
	mutex   sync.Mutex
	pending []byte
	written []byte
	readErr error
	closed  bool
}

func (p *fakePort) Read(buf []byte) (int, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if len(p.pending) == 0 {
		if p.readErr != nil {
			return 0, p.readErr
		}
		return 0, nil
	}
	n := copy(buf, p.pending)
	p.pending = p.pending[n:]
	return n, nil
}

func (p *fakePort) Write(buf []byte) (int, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.written = append(p.written, buf...)
	return len(buf), nil
}

func (p *fakePort) SetReadTimeout(t time.Duration) error { return nil }

func (p *fakePort) Close() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.closed = true
	return nil
}

func (p *fakePort) feed(data string) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.pending = append(p.pending, data...)
}

func (p *fakePort) failReads(err error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.readErr = err
}

// newSerialManager wires a Manager to a fakePort and a sample-collecting
// channel.
func newSerialManager(port *fakePort) (*Manager, chan float64) {
	samples := make(chan float64, 16)
	mgr := NewManager(ManagerOptions{
		Sink:   func(humidity float64) { samples <- humidity },
		WifiIP: "192.168.4.1",
	})
	mgr.openPort = func(name string) (serialPort, error) { return port, nil }
	mgr.listPorts = func() ([]*enumerator.PortDetails, error) {
		return []*enumerator.PortDetails{
			{Name: "/dev/ttyUSB7", IsUSB: true, VID: "10C4", PID: "EA60"},
		}, nil
	}
	mgr.probe = func(addr string, timeout time.Duration) bool { return false }
	return mgr, samples
}

func waitSample(t *testing.T, samples chan float64) float64 {
	t.Helper()
	select {
	case humidity := <-samples:
		return humidity
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a sample")
		return 0
	}
}

func TestStartRequiresConnection(t *testing.T) {
	mgr, _ := newSerialManager(&fakePort{})
	if err := mgr.Start(); err == nil {
		t.Fatal("expected Start to fail while disconnected")
	}
}

func TestDiscoverSerialPort(t *testing.T) {
	mgr, _ := newSerialManager(&fakePort{})

	port, ok := mgr.DiscoverSerialPort()
	if !ok || port != "/dev/ttyUSB7" {
		t.Fatalf("got (%q, %v), want (/dev/ttyUSB7, true)", port, ok)
	}

	// Non-matching identities are skipped.
	mgr.listPorts = func() ([]*enumerator.PortDetails, error) {
		return []*enumerator.PortDetails{
			{Name: "/dev/ttyS0", IsUSB: false},
			{Name: "/dev/ttyUSB0", IsUSB: true, VID: "DEAD", PID: "BEEF"},
		}, nil
	}
	if _, ok := mgr.DiscoverSerialPort(); ok {
		t.Fatal("expected discovery to find nothing")
	}
}

func TestSerialAcquisition(t *testing.T) {
	port := &fakePort{}
	mgr, samples := newSerialManager(port)

	if !mgr.ConnectSerial("") {
		t.Fatal("expected serial connect to succeed")
	}
	if !mgr.IsConnected() {
		t.Fatal("expected manager to report connected")
	}
	if err := mgr.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	port.feed("Humidity: 45.3\nnoise\nHumidity: 150\nHumidity: 61.0\n")

	if got := waitSample(t, samples); got != 45.3 {
		t.Errorf("first sample: got %v, want 45.3", got)
	}
	if got := waitSample(t, samples); got != 61.0 {
		t.Errorf("second sample: got %v, want 61.0 (malformed lines must be dropped)", got)
	}

	mgr.Stop()
	if mgr.ConnectionInfo().Monitoring {
		t.Error("expected monitoring to be stopped")
	}
	// Stop is idempotent.
	mgr.Stop()

	mgr.Disconnect()
	if !port.closed {
		t.Error("expected the serial handle to be closed")
	}
	if mgr.IsConnected() {
		t.Error("expected manager to report disconnected")
	}
	// Disconnect is idempotent.
	mgr.Disconnect()
}

func TestSerialOversizedLineIsDiscarded(t *testing.T) {
	port := &fakePort{}
	mgr, samples := newSerialManager(port)

	if !mgr.ConnectSerial("/dev/ttyUSB7") {
		t.Fatal("expected serial connect to succeed")
	}
	if err := mgr.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer mgr.Disconnect()

	// A stream far beyond the line cap, newline-terminated with what would
	// otherwise be a valid sample embedded at the end, must be dropped
	// whole. The following well-formed line still parses.
	garbage := strings.Repeat("x", 4*maxLineBytes) + "Humidity: 99.9\n"
	port.feed(garbage)
	port.feed("Humidity: 47.2\n")

	if got := waitSample(t, samples); got != 47.2 {
		t.Errorf("got %v, want 47.2 (oversized line must be discarded)", got)
	}
}

func TestSerialReadErrorTerminatesLoop(t *testing.T) {
	port := &fakePort{}
	mgr, _ := newSerialManager(port)

	if !mgr.ConnectSerial("/dev/ttyUSB7") {
		t.Fatal("expected serial connect to succeed")
	}
	if err := mgr.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	port.failReads(fmt.Errorf("device unplugged"))

	// The loop self-terminates without auto-retrying.
	deadline := time.Now().Add(2 * time.Second)
	for mgr.ConnectionInfo().Monitoring {
		if time.Now().After(deadline) {
			t.Fatal("expected the loop to terminate on a read error")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStopIsBounded(t *testing.T) {
	port := &fakePort{}
	mgr, _ := newSerialManager(port)
	if !mgr.ConnectSerial("/dev/ttyUSB7") {
		t.Fatal("expected serial connect to succeed")
	}
	if err := mgr.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	started := time.Now()
	mgr.Stop()
	if elapsed := time.Since(started); elapsed > stopTimeout+500*time.Millisecond {
		t.Fatalf("Stop took %v, want bounded by ~%v", elapsed, stopTimeout)
	}
}

type fakeSource struct {
	samples chan float64
	started bool
	stopped bool
}

func (s *fakeSource) Start() error            { s.started = true; return nil }
func (s *fakeSource) Samples() <-chan float64 { return s.samples }
func (s *fakeSource) Stop()                   { s.stopped = true }

func TestNetworkAcquisition(t *testing.T) {
	source := &fakeSource{samples: make(chan float64, 4)}
	collected := make(chan float64, 4)

	mgr := NewManager(ManagerOptions{
		Sink:   func(humidity float64) { collected <- humidity },
		WifiIP: "192.168.4.1",
		Source: source,
	})
	mgr.probe = func(addr string, timeout time.Duration) bool { return true }
	mgr.listPorts = func() ([]*enumerator.PortDetails, error) { return nil, nil }

	if !mgr.ConnectNetwork("192.168.4.1") {
		t.Fatal("expected network connect to succeed")
	}
	if err := mgr.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !source.started {
		t.Fatal("expected the sample source to be started")
	}

	source.samples <- 52.5
	if got := waitSample(t, collected); got != 52.5 {
		t.Errorf("got %v, want 52.5", got)
	}

	mgr.Stop()
	if !source.stopped {
		t.Error("expected the sample source to be stopped")
	}
}

func TestNetworkConnectionIsReprobed(t *testing.T) {
	probes := 0
	mgr := NewManager(ManagerOptions{WifiIP: "192.168.4.1"})
	mgr.probe = func(addr string, timeout time.Duration) bool {
		probes++
		return probes == 1 // reachable only at connect time
	}

	if !mgr.ConnectNetwork("192.168.4.1") {
		t.Fatal("expected network connect to succeed")
	}
	// "Connected" for this transport is a point-in-time answer.
	if mgr.IsConnected() {
		t.Fatal("expected IsConnected to re-probe and report unreachable")
	}
	if probes < 2 {
		t.Fatalf("expected a probe per IsConnected call, got %d probes", probes)
	}
}

func TestAutoConnectMessages(t *testing.T) {
	port := &fakePort{}
	mgr, _ := newSerialManager(port)

	connected, message := mgr.AutoConnect()
	if !connected || !strings.Contains(message, "USB") {
		t.Fatalf("got (%v, %q), want USB success", connected, message)
	}
	mgr.Disconnect()

	// No serial device, no network: a human-readable failure.
	mgr.listPorts = func() ([]*enumerator.PortDetails, error) { return nil, nil }
	connected, message = mgr.AutoConnect()
	if connected || message != "Sensor device not detected" {
		t.Fatalf("got (%v, %q), want detection failure", connected, message)
	}

	// Serial absent but the device answers over the network.
	mgr.probe = func(addr string, timeout time.Duration) bool { return true }
	connected, message = mgr.AutoConnect()
	if !connected || !strings.Contains(message, "Wi-Fi") {
		t.Fatalf("got (%v, %q), want Wi-Fi success", connected, message)
	}
}

func TestSendCommand(t *testing.T) {
	port := &fakePort{}
	mgr, _ := newSerialManager(port)

	// Commands require the serial transport.
	if _, err := mgr.SendCommand("STATUS"); err == nil {
		t.Fatal("expected SendCommand to fail while disconnected")
	}
	mgr.probe = func(addr string, timeout time.Duration) bool { return true }
	if !mgr.ConnectNetwork("192.168.4.1") {
		t.Fatal("expected network connect to succeed")
	}
	if _, err := mgr.SendCommand("STATUS"); err == nil {
		t.Fatal("expected SendCommand to fail over the networked transport")
	}
	mgr.Disconnect()

	if !mgr.ConnectSerial("/dev/ttyUSB7") {
		t.Fatal("expected serial connect to succeed")
	}
	port.feed("OK\n")

	reply, err := mgr.SendCommand("STATUS")
	if err != nil {
		t.Fatalf("send command: %v", err)
	}
	if reply != "OK" {
		t.Errorf("reply: got %q, want OK", reply)
	}
	if string(port.written) != "STATUS\n" {
		t.Errorf("written: got %q, want STATUS\\n", string(port.written))
	}
}

func TestSimulatedSourceRange(t *testing.T) {
	source := NewSimulatedSource(10 * time.Millisecond)
	if err := source.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer source.Stop()

	for i := 0; i < 5; i++ {
		select {
		case humidity := <-source.Samples():
			if humidity < 30 || humidity >= 60 {
				t.Fatalf("sample %v outside the generator's 40+[-10,+20) range", humidity)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for a simulated sample")
		}
	}
}
