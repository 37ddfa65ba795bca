// The sensor package manages the connection to the humidity sensor device
// and runs the background acquisition loop that feeds samples to the rest
// of the application.
package sensor

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	probing "github.com/prometheus-community/pro-bing"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// Transport parameters for the device's serial link.
const (
	BaudRate = 115200

	// Pause between serial poll attempts to avoid busy-spinning.
	pollInterval = 100 * time.Millisecond

	// Read timeout applied to the serial handle.
	readTimeout = 100 * time.Millisecond

	// Bounded wait for the acquisition goroutine to observe a stop signal.
	stopTimeout = time.Second

	// Single reachability probe deadline for the networked transport.
	probeTimeout = time.Second

	// Period of the networked stand-in sample source.
	networkSamplePeriod = 5 * time.Second

	// Longest serial line worth accumulating. Device lines are tens of
	// bytes; anything longer is garbage and gets dropped at the next
	// newline instead of growing the buffer without bound.
	maxLineBytes = 1024
)

// Connection transport kinds.
const (
	ConnectionNone    = ""
	ConnectionSerial  = "usb"
	ConnectionNetwork = "wifi"
)

type usbID struct {
	vid string
	pid string
}

// USB identities of the supported device bridges (CP210x, CH340, FT232).
var deviceUSBIDs = []usbID{
	{"10C4", "EA60"},
	{"1A86", "7523"},
	{"0403", "6001"},
}

// serialPort is the slice of go.bug.st/serial's Port the manager needs;
// narrowed so tests can substitute an in-memory transport.
type serialPort interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	SetReadTimeout(t time.Duration) error
	Close() error
}

// ConnectionInfo is a read-only snapshot of the manager's connection state.
type ConnectionInfo struct {
	Connected  bool   `json:"connected"`
	Type       string `json:"type"`
	Port       string `json:"port"`
	Monitoring bool   `json:"monitoring"`
}

// Manager owns the device connection and the acquisition loop. Each
// successfully obtained sample is delivered synchronously to the single
// registered sink callback.
type Manager struct {
	mutex sync.Mutex

	port      serialPort
	endpoint  string
	connType  string
	isRunning bool

	stopChan chan struct{}
	doneChan chan struct{}

	sink   func(humidity float64)
	source SampleSource
	active SampleSource
	wifiIP string

	// Seams for tests; defaulted to the real transport in NewManager.
	openPort  func(name string) (serialPort, error)
	listPorts func() ([]*enumerator.PortDetails, error)
	probe     func(addr string, timeout time.Duration) bool
}

// Options for constructing a Manager.
type ManagerOptions struct {
	// Sink receives every accepted humidity sample. It must not block for
	// long or it stalls subsequent sampling.
	Sink func(humidity float64)

	// WifiIP is the device address used by the networked transport.
	WifiIP string

	// Source overrides the networked sample source. Nil selects the
	// simulated stand-in.
	Source SampleSource
}

// NewManager creates a Manager wired to the real serial and ICMP transports.
func NewManager(opts ManagerOptions) *Manager {
	mgr := &Manager{
		sink:   opts.Sink,
		source: opts.Source,
		wifiIP: opts.WifiIP,
		openPort: func(name string) (serialPort, error) {
			return serial.Open(name, &serial.Mode{BaudRate: BaudRate})
		},
		listPorts: enumerator.GetDetailedPortsList,
		probe:     icmpProbe,
	}
	return mgr
}

// icmpProbe sends a single unprivileged ping and reports whether a reply
// arrived within the timeout. Probe failures of any kind report false.
func icmpProbe(addr string, timeout time.Duration) bool {
	pinger, err := probing.NewPinger(addr)
	if err != nil {
		return false
	}
	pinger.Count = 1
	pinger.Timeout = timeout
	pinger.SetPrivileged(false)

	if err := pinger.Run(); err != nil {
		return false
	}
	return pinger.Statistics().PacketsRecv > 0
}

// DiscoverSerialPort scans the local serial endpoints and returns the first
// whose USB identity matches the device allow-list.
func (mgr *Manager) DiscoverSerialPort() (string, bool) {
	ports, err := mgr.listPorts()
	if err != nil {
		log.Printf("Failed to enumerate serial ports: %v\n", err)
		return "", false
	}

	for _, port := range ports {
		if !port.IsUSB {
			continue
		}
		for _, id := range deviceUSBIDs {
			if strings.EqualFold(port.VID, id.vid) && strings.EqualFold(port.PID, id.pid) {
				return port.Name, true
			}
		}
	}
	return "", false
}

// Probe performs a single reachability check against the given address. It
// never errors; a timeout simply reports false.
func (mgr *Manager) Probe(addr string) bool {
	return mgr.probe(addr, probeTimeout)
}

// ConnectSerial opens the serial transport. An empty port name triggers
// discovery first. On any failure the manager is left unconnected.
func (mgr *Manager) ConnectSerial(portName string) bool {
	if portName == "" {
		discovered, ok := mgr.DiscoverSerialPort()
		if !ok {
			return false
		}
		portName = discovered
	}

	port, err := mgr.openPort(portName)
	if err != nil {
		log.Printf("Failed to open serial port '%s': %v\n", portName, err)
		return false
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		log.Printf("Failed to set read timeout on '%s': %v\n", portName, err)
		port.Close()
		return false
	}

	mgr.mutex.Lock()
	defer mgr.mutex.Unlock()
	mgr.port = port
	mgr.endpoint = portName
	mgr.connType = ConnectionSerial
	return true
}

// ConnectNetwork succeeds iff the reachability probe succeeds. There is no
// persistent handle for this transport; "connected" means "was reachable at
// last check" and is re-verified on every IsConnected call.
func (mgr *Manager) ConnectNetwork(addr string) bool {
	if !mgr.Probe(addr) {
		return false
	}

	mgr.mutex.Lock()
	defer mgr.mutex.Unlock()
	mgr.endpoint = addr
	mgr.connType = ConnectionNetwork
	return true
}

// AutoConnect tries the serial transport first, then the networked one,
// returning a human-readable status message for either outcome.
func (mgr *Manager) AutoConnect() (bool, string) {
	if mgr.ConnectSerial("") {
		return true, fmt.Sprintf("Connected via USB (%s)", mgr.endpoint)
	}
	if mgr.ConnectNetwork(mgr.wifiIP) {
		return true, fmt.Sprintf("Connected via Wi-Fi (%s)", mgr.endpoint)
	}
	return false, "Sensor device not detected"
}

// IsConnected reports the connection state. The networked transport is
// re-probed on every call.
func (mgr *Manager) IsConnected() bool {
	mgr.mutex.Lock()
	connType := mgr.connType
	port := mgr.port
	endpoint := mgr.endpoint
	mgr.mutex.Unlock()

	switch connType {
	case ConnectionSerial:
		return port != nil
	case ConnectionNetwork:
		return mgr.probe(endpoint, probeTimeout)
	}
	return false
}

// ConnectionInfo returns a snapshot of the connection state.
func (mgr *Manager) ConnectionInfo() ConnectionInfo {
	connected := mgr.IsConnected()

	mgr.mutex.Lock()
	defer mgr.mutex.Unlock()
	return ConnectionInfo{
		Connected:  connected,
		Type:       mgr.connType,
		Port:       mgr.endpoint,
		Monitoring: mgr.isRunning,
	}
}

// Start spawns the acquisition goroutine for the active transport. It fails
// if the manager is not connected or the loop is already running.
func (mgr *Manager) Start() error {
	if !mgr.IsConnected() {
		return fmt.Errorf("cannot start monitoring: not connected")
	}

	mgr.mutex.Lock()
	defer mgr.mutex.Unlock()

	if mgr.isRunning {
		return fmt.Errorf("monitoring is already running")
	}

	mgr.stopChan = make(chan struct{})
	mgr.doneChan = make(chan struct{})
	mgr.isRunning = true

	switch mgr.connType {
	case ConnectionSerial:
		go mgr.readSerial(mgr.port, mgr.stopChan, mgr.doneChan)
	case ConnectionNetwork:
		source := mgr.source
		if source == nil {
			// Fresh stand-in source per start; a stopped one is spent.
			source = NewSimulatedSource(networkSamplePeriod)
		}
		mgr.active = source
		if err := source.Start(); err != nil {
			mgr.isRunning = false
			return fmt.Errorf("failed to start sample source: %v", err)
		}
		go mgr.consumeSource(source, mgr.stopChan, mgr.doneChan)
	default:
		mgr.isRunning = false
		return fmt.Errorf("unknown connection type '%s'", mgr.connType)
	}

	log.Printf("Started monitoring over %s (%s)\n", mgr.connType, mgr.endpoint)
	return nil
}

// Stop signals the acquisition goroutine and waits, up to a bounded
// interval, for it to exit. It never forcibly terminates the goroutine and
// is safe to call when monitoring is not running.
func (mgr *Manager) Stop() {
	mgr.mutex.Lock()
	if !mgr.isRunning {
		mgr.mutex.Unlock()
		return
	}
	mgr.isRunning = false
	stopChan := mgr.stopChan
	doneChan := mgr.doneChan
	source := mgr.active
	mgr.active = nil
	mgr.mutex.Unlock()

	close(stopChan)
	if source != nil {
		source.Stop()
	}

	select {
	case <-doneChan:
	case <-time.After(stopTimeout):
		log.Println("Timed out waiting for the acquisition loop to stop")
	}
}

// Disconnect stops monitoring and releases the transport handle. It is
// idempotent and safe to call when already disconnected.
func (mgr *Manager) Disconnect() {
	mgr.Stop()

	mgr.mutex.Lock()
	defer mgr.mutex.Unlock()

	if mgr.port != nil {
		if err := mgr.port.Close(); err != nil {
			log.Printf("Failed to close serial port '%s': %v\n", mgr.endpoint, err)
		}
	}
	mgr.port = nil
	mgr.endpoint = ""
	mgr.connType = ConnectionNone
}

// SendCommand writes a command line to the device and returns the next
// reply line. Serial transport only.
func (mgr *Manager) SendCommand(command string) (string, error) {
	mgr.mutex.Lock()
	port := mgr.port
	connType := mgr.connType
	mgr.mutex.Unlock()

	if connType != ConnectionSerial || port == nil {
		return "", fmt.Errorf("commands require an open serial connection")
	}

	if _, err := port.Write([]byte(command + "\n")); err != nil {
		return "", fmt.Errorf("failed to send command: %v", err)
	}
	time.Sleep(pollInterval)

	reply, err := readLine(port)
	if err != nil {
		return "", fmt.Errorf("failed to read command reply: %v", err)
	}
	return reply, nil
}

// readLine reads a single newline-terminated reply within the port's read
// timeout window.
func readLine(port serialPort) (string, error) {
	buffer := make([]byte, 1)
	line := []byte{}
	for {
		n, err := port.Read(buffer)
		if err != nil {
			return "", err
		}
		if n == 0 {
			// Read timeout; treat whatever arrived as the reply.
			return strings.TrimSpace(string(line)), nil
		}
		if buffer[0] == '\n' {
			return strings.TrimSpace(string(line)), nil
		}
		line = append(line, buffer[0])
	}
}

// deliver forwards an accepted sample to the registered sink.
func (mgr *Manager) deliver(humidity float64) {
	if mgr.sink != nil {
		mgr.sink(humidity)
	}
}

// readSerial polls the serial transport for lines and delivers every sample
// that parses. A read error while still running logs and terminates the
// loop; reconnecting is a user-facing action, not loop-internal retry.
func (mgr *Manager) readSerial(port serialPort, stopChan <-chan struct{}, doneChan chan<- struct{}) {
	defer close(doneChan)

	buffer := make([]byte, 256)
	line := make([]byte, 0, maxLineBytes)
	discarding := false
	for {
		select {
		case <-stopChan:
			return
		default:
		}

		n, err := port.Read(buffer)
		if err != nil {
			if mgr.running() {
				log.Printf("Error reading serial data: %v\n", err)
				mgr.markStopped()
			}
			return
		}
		if n == 0 {
			// Nothing waiting; yield briefly before the next poll.
			time.Sleep(pollInterval)
			continue
		}

		for _, b := range buffer[:n] {
			if b == '\n' {
				if !discarding {
					if humidity, ok := ParseHumidityLine(strings.TrimSpace(string(line))); ok {
						mgr.deliver(humidity)
					}
				}
				line = line[:0]
				discarding = false
				continue
			}
			if discarding {
				continue
			}
			if len(line) >= maxLineBytes {
				// Oversized garbage; skip through the next newline.
				line = line[:0]
				discarding = true
				continue
			}
			line = append(line, b)
		}
	}
}

// consumeSource forwards samples from a SampleSource until stopped.
func (mgr *Manager) consumeSource(source SampleSource, stopChan <-chan struct{}, doneChan chan<- struct{}) {
	defer close(doneChan)

	for {
		select {
		case <-stopChan:
			return
		case humidity, ok := <-source.Samples():
			if !ok {
				if mgr.running() {
					log.Println("Sample source closed, terminating acquisition")
					mgr.markStopped()
				}
				return
			}
			mgr.deliver(humidity)
		}
	}
}

func (mgr *Manager) running() bool {
	mgr.mutex.Lock()
	defer mgr.mutex.Unlock()
	return mgr.isRunning
}

func (mgr *Manager) markStopped() {
	mgr.mutex.Lock()
	defer mgr.mutex.Unlock()
	mgr.isRunning = false
}
