package sensor

import (
	"fmt"
	"log"
	"math/rand"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// SampleSource produces humidity samples for transports that have no
// line-oriented stream to read from, such as the networked path. The
// acquisition loop consumes Samples() until it is stopped, so a real
// device-polling implementation can be substituted without touching the
// loop itself.
type SampleSource interface {
	// Start begins producing samples on the Samples channel.
	Start() error
	// Samples is the stream of produced humidity values.
	Samples() <-chan float64
	// Stop ceases production and releases any underlying resources.
	Stop()
}

// SimulatedSource synthesizes a neutral humidity sample on a fixed period.
// It stands in for a real networked telemetry protocol, which the device
// does not define yet.
type SimulatedSource struct {
	period  time.Duration
	samples chan float64
	stop    chan struct{}
}

// NewSimulatedSource creates a simulated source emitting every period.
func NewSimulatedSource(period time.Duration) *SimulatedSource {
	return &SimulatedSource{
		period:  period,
		samples: make(chan float64, 1),
		stop:    make(chan struct{}),
	}
}

func (source *SimulatedSource) Start() error {
	go func() {
		ticker := time.NewTicker(source.period)
		defer ticker.Stop()

		for {
			select {
			case <-source.stop:
				return
			case <-ticker.C:
				// Neutral generator: 40% plus [-10, +20) of drift.
				humidity := 40 + (rand.Float64()*30 - 10)
				select {
				case source.samples <- humidity:
				default:
					// Consumer is behind; drop rather than block.
				}
			}
		}
	}()
	return nil
}

func (source *SimulatedSource) Samples() <-chan float64 {
	return source.samples
}

func (source *SimulatedSource) Stop() {
	select {
	case <-source.stop:
	default:
		close(source.stop)
	}
}

// MQTTSource consumes humidity telemetry from an MQTT topic. It is the
// real-deployment substitution for SimulatedSource: payloads are either a
// bare decimal number or a "Humidity: <value>" line.
type MQTTSource struct {
	broker  string
	topic   string
	client  mqtt.Client
	samples chan float64
}

// NewMQTTSource creates a source subscribed to the given broker and topic.
func NewMQTTSource(broker string, topic string) *MQTTSource {
	return &MQTTSource{
		broker:  broker,
		topic:   topic,
		samples: make(chan float64, 16),
	}
}

func (source *MQTTSource) Start() error {
	opts := mqtt.NewClientOptions().
		AddBroker(source.broker).
		SetClientID(fmt.Sprintf("humidstat-%d", time.Now().UnixNano())).
		SetAutoReconnect(true)

	source.client = mqtt.NewClient(opts)
	if token := source.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to mqtt broker '%s': %v", source.broker, token.Error())
	}

	token := source.client.Subscribe(source.topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		humidity, ok := parsePayload(string(msg.Payload()))
		if !ok {
			log.Printf("Dropping malformed mqtt payload on '%s'\n", msg.Topic())
			return
		}
		select {
		case source.samples <- humidity:
		default:
		}
	})
	if token.Wait() && token.Error() != nil {
		source.client.Disconnect(250)
		return fmt.Errorf("failed to subscribe to '%s': %v", source.topic, token.Error())
	}
	return nil
}

func (source *MQTTSource) Samples() <-chan float64 {
	return source.samples
}

func (source *MQTTSource) Stop() {
	if source.client != nil && source.client.IsConnected() {
		source.client.Unsubscribe(source.topic)
		source.client.Disconnect(250)
	}
}

// parsePayload accepts either a bare decimal or a serial-style line.
func parsePayload(payload string) (float64, bool) {
	payload = strings.TrimSpace(payload)
	if humidity, err := strconv.ParseFloat(payload, 64); err == nil {
		if humidity >= 0 && humidity <= 100 {
			return humidity, true
		}
		return 0, false
	}
	return ParseHumidityLine(payload)
}
