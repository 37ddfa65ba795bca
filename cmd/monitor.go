package cmd

import (
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"humidstat.api/v0/internal/config"
	"humidstat.api/v0/internal/metrics"
	"humidstat.api/v0/pkg/alert"
	"humidstat.api/v0/pkg/sensor"
	"humidstat.api/v0/server"
	"humidstat.api/v0/server/route"
	"humidstat.api/v0/server/route/live"
	"humidstat.api/v0/storage"
)

// Readings older than this many days are removed by the startup cleanup.
const cleanupDaysToKeep = 30

func handleMonitorCmd(cmd *cobra.Command, args []string) error {
	flags := cmd.PersistentFlags()

	port, err := strconv.ParseUint(flags.Lookup("port").Value.String(), 10, 16)
	if err != nil {
		return fmt.Errorf("failed to parse port: %v", err)
	}
	dataDir := flags.Lookup("data-dir").Value.String()
	noConnect := flags.Lookup("no-connect").Value.String() == "true"
	mqttBroker := flags.Lookup("mqtt-broker").Value.String()
	mqttTopic := flags.Lookup("mqtt-topic").Value.String()

	// Settings and the persisted logs.
	cfg := config.Load(dataDir)
	readingStore := storage.NewReadingStore(dataDir, cfg.Data().MaxRecords)
	alertLog := storage.NewAlertLog(dataDir)

	if cfg.Data().AutoCleanup {
		if removed := readingStore.Cleanup(cleanupDaysToKeep); removed > 0 {
			log.Printf("Cleaned up %d readings older than %d days\n", removed, cleanupDaysToKeep)
		}
	}

	// Notification fan-out: alert log first, then sound, email, telegram
	// and finally the live stream. Channel failures are isolated.
	hub := live.NewHub()
	notifier := alert.NewNotifier(
		alert.NewLogChannel(alertLog),
		alert.NewSoundChannel(cfg),
		alert.NewEmailChannel(cfg),
		alert.NewTelegramChannel(),
		alert.NewCallbackChannel("live", func(event alert.Event) {
			metrics.AlertsTotal.WithLabelValues(event.Type).Inc()
			hub.BroadcastAlert(event)
		}),
	)
	evaluator := alert.NewEvaluator(cfg, notifier)

	// Every accepted sample is persisted, instrumented, evaluated and
	// broadcast, in that order.
	sink := func(humidity float64) {
		reading := readingStore.Add(humidity, nil, time.Time{})
		metrics.SamplesTotal.Inc()
		metrics.LastHumidity.Set(reading.Humidity)
		evaluator.Evaluate(reading.Humidity)
		hub.BroadcastReading(reading)
	}

	var source sensor.SampleSource
	if mqttBroker != "" {
		source = sensor.NewMQTTSource(mqttBroker, mqttTopic)
	}
	manager := sensor.NewManager(sensor.ManagerOptions{
		Sink:   sink,
		WifiIP: cfg.Device().WifiIP,
		Source: source,
	})
	defer manager.Disconnect()

	if cfg.Device().AutoConnect && !noConnect {
		connected, message := manager.AutoConnect()
		log.Println(message)
		if connected {
			if err := manager.Start(); err != nil {
				log.Printf("Failed to start monitoring: %v\n", err)
			}
		}
	}

	opts := &server.ServerOpts{
		HostEndpoint: flags.Lookup("host").Value.String(),
		PortEndpoint: uint16(port),
	}
	core := &route.Core{
		Config:    cfg,
		Readings:  readingStore,
		AlertLog:  alertLog,
		Evaluator: evaluator,
		Sensor:    manager,
		Live:      hub,
	}
	if err := server.Run(rootCtx.Context, opts, core); err != nil {
		return fmt.Errorf("failed monitor command: %v", err)
	}
	return nil
}

func NewMonitorCommand() *cobra.Command {
	monitorCmd := &cobra.Command{
		Use:   "monitor",
		Short: "Connects to the humidity sensor and serves the monitoring api.",
		RunE:  handleMonitorCmd,
	}

	monitorCmd.PersistentFlags().String("host", "localhost", "Server hostname to serve on.")
	monitorCmd.PersistentFlags().Uint("port", 3000, "Server port to serve on.")
	monitorCmd.PersistentFlags().String("data-dir", "data", "Directory holding the config and data files.")
	monitorCmd.PersistentFlags().Bool("no-connect", false, "Skip the startup auto-connect attempt.")
	monitorCmd.PersistentFlags().String("mqtt-broker", "", "MQTT broker for networked telemetry (e.g. tcp://host:1883).")
	monitorCmd.PersistentFlags().String("mqtt-topic", "humidstat/humidity", "MQTT topic carrying humidity payloads.")

	return monitorCmd
}
