package alert

import (
	"fmt"
	"testing"
	"time"

	"gopkg.in/gomail.v2"

	"humidstat.api/v0/internal/config"
)

func newEmailChannel(t *testing.T) (*EmailChannel, *config.Config) {
	t.Helper()

	cfg := config.Load(t.TempDir())
	settings := cfg.Alerts()
	settings.EmailEnabled = true
	settings.EmailAddress = "ops@example.com"
	cfg.SetAlerts(settings)

	return NewEmailChannel(cfg), cfg
}

func testEvent() Event {
	return Event{
		Type:      "high",
		Humidity:  82.5,
		Threshold: 70.0,
		Timestamp: time.Date(2026, 8, 30, 12, 0, 0, 0, time.Local),
		Message:   "High humidity alert! Current: 82.5% (Threshold: 70.0%)",
	}
}

func TestEmailDisabledSkipsDelivery(t *testing.T) {
	channel, cfg := newEmailChannel(t)
	settings := cfg.Alerts()
	settings.EmailEnabled = false
	cfg.SetAlerts(settings)

	sent := false
	channel.send = func(host string, port int, username, password string, msg *gomail.Message) error {
		sent = true
		return nil
	}

	if err := channel.Notify(testEvent()); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if sent {
		t.Error("expected no delivery while email alerts are disabled")
	}
}

func TestEmailRequiresSMTPHost(t *testing.T) {
	channel, _ := newEmailChannel(t)
	t.Setenv("SMTP_HOST", "")

	if err := channel.Notify(testEvent()); err == nil {
		t.Fatal("expected an error when SMTP_HOST is not configured")
	}
}

func TestEmailDeliveryFailureSurfacesInDispatch(t *testing.T) {
	channel, _ := newEmailChannel(t)
	t.Setenv("SMTP_HOST", "smtp.example.com")

	channel.send = func(host string, port int, username, password string, msg *gomail.Message) error {
		return fmt.Errorf("connection refused")
	}

	// The dispatch outcome reflects the delivery result, so a pipeline
	// test run reports the failure.
	notifier := NewNotifier(channel)
	if notifier.Dispatch(testEvent()) {
		t.Fatal("expected dispatch to report the SMTP failure")
	}
}

func TestEmailDeliveryIsBounded(t *testing.T) {
	savedTimeout := emailSendTimeout
	emailSendTimeout = 50 * time.Millisecond
	defer func() { emailSendTimeout = savedTimeout }()

	channel, _ := newEmailChannel(t)
	t.Setenv("SMTP_HOST", "smtp.example.com")

	release := make(chan struct{})
	defer close(release)
	channel.send = func(host string, port int, username, password string, msg *gomail.Message) error {
		<-release // server never answers
		return nil
	}

	started := time.Now()
	err := channel.Notify(testEvent())
	if err == nil {
		t.Fatal("expected a timeout error from a hung SMTP server")
	}
	if elapsed := time.Since(started); elapsed > time.Second {
		t.Fatalf("notify took %v, want bounded by ~%v", elapsed, emailSendTimeout)
	}
}

func TestEmailMessageHeaders(t *testing.T) {
	channel, _ := newEmailChannel(t)
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("SMTP_PORT", "2525")
	t.Setenv("SMTP_FROM", "humidstat@example.com")

	var gotHost string
	var gotPort int
	var gotTo []string
	channel.send = func(host string, port int, username, password string, msg *gomail.Message) error {
		gotHost = host
		gotPort = port
		gotTo = msg.GetHeader("To")
		return nil
	}

	if err := channel.Notify(testEvent()); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if gotHost != "smtp.example.com" || gotPort != 2525 {
		t.Errorf("endpoint: got %s:%d, want smtp.example.com:2525", gotHost, gotPort)
	}
	if len(gotTo) != 1 || gotTo[0] != "ops@example.com" {
		t.Errorf("recipient: got %v, want [ops@example.com]", gotTo)
	}
}
