// The alert package evaluates humidity samples against the configured
// thresholds and fans resulting events out to the notification channels.
package alert

import (
	"fmt"
	"sync"
	"time"

	"humidstat.api/v0/internal/config"
)

// Alert kinds.
const (
	KindHigh = "high"
	KindLow  = "low"
)

// kindState tracks one alert kind's live state. It is process-local and
// never persisted; the emitted events are what the alert log records.
type kindState struct {
	active    bool
	lastFired time.Time
}

// Evaluator is the threshold-alert state machine. Each kind ("high",
// "low") is independently Inactive or Active; an alert leaves Active only
// through an explicit clear evaluation, never by timeout.
type Evaluator struct {
	mutex    sync.Mutex
	cfg      *config.Config
	notifier *Notifier

	high kindState
	low  kindState

	// now is a seam for the cooldown clock in tests.
	now func() time.Time
}

// NewEvaluator creates an evaluator over the given config and notifier.
// Both kinds start Inactive.
func NewEvaluator(cfg *config.Config, notifier *Notifier) *Evaluator {
	return &Evaluator{
		cfg:      cfg,
		notifier: notifier,
		now:      time.Now,
	}
}

// Evaluate consumes one humidity sample. The high kind is evaluated fully,
// then the low kind; the two are independent and no mutual exclusivity is
// assumed.
func (ev *Evaluator) Evaluate(humidity float64) {
	settings := ev.cfg.Alerts()
	if !settings.Enabled {
		return
	}

	thresholds := ev.cfg.Thresholds()
	cooldown := time.Duration(settings.CooldownPeriod) * time.Second

	ev.mutex.Lock()
	defer ev.mutex.Unlock()

	if humidity > thresholds.High {
		ev.handleBreach(&ev.high, KindHigh, humidity, thresholds.High, cooldown)
	} else if ev.high.active {
		ev.clear(&ev.high, KindHigh, humidity, thresholds.High)
	}

	if humidity < thresholds.Low {
		ev.handleBreach(&ev.low, KindLow, humidity, thresholds.Low, cooldown)
	} else if ev.low.active {
		ev.clear(&ev.low, KindLow, humidity, thresholds.Low)
	}
}

// handleBreach fires an alert unless the kind is inside its cooldown
// window. Repeat breaches within the window are suppressed without any
// state change.
func (ev *Evaluator) handleBreach(state *kindState, kind string, humidity float64, threshold float64, cooldown time.Duration) {
	now := ev.now()
	if !state.lastFired.IsZero() && now.Sub(state.lastFired) < cooldown {
		return
	}

	state.active = true
	state.lastFired = now

	ev.notifier.Dispatch(Event{
		Type:      kind,
		Humidity:  humidity,
		Threshold: threshold,
		Timestamp: now,
		Message:   fireMessage(kind, humidity, threshold),
	})
}

// clear transitions a kind back to Inactive on the first non-breaching
// sample. Clearing is never subject to cooldown.
func (ev *Evaluator) clear(state *kindState, kind string, humidity float64, threshold float64) {
	state.active = false

	ev.notifier.Dispatch(Event{
		Type:      kind + "_cleared",
		Humidity:  humidity,
		Threshold: threshold,
		Timestamp: ev.now(),
		Message:   clearMessage(kind, humidity, threshold),
	})
}

func fireMessage(kind string, humidity float64, threshold float64) string {
	if kind == KindHigh {
		return fmt.Sprintf("High humidity alert! Current: %.1f%% (Threshold: %.1f%%)", humidity, threshold)
	}
	return fmt.Sprintf("Low humidity alert! Current: %.1f%% (Threshold: %.1f%%)", humidity, threshold)
}

func clearMessage(kind string, humidity float64, threshold float64) string {
	if kind == KindHigh {
		return fmt.Sprintf("High humidity alert cleared. Current: %.1f%% (Below %.1f%%)", humidity, threshold)
	}
	return fmt.Sprintf("Low humidity alert cleared. Current: %.1f%% (Above %.1f%%)", humidity, threshold)
}

// ActiveAlerts returns the live active flags per kind.
func (ev *Evaluator) ActiveAlerts() map[string]bool {
	ev.mutex.Lock()
	defer ev.mutex.Unlock()
	return map[string]bool{
		KindHigh: ev.high.active,
		KindLow:  ev.low.active,
	}
}

// ClearAll forces both kinds to Inactive and clears the firing history.
func (ev *Evaluator) ClearAll() {
	ev.mutex.Lock()
	defer ev.mutex.Unlock()
	ev.high = kindState{}
	ev.low = kindState{}
}

// UpdateThresholds stores normalized thresholds and resets both kinds:
// changed thresholds invalidate prior alert context.
func (ev *Evaluator) UpdateThresholds(high float64, low float64) config.ThresholdSettings {
	stored := ev.cfg.SetThresholds(high, low)
	ev.ClearAll()
	return stored
}

// SetEnabled toggles evaluation. Disabling also forces both kinds to
// Inactive and drops the firing history.
func (ev *Evaluator) SetEnabled(enabled bool) {
	ev.cfg.SetAlertsEnabled(enabled)
	if !enabled {
		ev.ClearAll()
	}
}

// TestAlert pushes one synthetic notification through the full pipeline
// without touching the evaluator state. It reports the dispatch outcome,
// not threshold logic.
func (ev *Evaluator) TestAlert() bool {
	return ev.notifier.Dispatch(Event{
		Type:      "test",
		Humidity:  50.0,
		Threshold: 50.0,
		Timestamp: ev.now(),
		Message:   "Alert system test",
	})
}
