// The config package holds the application's persisted settings along with
// process-wide flags shared across commands.
package config

import (
	"log"
	"path/filepath"
	"sync"

	fileio "humidstat.api/v0/utils/fileIO"
)

// Verbose mode, set by the root command's global flag.
var Verbose bool

const ConfigFileName = "config.json"

// Default threshold values.
const (
	DefaultHighThreshold = 70.0
	DefaultLowThreshold  = 30.0

	// Minimum separation enforced between the low and high thresholds.
	MinThresholdGap = 5.0
)

type ThresholdSettings struct {
	High float64 `json:"high"`
	Low  float64 `json:"low"`
}

type AlertSettings struct {
	Enabled        bool   `json:"enabled"`
	SoundEnabled   bool   `json:"sound_enabled"`
	EmailEnabled   bool   `json:"email_enabled"`
	EmailAddress   string `json:"email_address"`
	CooldownPeriod int    `json:"cooldown_period"`
}

type DisplaySettings struct {
	Theme          string `json:"theme"`
	HumidityUnit   string `json:"humidity_unit"`
	AutoScale      bool   `json:"auto_scale"`
	ShowGrid       bool   `json:"show_grid"`
	UpdateInterval int    `json:"update_interval"`
}

type DeviceSettings struct {
	AutoConnect         bool   `json:"auto_connect"`
	PreferredConnection string `json:"preferred_connection"`
	WifiIP              string `json:"wifi_ip"`
}

type DataSettings struct {
	MaxRecords   int    `json:"max_records"`
	AutoCleanup  bool   `json:"auto_cleanup"`
	ExportFormat string `json:"export_format"`
}

type Settings struct {
	Thresholds ThresholdSettings `json:"thresholds"`
	Alerts     AlertSettings     `json:"alerts"`
	Display    DisplaySettings   `json:"display"`
	Device     DeviceSettings    `json:"device"`
	Data       DataSettings      `json:"data"`
}

// Config manages the application settings backed by a JSON file. Every
// mutation is written through to disk so the file always reflects the
// latest state.
type Config struct {
	mutex    sync.RWMutex
	path     string
	settings Settings
}

// DefaultSettings returns a fresh copy of the default settings tree.
func DefaultSettings() Settings {
	return Settings{
		Thresholds: ThresholdSettings{
			High: DefaultHighThreshold,
			Low:  DefaultLowThreshold,
		},
		Alerts: AlertSettings{
			Enabled:        true,
			SoundEnabled:   true,
			EmailEnabled:   false,
			EmailAddress:   "",
			CooldownPeriod: 300,
		},
		Display: DisplaySettings{
			Theme:          "cosmo",
			HumidityUnit:   "percentage",
			AutoScale:      true,
			ShowGrid:       true,
			UpdateInterval: 1000,
		},
		Device: DeviceSettings{
			AutoConnect:         true,
			PreferredConnection: "usb",
			WifiIP:              "192.168.4.1",
		},
		Data: DataSettings{
			MaxRecords:   10000,
			AutoCleanup:  true,
			ExportFormat: "csv",
		},
	}
}

// Load reads the config file within the given data directory, merging the
// loaded values over the defaults key-by-key. A missing or corrupt file
// falls back to the defaults; the missing case also seeds the file on disk.
func Load(dataDir string) *Config {
	cfg := &Config{
		path:     filepath.Join(dataDir, ConfigFileName),
		settings: DefaultSettings(),
	}

	if !fileio.FileExists(cfg.path) {
		if err := fileio.WriteJSON(cfg.path, &cfg.settings); err != nil {
			log.Printf("Failed to seed config file: %v\n", err)
		}
		return cfg
	}

	// Deserializing over the defaults merges loaded keys over default
	// values, recursively for the nested groups.
	if err := fileio.ReadJSON(cfg.path, &cfg.settings); err != nil {
		log.Printf("Failed to load config, using defaults: %v\n", err)
		cfg.settings = DefaultSettings()
	}
	cfg.settings.Thresholds.High, cfg.settings.Thresholds.Low = NormalizeThresholds(
		cfg.settings.Thresholds.High,
		cfg.settings.Thresholds.Low,
	)
	return cfg
}

// save persists the current settings. Failures are logged and the in-memory
// state is kept as-is.
func (cfg *Config) save() {
	if err := fileio.WriteJSON(cfg.path, &cfg.settings); err != nil {
		log.Printf("Failed to save config: %v\n", err)
	}
}

// Snapshot returns a copy of the entire settings tree.
func (cfg *Config) Snapshot() Settings {
	cfg.mutex.RLock()
	defer cfg.mutex.RUnlock()
	return cfg.settings
}

// Thresholds returns the current high/low thresholds.
func (cfg *Config) Thresholds() ThresholdSettings {
	cfg.mutex.RLock()
	defer cfg.mutex.RUnlock()
	return cfg.settings.Thresholds
}

// SetThresholds normalizes and stores the given thresholds, then persists.
// The stored values are returned since normalization may have adjusted them.
func (cfg *Config) SetThresholds(high float64, low float64) ThresholdSettings {
	cfg.mutex.Lock()
	defer cfg.mutex.Unlock()

	high, low = NormalizeThresholds(high, low)
	cfg.settings.Thresholds.High = high
	cfg.settings.Thresholds.Low = low
	cfg.save()
	return cfg.settings.Thresholds
}

// Alerts returns the current alert settings.
func (cfg *Config) Alerts() AlertSettings {
	cfg.mutex.RLock()
	defer cfg.mutex.RUnlock()
	return cfg.settings.Alerts
}

// SetAlerts replaces the alert settings and persists.
func (cfg *Config) SetAlerts(settings AlertSettings) {
	cfg.mutex.Lock()
	defer cfg.mutex.Unlock()

	if settings.CooldownPeriod < 0 {
		settings.CooldownPeriod = 0
	}
	cfg.settings.Alerts = settings
	cfg.save()
}

// SetAlertsEnabled toggles alert evaluation and persists.
func (cfg *Config) SetAlertsEnabled(enabled bool) {
	cfg.mutex.Lock()
	defer cfg.mutex.Unlock()
	cfg.settings.Alerts.Enabled = enabled
	cfg.save()
}

// Display returns the current display settings.
func (cfg *Config) Display() DisplaySettings {
	cfg.mutex.RLock()
	defer cfg.mutex.RUnlock()
	return cfg.settings.Display
}

// SetDisplay replaces the display settings and persists.
func (cfg *Config) SetDisplay(settings DisplaySettings) {
	cfg.mutex.Lock()
	defer cfg.mutex.Unlock()
	cfg.settings.Display = settings
	cfg.save()
}

// Device returns the current device settings.
func (cfg *Config) Device() DeviceSettings {
	cfg.mutex.RLock()
	defer cfg.mutex.RUnlock()
	return cfg.settings.Device
}

// SetDevice replaces the device settings and persists.
func (cfg *Config) SetDevice(settings DeviceSettings) {
	cfg.mutex.Lock()
	defer cfg.mutex.Unlock()
	cfg.settings.Device = settings
	cfg.save()
}

// Data returns the current data-retention settings.
func (cfg *Config) Data() DataSettings {
	cfg.mutex.RLock()
	defer cfg.mutex.RUnlock()
	return cfg.settings.Data
}

// SetData replaces the data-retention settings and persists.
func (cfg *Config) SetData(settings DataSettings) {
	cfg.mutex.Lock()
	defer cfg.mutex.Unlock()
	cfg.settings.Data = settings
	cfg.save()
}

// ResetToDefaults discards all settings and rewrites the file with defaults.
func (cfg *Config) ResetToDefaults() {
	cfg.mutex.Lock()
	defer cfg.mutex.Unlock()
	cfg.settings = DefaultSettings()
	cfg.save()
}

// NormalizeThresholds clamps the given thresholds into [0, 100] and enforces
// low < high with at least MinThresholdGap points of separation.
func NormalizeThresholds(high float64, low float64) (float64, float64) {
	low = clamp(low, 0, 100)
	high = clamp(high, 0, 100)

	if high <= low {
		high = clamp(low+MinThresholdGap, 0, 100)
		if high-low < MinThresholdGap {
			low = high - MinThresholdGap
		}
	}
	return high, low
}

func clamp(v float64, lo float64, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
