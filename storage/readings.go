package storage

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	fileio "humidstat.api/v0/utils/fileIO"
)

const ReadingsFileName = "humidity_data.json"

// Reading is a single humidity observation. Immutable once stored.
type Reading struct {
	Timestamp   string   `json:"timestamp"`
	Humidity    float64  `json:"humidity"`
	Temperature *float64 `json:"temperature"`
}

// Statistics summarizes a filtered set of readings.
type Statistics struct {
	Count   int     `json:"count"`
	Average float64 `json:"average"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Current float64 `json:"current"`
	Trend   float64 `json:"trend"`
}

// ReadingStore is an append-only log of readings, kept in insertion order
// and written through to a JSON file on every mutation. Reads are safe to
// run concurrently with the single ingestion path.
type ReadingStore struct {
	mutex      sync.RWMutex
	path       string
	readings   []Reading
	maxRecords int
}

// NewReadingStore loads (or seeds) the readings file within the data
// directory. A corrupt file is treated as empty. maxRecords caps retention;
// zero or negative disables the cap.
func NewReadingStore(dataDir string, maxRecords int) *ReadingStore {
	store := &ReadingStore{
		path:       filepath.Join(dataDir, ReadingsFileName),
		readings:   []Reading{},
		maxRecords: maxRecords,
	}

	if fileio.FileExists(store.path) {
		if err := fileio.ReadJSON(store.path, &store.readings); err != nil {
			log.Printf("Failed to load readings, starting empty: %v\n", err)
			store.readings = []Reading{}
		}
	} else if err := fileio.WriteJSON(store.path, &store.readings); err != nil {
		log.Printf("Failed to seed readings file: %v\n", err)
	}
	return store
}

// save persists the current readings. Failures are logged; the in-memory
// state remains authoritative for the running process.
func (store *ReadingStore) save() {
	if err := fileio.WriteJSON(store.path, &store.readings); err != nil {
		log.Printf("Failed to save readings: %v\n", err)
	}
}

// Add appends a reading. The humidity and temperature are rounded to two
// decimal places. A zero timestamp defaults to now. The retention cap is
// applied after insertion, dropping the oldest entries first.
func (store *ReadingStore) Add(humidity float64, temperature *float64, at time.Time) Reading {
	if at.IsZero() {
		at = time.Now()
	}

	reading := Reading{
		Timestamp: FormatTime(at),
		Humidity:  round2(humidity),
	}
	if temperature != nil {
		temp := round2(*temperature)
		reading.Temperature = &temp
	}

	store.mutex.Lock()
	defer store.mutex.Unlock()

	store.readings = append(store.readings, reading)
	if store.maxRecords > 0 && len(store.readings) > store.maxRecords {
		store.readings = store.readings[len(store.readings)-store.maxRecords:]
	}
	store.save()
	return reading
}

// All returns a copy of every stored reading in insertion order.
func (store *ReadingStore) All() []Reading {
	store.mutex.RLock()
	defer store.mutex.RUnlock()
	return append([]Reading{}, store.readings...)
}

// Recent returns the last n readings in insertion order, or fewer if the
// store holds fewer.
func (store *ReadingStore) Recent(n int) []Reading {
	store.mutex.RLock()
	defer store.mutex.RUnlock()

	if n <= 0 {
		return []Reading{}
	}
	if n > len(store.readings) {
		n = len(store.readings)
	}
	return append([]Reading{}, store.readings[len(store.readings)-n:]...)
}

// Latest returns the most recent reading, or nil if the store is empty.
func (store *ReadingStore) Latest() *Reading {
	store.mutex.RLock()
	defer store.mutex.RUnlock()

	if len(store.readings) == 0 {
		return nil
	}
	reading := store.readings[len(store.readings)-1]
	return &reading
}

// PeriodRange computes the [start, end) wall-clock window for a period
// against now. Unknown periods fall back to daily.
func PeriodRange(period string, now time.Time) (time.Time, time.Time) {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	switch period {
	case "weekly":
		// Monday-based week.
		daysSinceMonday := (int(now.Weekday()) + 6) % 7
		start := midnight.AddDate(0, 0, -daysSinceMonday)
		return start, start.AddDate(0, 0, 7)
	case "monthly":
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		return start, start.AddDate(0, 1, 0)
	default:
		return midnight, midnight.AddDate(0, 0, 1)
	}
}

// ByPeriod returns the readings within the daily/weekly/monthly window
// computed against now at call time.
func (store *ReadingStore) ByPeriod(period string) []Reading {
	start, end := PeriodRange(period, time.Now())
	return store.between(start, end)
}

// ByDateRange returns the readings between the two calendar days, inclusive
// of both. Malformed dates yield an empty result.
func (store *ReadingStore) ByDateRange(startDate string, endDate string) []Reading {
	start, err := time.ParseInLocation(DateFormat, startDate, time.Local)
	if err != nil {
		return []Reading{}
	}
	end, err := time.ParseInLocation(DateFormat, endDate, time.Local)
	if err != nil {
		return []Reading{}
	}
	return store.between(start, end.AddDate(0, 0, 1))
}

// between returns readings whose timestamp lies in [start, end). Readings
// with unparseable timestamps are skipped.
func (store *ReadingStore) between(start time.Time, end time.Time) []Reading {
	store.mutex.RLock()
	defer store.mutex.RUnlock()

	filtered := []Reading{}
	for _, reading := range store.readings {
		at, err := ParseTime(reading.Timestamp)
		if err != nil {
			continue
		}
		if !at.Before(start) && at.Before(end) {
			filtered = append(filtered, reading)
		}
	}
	return filtered
}

// Statistics summarizes the readings within the given period.
func (store *ReadingStore) Statistics(period string) Statistics {
	return Summarize(store.ByPeriod(period))
}

// Summarize computes statistics over an ordered set of readings. The trend
// compares the mean of the most-recent quarter against the mean of the
// earliest quarter, as a signed percentage change relative to the earlier
// mean. Fewer than 4 points, or a zero early mean, yields a zero trend.
func Summarize(readings []Reading) Statistics {
	if len(readings) == 0 {
		return Statistics{}
	}

	values := make([]float64, len(readings))
	sum := 0.0
	min := readings[0].Humidity
	max := readings[0].Humidity
	for i, reading := range readings {
		values[i] = reading.Humidity
		sum += reading.Humidity
		if reading.Humidity < min {
			min = reading.Humidity
		}
		if reading.Humidity > max {
			max = reading.Humidity
		}
	}

	trend := 0.0
	if len(values) >= 4 {
		quarter := len(values) / 4
		recentAvg := mean(values[len(values)-quarter:])
		earlyAvg := mean(values[:quarter])
		if earlyAvg != 0 {
			trend = ((recentAvg - earlyAvg) / earlyAvg) * 100
		}
	}

	return Statistics{
		Count:   len(values),
		Average: sum / float64(len(values)),
		Min:     min,
		Max:     max,
		Current: values[len(values)-1],
		Trend:   trend,
	}
}

// Cleanup removes readings older than now minus daysToKeep. Readings whose
// timestamp cannot be parsed are conservatively retained. Returns the number
// of removed entries.
func (store *ReadingStore) Cleanup(daysToKeep int) int {
	cutoff := time.Now().AddDate(0, 0, -daysToKeep)

	store.mutex.Lock()
	defer store.mutex.Unlock()

	kept := make([]Reading, 0, len(store.readings))
	for _, reading := range store.readings {
		at, err := ParseTime(reading.Timestamp)
		if err != nil || !at.Before(cutoff) {
			kept = append(kept, reading)
		}
	}

	removed := len(store.readings) - len(kept)
	if removed > 0 {
		store.readings = kept
		store.save()
	}
	return removed
}

// ClearAll removes every stored reading.
func (store *ReadingStore) ClearAll() {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.readings = []Reading{}
	store.save()
}

// Export renders readings in the given format ("csv" or "json"). When both
// dates are provided, only that range is exported; otherwise everything is.
func (store *ReadingStore) Export(format string, startDate string, endDate string) (string, error) {
	var readings []Reading
	if startDate != "" && endDate != "" {
		readings = store.ByDateRange(startDate, endDate)
	} else {
		readings = store.All()
	}

	switch strings.ToLower(format) {
	case "csv":
		lines := []string{"timestamp,humidity,temperature"}
		for _, reading := range readings {
			temp := ""
			if reading.Temperature != nil {
				temp = formatFloat(*reading.Temperature)
			}
			lines = append(lines, fmt.Sprintf(
				"%s,%s,%s",
				reading.Timestamp,
				formatFloat(reading.Humidity),
				temp,
			))
		}
		return strings.Join(lines, "\n"), nil

	case "json":
		content, err := json.MarshalIndent(readings, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to serialize readings: %v", err)
		}
		return string(content), nil

	default:
		return "", fmt.Errorf("unsupported export format: %s", format)
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
