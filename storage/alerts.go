package storage

import (
	"log"
	"path/filepath"
	"sync"
	"time"

	fileio "humidstat.api/v0/utils/fileIO"
)

const AlertsFileName = "alert_records.json"

// AlertRecord is one persisted alert event.
type AlertRecord struct {
	Timestamp string  `json:"timestamp"`
	Type      string  `json:"type"`
	Humidity  float64 `json:"humidity"`
	Threshold float64 `json:"threshold"`
	Message   string  `json:"message"`
}

// AlertLog is the append-only history of emitted alert events, decoupled
// from the evaluator's live state.
type AlertLog struct {
	mutex   sync.RWMutex
	path    string
	records []AlertRecord
}

// NewAlertLog loads (or seeds) the alert records file within the data
// directory. A corrupt file is treated as empty.
func NewAlertLog(dataDir string) *AlertLog {
	alertLog := &AlertLog{
		path:    filepath.Join(dataDir, AlertsFileName),
		records: []AlertRecord{},
	}

	if fileio.FileExists(alertLog.path) {
		if err := fileio.ReadJSON(alertLog.path, &alertLog.records); err != nil {
			log.Printf("Failed to load alert records, starting empty: %v\n", err)
			alertLog.records = []AlertRecord{}
		}
	} else if err := fileio.WriteJSON(alertLog.path, &alertLog.records); err != nil {
		log.Printf("Failed to seed alert records file: %v\n", err)
	}
	return alertLog
}

// Append persists an alert record. A write failure is logged; the record is
// still kept in memory.
func (alertLog *AlertLog) Append(record AlertRecord) {
	alertLog.mutex.Lock()
	defer alertLog.mutex.Unlock()

	alertLog.records = append(alertLog.records, record)
	if err := fileio.WriteJSON(alertLog.path, &alertLog.records); err != nil {
		log.Printf("Failed to store alert record: %v\n", err)
	}
}

// All returns a copy of every alert record in insertion order.
func (alertLog *AlertLog) All() []AlertRecord {
	alertLog.mutex.RLock()
	defer alertLog.mutex.RUnlock()
	return append([]AlertRecord{}, alertLog.records...)
}

// Recent returns the alert records emitted within the last given hours.
// Records with unparseable timestamps are skipped.
func (alertLog *AlertLog) Recent(hours int) []AlertRecord {
	cutoff := time.Now().Add(-time.Duration(hours) * time.Hour)

	alertLog.mutex.RLock()
	defer alertLog.mutex.RUnlock()

	recent := []AlertRecord{}
	for _, record := range alertLog.records {
		at, err := ParseTime(record.Timestamp)
		if err != nil {
			continue
		}
		if !at.Before(cutoff) {
			recent = append(recent, record)
		}
	}
	return recent
}
