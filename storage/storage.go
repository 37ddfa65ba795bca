// The storage package persists humidity readings and alert records as
// human-readable JSON documents under the application's data directory.
package storage

import "time"

// Timestamp formats used by both persisted logs.
const (
	TimeFormat = "2006-01-02 15:04:05"
	DateFormat = "2006-01-02"
)

// FormatTime renders a timestamp in the persisted format.
func FormatTime(t time.Time) string {
	return t.Format(TimeFormat)
}

// ParseTime parses a timestamp in the persisted format.
func ParseTime(s string) (time.Time, error) {
	return time.ParseInLocation(TimeFormat, s, time.Local)
}
