package sensor

import (
	"regexp"
	"strconv"
)

// The device emits readings as text lines of the form "Humidity: 45.3".
var humidityPattern = regexp.MustCompile(`Humidity:\s*([\d.]+)`)

// ParseHumidityLine extracts a humidity value from a serial line. It returns
// false for lines that do not match the pattern, fail to parse, or carry a
// value outside [0, 100]; such lines are dropped by the caller.
func ParseHumidityLine(line string) (float64, bool) {
	match := humidityPattern.FindStringSubmatch(line)
	if match == nil {
		return 0, false
	}

	humidity, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, false
	}
	if humidity < 0 || humidity > 100 {
		return 0, false
	}
	return humidity, true
}
