package link

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Parse decodes one "<timestamp_ms>,<current_mA>" line. Malformed lines yield false.
func Parse(line string) (RawSample, bool) {
	s, err := parseLine(line)
	if err != nil {
		return RawSample{}, false
	}
	return s, true
}

// parseLine parses a line from the MCU into a RawSample.
// Format: timestamp_ms,current_mA
// Example: 123456,-27
func parseLine(line string) (RawSample, error) {
	parts := strings.Split(line, ",")
	if len(parts) != 2 {
		return RawSample{}, fmt.Errorf("invalid line format: expected 2 comma-separated values, got %d", len(parts))
	}

	timestamp, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return RawSample{}, fmt.Errorf("invalid timestamp: %w", err)
	}
	if timestamp < 0 {
		return RawSample{}, fmt.Errorf("timestamp out of range: %d", timestamp)
	}

	current, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return RawSample{}, fmt.Errorf("invalid current: %w", err)
	}
	if math.IsNaN(current) || math.IsInf(current, 0) {
		return RawSample{}, fmt.Errorf("current not finite: %v", current)
	}

	return RawSample{
		TimestampMs: timestamp,
		CurrentMA:   current,
	}, nil
}
