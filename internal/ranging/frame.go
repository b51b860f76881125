// Package ranging ingests the forward ultrasonic range sensor. It parses the
// newline-delimited JSON frames the ESP32 firmware writes to the serial link
// and publishes the most recent reading as an immutable snapshot.
package ranging

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Level is the alert level computed on the sensor board.
type Level int

const (
	LevelClear Level = iota
	LevelWarning
	LevelDanger
)

func (l Level) String() string {
	switch l {
	case LevelWarning:
		return "WARNING"
	case LevelDanger:
		return "DANGER"
	default:
		return "CLEAR"
	}
}

// Alerting reports whether the level should produce a spoken alert.
func (l Level) Alerting() bool {
	return l == LevelWarning || l == LevelDanger
}

// MarshalText renders the level the same way the firmware spells it.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// ParseLevel maps the firmware's alert string to a Level.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "CLEAR":
		return LevelClear, nil
	case "WARNING":
		return LevelWarning, nil
	case "DANGER":
		return LevelDanger, nil
	}
	return LevelClear, fmt.Errorf("%w: %q", ErrInvalidLevel, s)
}

// Sample is one accepted ranging frame. Samples are values: the reader
// publishes a fresh one per frame and never mutates a published sample.
type Sample struct {
	// DistanceCM is the center distance truncated to whole centimetres.
	// Only meaningful when DistanceKnown is set.
	DistanceCM    int       `json:"distance_cm"`
	DistanceKnown bool      `json:"distance_known"`
	Level         Level     `json:"alert"`
	Timestamp     time.Time `json:"timestamp"`
}

// Parse failures. Every rejected line maps to exactly one of these so tests
// and debug logging can tell which rule discarded it.
var (
	ErrNotJSON           = errors.New("line is not a JSON object")
	ErrMalformed         = errors.New("malformed sensor frame")
	ErrMissingSensorData = errors.New("frame has no sensor_data object")
	ErrMissingField      = errors.New("sensor_data is missing a required field")
	ErrInvalidLevel      = errors.New("unknown alert level")
)

type wireFrame struct {
	SensorData *struct {
		Center *float64 `json:"center"`
		Alert  *string  `json:"alert"`
	} `json:"sensor_data"`
}

// ParseLine decodes one serial line into a Sample stamped with now. Lines that
// do not start with "{" are rejected with ErrNotJSON before any decoding.
// Unknown fields are ignored. A negative center distance is the firmware's
// "no echo" value and yields a sample with DistanceKnown unset.
func ParseLine(line string, now time.Time) (Sample, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "{") {
		return Sample{}, ErrNotJSON
	}

	var f wireFrame
	if err := json.Unmarshal([]byte(line), &f); err != nil {
		return Sample{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if f.SensorData == nil {
		return Sample{}, ErrMissingSensorData
	}
	if f.SensorData.Center == nil || f.SensorData.Alert == nil {
		return Sample{}, ErrMissingField
	}

	level, err := ParseLevel(*f.SensorData.Alert)
	if err != nil {
		return Sample{}, err
	}

	s := Sample{Level: level, Timestamp: now}
	if d := *f.SensorData.Center; d >= 0 && d <= math.MaxInt32 {
		s.DistanceCM = int(d)
		s.DistanceKnown = true
	}
	return s, nil
}
