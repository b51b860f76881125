package alert

import (
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/obstacle.alert/internal/ranging"
)

// Origin says which input triggered an alert.
type Origin string

const (
	OriginSensor Origin = "sensor"
	OriginVision Origin = "vision"
)

// Event is one spoken alert.
type Event struct {
	ID          uuid.UUID     `json:"id"`
	Time        time.Time     `json:"time"`
	Origin      Origin        `json:"origin"`
	Level       ranging.Level `json:"level"`
	Label       string        `json:"label,omitempty"`
	Zone        string        `json:"zone,omitempty"`
	Confidence  float64       `json:"confidence,omitempty"`
	DistanceCM  int           `json:"distance_cm"`
	HasDistance bool          `json:"has_distance"`
	Text        string        `json:"text"`
	// SpeechErr is empty when the phrase was spoken.
	SpeechErr string `json:"speech_error,omitempty"`
}
