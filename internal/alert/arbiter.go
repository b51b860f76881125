// Package alert decides when the user hears something. A single Arbiter owns
// the cooldown shared by sensor alerts and vision alerts, gives the range
// sensor priority and chooses the wording that is spoken.
package alert

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/obstacle.alert/internal/monitoring"
	"github.com/banshee-data/obstacle.alert/internal/ranging"
	"github.com/banshee-data/obstacle.alert/internal/timeutil"
	"github.com/banshee-data/obstacle.alert/internal/vision"
)

const (
	DefaultCooldown       = 3 * time.Second
	DefaultMinConfidence  = 0.5
	DefaultNearDistanceCM = 100
)

// Speaker turns text into audio. Speak blocks until the phrase has been
// spoken or has failed.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Recorder persists alert events.
type Recorder interface {
	RecordAlert(Event) error
}

// State is the arbiter's cooldown state.
type State int

const (
	StateIdle State = iota
	StateCooling
)

func (s State) String() string {
	if s == StateCooling {
		return "COOLING"
	}
	return "IDLE"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Arbiter evaluates one frame's worth of inputs at a time. Evaluate must only
// be called from one goroutine; State, Stats and LastEvent are safe anywhere.
type Arbiter struct {
	speaker        Speaker
	recorder       Recorder
	clock          timeutil.Clock
	cooldown       time.Duration
	minConfidence  float64
	nearDistanceCM int
	watch          vision.WatchList

	lastAlert  time.Time
	hasAlerted bool

	alertedAt      atomic.Pointer[time.Time]
	lastEvent      atomic.Pointer[Event]
	sensorAlerts   atomic.Uint64
	visionAlerts   atomic.Uint64
	suppressed     atomic.Uint64
	speechFailures atomic.Uint64
}

// Option configures an Arbiter.
type Option func(*Arbiter)

func WithClock(c timeutil.Clock) Option {
	return func(a *Arbiter) { a.clock = c }
}

// WithCooldown sets the minimum gap between two spoken alerts.
func WithCooldown(d time.Duration) Option {
	return func(a *Arbiter) {
		if d > 0 {
			a.cooldown = d
		}
	}
}

// WithMinConfidence sets the confidence a detection must exceed to alert.
func WithMinConfidence(c float64) Option {
	return func(a *Arbiter) { a.minConfidence = c }
}

// WithNearDistance sets the distance below which vision alerts include the
// sensor reading.
func WithNearDistance(cm int) Option {
	return func(a *Arbiter) { a.nearDistanceCM = cm }
}

// WithWatchList replaces vision.DefaultWatchList.
func WithWatchList(labels []string) Option {
	return func(a *Arbiter) { a.watch = vision.NewWatchList(labels) }
}

func WithRecorder(r Recorder) Option {
	return func(a *Arbiter) { a.recorder = r }
}

// NewArbiter creates an idle arbiter speaking through speaker.
func NewArbiter(speaker Speaker, opts ...Option) *Arbiter {
	a := &Arbiter{
		speaker:        speaker,
		clock:          timeutil.RealClock{},
		cooldown:       DefaultCooldown,
		minConfidence:  DefaultMinConfidence,
		nearDistanceCM: DefaultNearDistanceCM,
		watch:          vision.NewWatchList(vision.DefaultWatchList),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Cooldown returns the configured cooldown.
func (a *Arbiter) Cooldown() time.Duration {
	return a.cooldown
}

// Qualifies reports whether d would trigger a vision alert if the arbiter
// were idle.
func (a *Arbiter) Qualifies(d vision.ZonedDetection) bool {
	return d.Confidence > a.minConfidence &&
		d.Zone == vision.ZoneCenter &&
		a.watch.Contains(d.Label)
}

// Evaluate runs the alert rules for one frame and returns the event that was
// spoken, or nil when nothing was. sample is only consulted when sensorOK is
// set.
func (a *Arbiter) Evaluate(ctx context.Context, sample ranging.Sample, sensorOK bool, dets []vision.ZonedDetection) *Event {
	now := a.clock.Now()

	if sensorOK && sample.Level.Alerting() {
		if !a.idle(now) {
			a.suppressed.Add(1)
			return nil
		}
		ev := Event{
			Origin:      OriginSensor,
			Level:       sample.Level,
			DistanceCM:  sample.DistanceCM,
			HasDistance: sample.DistanceKnown,
			Text:        SensorText(sample.Level),
		}
		return a.fire(ctx, now, ev)
	}

	for _, d := range dets {
		if !a.Qualifies(d) {
			continue
		}
		if !a.idle(now) {
			a.suppressed.Add(1)
			return nil
		}
		ev := Event{
			Origin:     OriginVision,
			Label:      d.Label,
			Zone:       d.Zone.String(),
			Confidence: d.Confidence,
		}
		if sensorOK && sample.DistanceKnown {
			ev.Level = sample.Level
			ev.DistanceCM = sample.DistanceCM
			ev.HasDistance = true
		}
		ev.Text = a.visionText(d.Label, ev.DistanceCM, ev.HasDistance)
		return a.fire(ctx, now, ev)
	}
	return nil
}

// State returns the cooldown state at the current clock time. The arbiter is
// COOLING from the moment an alert fires, including while it is spoken.
func (a *Arbiter) State() State {
	at := a.alertedAt.Load()
	if at == nil || a.clock.Now().Sub(*at) >= a.cooldown {
		return StateIdle
	}
	return StateCooling
}

// LastEvent returns the most recent spoken alert, or nil.
func (a *Arbiter) LastEvent() *Event {
	return a.lastEvent.Load()
}

// Stats is a point-in-time copy of the arbiter counters.
type Stats struct {
	SensorAlerts   uint64 `json:"sensor_alerts"`
	VisionAlerts   uint64 `json:"vision_alerts"`
	Suppressed     uint64 `json:"suppressed"`
	SpeechFailures uint64 `json:"speech_failures"`
}

func (a *Arbiter) Stats() Stats {
	return Stats{
		SensorAlerts:   a.sensorAlerts.Load(),
		VisionAlerts:   a.visionAlerts.Load(),
		Suppressed:     a.suppressed.Load(),
		SpeechFailures: a.speechFailures.Load(),
	}
}

func (a *Arbiter) idle(now time.Time) bool {
	return !a.hasAlerted || now.Sub(a.lastAlert) >= a.cooldown
}

// fire speaks ev and starts the cooldown. The cooldown starts at the
// evaluation time whether or not the speaker succeeded.
func (a *Arbiter) fire(ctx context.Context, now time.Time, ev Event) *Event {
	ev.ID = uuid.New()
	ev.Time = now

	a.lastAlert = now
	a.hasAlerted = true
	a.alertedAt.Store(&now)

	switch ev.Origin {
	case OriginSensor:
		a.sensorAlerts.Add(1)
	case OriginVision:
		a.visionAlerts.Add(1)
	}

	monitoring.Logf("🔊 %s alert: %s", ev.Origin, ev.Text)
	if a.speaker != nil {
		if err := a.speaker.Speak(ctx, ev.Text); err != nil {
			a.speechFailures.Add(1)
			ev.SpeechErr = err.Error()
			monitoring.Logf("speech failed: %v", err)
		}
	}

	if a.recorder != nil {
		if err := a.recorder.RecordAlert(ev); err != nil {
			monitoring.Logf("failed to record alert %s: %v", ev.ID, err)
		}
	}

	a.lastEvent.Store(&ev)
	return &ev
}

// SensorText is the phrase spoken for a sensor alert at level.
func SensorText(level ranging.Level) string {
	if level == ranging.LevelDanger {
		return "Danger ahead!"
	}
	return "Obstacle detected!"
}

// VisionText is the phrase spoken for a detection of label with the default
// near distance.
func VisionText(label string, distanceCM int, hasDistance bool) string {
	return visionText(label, distanceCM, hasDistance, DefaultNearDistanceCM)
}

func (a *Arbiter) visionText(label string, distanceCM int, hasDistance bool) string {
	return visionText(label, distanceCM, hasDistance, a.nearDistanceCM)
}

func visionText(label string, distanceCM int, hasDistance bool, near int) string {
	if hasDistance && distanceCM > 0 && distanceCM < near {
		return fmt.Sprintf("%s detected at %d centimeters", label, distanceCM)
	}
	return fmt.Sprintf("%s detected ahead", label)
}
