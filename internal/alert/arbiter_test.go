package alert

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/obstacle.alert/internal/monitoring"
	"github.com/banshee-data/obstacle.alert/internal/ranging"
	"github.com/banshee-data/obstacle.alert/internal/timeutil"
	"github.com/banshee-data/obstacle.alert/internal/vision"
)

type recordingSpeaker struct {
	said []string
	err  error
}

func (s *recordingSpeaker) Speak(_ context.Context, text string) error {
	s.said = append(s.said, text)
	return s.err
}

type recordingRecorder struct {
	events []Event
}

func (r *recordingRecorder) RecordAlert(ev Event) error {
	r.events = append(r.events, ev)
	return nil
}

func newTestArbiter(t *testing.T, opts ...Option) (*Arbiter, *recordingSpeaker, *timeutil.MockClock) {
	t.Helper()
	monitoring.SetLogger(nil)

	clock := timeutil.NewMockClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	sp := &recordingSpeaker{}
	a := NewArbiter(sp, append([]Option{WithClock(clock)}, opts...)...)
	return a, sp, clock
}

func sample(d int, level ranging.Level) ranging.Sample {
	return ranging.Sample{DistanceCM: d, DistanceKnown: true, Level: level}
}

func centerDet(label string, conf float64) vision.ZonedDetection {
	return vision.ZonedDetection{
		Detection: vision.Detection{Label: label, Confidence: conf},
		Zone:      vision.ZoneCenter,
	}
}

func TestEvaluate_SensorWording(t *testing.T) {
	tests := []struct {
		level ranging.Level
		want  string
	}{
		{ranging.LevelDanger, "Danger ahead!"},
		{ranging.LevelWarning, "Obstacle detected!"},
	}
	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			a, sp, _ := newTestArbiter(t)
			ev := a.Evaluate(context.Background(), sample(40, tt.level), true, nil)
			require.NotNil(t, ev)
			assert.Equal(t, OriginSensor, ev.Origin)
			assert.Equal(t, []string{tt.want}, sp.said)
		})
	}
}

func TestEvaluate_ClearSensorDoesNotAlert(t *testing.T) {
	a, sp, _ := newTestArbiter(t)
	ev := a.Evaluate(context.Background(), sample(300, ranging.LevelClear), true, nil)
	assert.Nil(t, ev)
	assert.Empty(t, sp.said)
	assert.Equal(t, StateIdle, a.State())
}

func TestEvaluate_UnavailableSensorIgnored(t *testing.T) {
	a, sp, _ := newTestArbiter(t)
	ev := a.Evaluate(context.Background(), sample(20, ranging.LevelDanger), false, nil)
	assert.Nil(t, ev)
	assert.Empty(t, sp.said)
}

func TestEvaluate_CooldownTiming(t *testing.T) {
	a, sp, clock := newTestArbiter(t)
	ctx := context.Background()
	danger := sample(30, ranging.LevelDanger)

	require.NotNil(t, a.Evaluate(ctx, danger, true, nil), "t=0 should alert")
	assert.Equal(t, StateCooling, a.State())

	clock.Advance(2900 * time.Millisecond)
	assert.Nil(t, a.Evaluate(ctx, danger, true, nil), "t=2.9s should be suppressed")

	clock.Advance(200 * time.Millisecond)
	assert.Equal(t, StateIdle, a.State())
	require.NotNil(t, a.Evaluate(ctx, danger, true, nil), "t=3.1s should alert")

	assert.Len(t, sp.said, 2)
	assert.Equal(t, Stats{SensorAlerts: 2, Suppressed: 1}, a.Stats())
}

func TestEvaluate_CooldownExactlyElapsed(t *testing.T) {
	a, sp, clock := newTestArbiter(t)
	ctx := context.Background()
	danger := sample(30, ranging.LevelDanger)

	a.Evaluate(ctx, danger, true, nil)
	clock.Advance(DefaultCooldown)
	require.NotNil(t, a.Evaluate(ctx, danger, true, nil))
	assert.Len(t, sp.said, 2)
}

func TestEvaluate_CooldownSharedAcrossOrigins(t *testing.T) {
	a, sp, clock := newTestArbiter(t)
	ctx := context.Background()

	require.NotNil(t, a.Evaluate(ctx, sample(50, ranging.LevelWarning), true, nil))

	clock.Advance(time.Second)
	person := []vision.ZonedDetection{centerDet("person", 0.9)}
	assert.Nil(t, a.Evaluate(ctx, sample(250, ranging.LevelClear), true, person))
	assert.Equal(t, []string{"Obstacle detected!"}, sp.said)

	clock.Advance(2 * time.Second)
	ev := a.Evaluate(ctx, sample(250, ranging.LevelClear), true, person)
	require.NotNil(t, ev)
	assert.Equal(t, OriginVision, ev.Origin)

	clock.Advance(time.Second)
	assert.Nil(t, a.Evaluate(ctx, sample(20, ranging.LevelDanger), true, nil), "vision alert must suppress sensor alert")
}

func TestEvaluate_SensorHasPriority(t *testing.T) {
	a, sp, _ := newTestArbiter(t)
	ev := a.Evaluate(context.Background(), sample(60, ranging.LevelDanger), true,
		[]vision.ZonedDetection{centerDet("car", 0.95)})
	require.NotNil(t, ev)
	assert.Equal(t, OriginSensor, ev.Origin)
	assert.Equal(t, []string{"Danger ahead!"}, sp.said)
}

func TestEvaluate_SensorCoolingBlocksVision(t *testing.T) {
	a, sp, clock := newTestArbiter(t)
	ctx := context.Background()
	a.Evaluate(ctx, sample(60, ranging.LevelDanger), true, nil)
	clock.Advance(time.Second)

	ev := a.Evaluate(ctx, sample(60, ranging.LevelDanger), true,
		[]vision.ZonedDetection{centerDet("car", 0.95)})
	assert.Nil(t, ev)
	assert.Len(t, sp.said, 1)
}

func TestEvaluate_VisionWording(t *testing.T) {
	tests := []struct {
		name     string
		s        ranging.Sample
		sensorOK bool
		want     string
	}{
		{"near", sample(45, ranging.LevelClear), true, "person detected at 45 centimeters"},
		{"at threshold", sample(100, ranging.LevelClear), true, "person detected ahead"},
		{"far", sample(250, ranging.LevelClear), true, "person detected ahead"},
		{"zero distance", sample(0, ranging.LevelClear), true, "person detected ahead"},
		{"unknown distance", ranging.Sample{DistanceCM: 10}, true, "person detected ahead"},
		{"sensor unavailable", sample(45, ranging.LevelClear), false, "person detected ahead"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, sp, _ := newTestArbiter(t)
			ev := a.Evaluate(context.Background(), tt.s, tt.sensorOK, []vision.ZonedDetection{centerDet("person", 0.8)})
			require.NotNil(t, ev)
			assert.Equal(t, tt.want, ev.Text)
			assert.Equal(t, []string{tt.want}, sp.said)
		})
	}
}

func TestEvaluate_VisionQualification(t *testing.T) {
	left := centerDet("person", 0.9)
	left.Zone = vision.ZoneLeft
	right := centerDet("car", 0.9)
	right.Zone = vision.ZoneRight

	tests := []struct {
		name string
		det  vision.ZonedDetection
		want bool
	}{
		{"confidence exactly 0.5", centerDet("person", 0.5), false},
		{"confidence just above 0.5", centerDet("person", 0.5001), true},
		{"low confidence", centerDet("truck", 0.2), false},
		{"left zone", left, false},
		{"right zone", right, false},
		{"not on watch list", centerDet("dog", 0.99), false},
		{"bicycle", centerDet("bicycle", 0.7), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, sp, _ := newTestArbiter(t)
			ev := a.Evaluate(context.Background(), ranging.Sample{}, false, []vision.ZonedDetection{tt.det})
			assert.Equal(t, tt.want, ev != nil)
			assert.Equal(t, tt.want, len(sp.said) == 1)
		})
	}
}

func TestEvaluate_FirstQualifyingDetectionWins(t *testing.T) {
	a, sp, _ := newTestArbiter(t)
	dets := []vision.ZonedDetection{
		centerDet("dog", 0.99),
		centerDet("truck", 0.4),
		centerDet("car", 0.6),
		centerDet("person", 0.95),
	}
	ev := a.Evaluate(context.Background(), ranging.Sample{}, false, dets)
	require.NotNil(t, ev)
	assert.Equal(t, "car", ev.Label)
	assert.Equal(t, "center", ev.Zone)
	assert.Equal(t, []string{"car detected ahead"}, sp.said)
}

func TestEvaluate_SpeechFailureStillStartsCooldown(t *testing.T) {
	a, sp, clock := newTestArbiter(t)
	sp.err = errors.New("no audio device")
	rec := &recordingRecorder{}
	a.recorder = rec
	ctx := context.Background()

	ev := a.Evaluate(ctx, sample(30, ranging.LevelDanger), true, nil)
	require.NotNil(t, ev)
	assert.Equal(t, "no audio device", ev.SpeechErr)

	clock.Advance(time.Second)
	assert.Nil(t, a.Evaluate(ctx, sample(30, ranging.LevelDanger), true, nil))
	assert.Equal(t, uint64(1), a.Stats().SpeechFailures)

	require.Len(t, rec.events, 1)
	assert.Equal(t, ev.ID, rec.events[0].ID)
	assert.Equal(t, ev, a.LastEvent())
}

func TestOptions(t *testing.T) {
	a, sp, clock := newTestArbiter(t,
		WithCooldown(500*time.Millisecond),
		WithMinConfidence(0.8),
		WithNearDistance(200),
		WithWatchList([]string{"dog"}),
	)
	ctx := context.Background()
	assert.Equal(t, 500*time.Millisecond, a.Cooldown())

	assert.Nil(t, a.Evaluate(ctx, ranging.Sample{}, false, []vision.ZonedDetection{centerDet("person", 0.99)}))
	assert.Nil(t, a.Evaluate(ctx, ranging.Sample{}, false, []vision.ZonedDetection{centerDet("dog", 0.7)}))

	ev := a.Evaluate(ctx, sample(150, ranging.LevelClear), true, []vision.ZonedDetection{centerDet("dog", 0.85)})
	require.NotNil(t, ev)
	assert.Equal(t, "dog detected at 150 centimeters", ev.Text)

	clock.Advance(600 * time.Millisecond)
	assert.NotNil(t, a.Evaluate(ctx, sample(20, ranging.LevelDanger), true, nil))
	assert.Len(t, sp.said, 2)
}

func TestVisionText(t *testing.T) {
	assert.Equal(t, "car detected at 99 centimeters", VisionText("car", 99, true))
	assert.Equal(t, "car detected ahead", VisionText("car", 100, true))
	assert.Equal(t, "car detected ahead", VisionText("car", 50, false))
}

type speakerFunc func(ctx context.Context, text string) error

func (f speakerFunc) Speak(ctx context.Context, text string) error { return f(ctx, text) }

func TestState_CoolingWhileSpeaking(t *testing.T) {
	monitoring.SetLogger(nil)
	clock := timeutil.NewMockClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	var a *Arbiter
	var during []State
	var lastDuring *Event
	a = NewArbiter(speakerFunc(func(context.Context, string) error {
		during = append(during, a.State())
		lastDuring = a.LastEvent()
		return nil
	}), WithClock(clock))

	require.Equal(t, StateIdle, a.State())
	require.NotNil(t, a.Evaluate(context.Background(), sample(30, ranging.LevelDanger), true, nil))

	assert.Equal(t, []State{StateCooling}, during)
	assert.Nil(t, lastDuring)
	assert.Equal(t, StateCooling, a.State())
}
