package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/obstacle.alert/internal/alert"
	"github.com/banshee-data/obstacle.alert/internal/monitoring"
	"github.com/banshee-data/obstacle.alert/internal/ranging"
	"github.com/banshee-data/obstacle.alert/internal/timeutil"
	"github.com/banshee-data/obstacle.alert/internal/vision"
)

type fakeFrame struct {
	w, h   int
	closed *int
}

func (f fakeFrame) Width() int  { return f.w }
func (f fakeFrame) Height() int { return f.h }
func (f fakeFrame) Close() error {
	*f.closed++
	return nil
}

type fakeSource struct {
	frames int
	closed int
	err    error
}

func (s *fakeSource) Read(context.Context) (fakeFrame, error) {
	if s.frames == 0 {
		if s.err != nil {
			return fakeFrame{}, s.err
		}
		return fakeFrame{}, errors.New("end of stream")
	}
	s.frames--
	return fakeFrame{w: 640, h: 480, closed: &s.closed}, nil
}

type fakeDetector struct {
	dets []vision.Detection
	err  error
}

func (d *fakeDetector) Detect(fakeFrame) ([]vision.Detection, error) {
	return d.dets, d.err
}

type fakeSensor struct {
	sample  ranging.Sample
	ok      bool
	enabled bool
}

func (s fakeSensor) Latest() (ranging.Sample, bool) { return s.sample, s.ok }
func (s fakeSensor) Enabled() bool                  { return s.enabled }

type recordingRenderer struct {
	overlays []Overlay
	quitAt   int
}

func (r *recordingRenderer) Render(_ fakeFrame, o Overlay) (bool, error) {
	r.overlays = append(r.overlays, o)
	return r.quitAt > 0 && len(r.overlays) >= r.quitAt, nil
}

type recordingSpeaker struct{ said []string }

func (s *recordingSpeaker) Speak(_ context.Context, text string) error {
	s.said = append(s.said, text)
	return nil
}

func newArbiter(t *testing.T) (*alert.Arbiter, *recordingSpeaker, *timeutil.MockClock) {
	t.Helper()
	monitoring.SetLogger(nil)
	clock := timeutil.NewMockClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	sp := &recordingSpeaker{}
	return alert.NewArbiter(sp, alert.WithClock(clock)), sp, clock
}

func personAt(x1, x2, conf float64) vision.Detection {
	return vision.Detection{Box: vision.Box{X1: x1, Y1: 100, X2: x2, Y2: 300}, Label: "person", Confidence: conf}
}

func TestStep_VisionAlertUsesZones(t *testing.T) {
	arb, sp, _ := newArbiter(t)
	src := &fakeSource{frames: 1}
	det := &fakeDetector{dets: []vision.Detection{
		personAt(0, 100, 0.9),   // left
		personAt(280, 360, 0.9), // center
	}}
	sensor := fakeSensor{sample: ranging.Sample{DistanceCM: 60, DistanceKnown: true}, ok: true, enabled: true}
	r := &recordingRenderer{}

	l := New[fakeFrame](src, det, sensor, arb, WithRenderer[fakeFrame](r))
	quit, err := l.Step(context.Background())
	require.NoError(t, err)
	assert.False(t, quit)

	assert.Equal(t, []string{"person detected at 60 centimeters"}, sp.said)
	require.Len(t, r.overlays, 1)
	o := r.overlays[0]
	require.NotNil(t, o.Alert)
	assert.Equal(t, alert.OriginVision, o.Alert.Origin)
	assert.Len(t, o.Boxes, 2)
	assert.Equal(t, ColorRed, o.Boxes[0].Color)
	assert.Equal(t, ColorGreen, o.Boxes[1].Color)
	assert.Equal(t, "ESP32 Sensor: 60cm - CLEAR", o.Status.Text)
	assert.Equal(t, 1, src.closed)
	assert.Equal(t, uint64(1), l.Frames())
}

func TestStep_SensorAlertWithoutDetector(t *testing.T) {
	arb, sp, _ := newArbiter(t)
	sensor := fakeSensor{sample: ranging.Sample{DistanceCM: 20, DistanceKnown: true, Level: ranging.LevelDanger}, ok: true, enabled: true}

	l := New[fakeFrame](&fakeSource{frames: 1}, nil, sensor, arb)
	_, err := l.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Danger ahead!"}, sp.said)
}

func TestStep_DetectorErrorIsNotFatal(t *testing.T) {
	arb, sp, _ := newArbiter(t)
	det := &fakeDetector{err: errors.New("inference failed")}
	sensor := fakeSensor{sample: ranging.Sample{DistanceCM: 80, DistanceKnown: true, Level: ranging.LevelWarning}, ok: true, enabled: true}
	r := &recordingRenderer{}

	l := New[fakeFrame](&fakeSource{frames: 1}, det, sensor, arb, WithRenderer[fakeFrame](r))
	_, err := l.Step(context.Background())
	require.NoError(t, err)

	assert.Equal(t, uint64(1), l.DetectorErrors())
	assert.Equal(t, []string{"Obstacle detected!"}, sp.said)
	require.Len(t, r.overlays, 1)
	assert.Empty(t, r.overlays[0].Boxes)
}

func TestStep_CameraErrorIsWrapped(t *testing.T) {
	arb, _, _ := newArbiter(t)
	camErr := errors.New("device unplugged")
	l := New[fakeFrame](&fakeSource{err: camErr}, nil, fakeSensor{}, arb)

	_, err := l.Step(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCamera)
	assert.ErrorIs(t, err, camErr)
}

func TestRun_StopsOnQuit(t *testing.T) {
	arb, _, _ := newArbiter(t)
	src := &fakeSource{frames: 10}
	r := &recordingRenderer{quitAt: 3}

	l := New[fakeFrame](src, &fakeDetector{}, fakeSensor{}, arb, WithRenderer[fakeFrame](r))
	require.NoError(t, l.Run(context.Background()))
	assert.Equal(t, uint64(3), l.Frames())
	assert.Equal(t, 3, src.closed)
	assert.Equal(t, CameraOnlyText, r.overlays[0].Status.Text)
}

func TestRun_StopsOnCameraFailure(t *testing.T) {
	arb, _, _ := newArbiter(t)
	src := &fakeSource{frames: 2}

	l := New[fakeFrame](src, nil, fakeSensor{}, arb)
	err := l.Run(context.Background())
	assert.ErrorIs(t, err, ErrCamera)
	assert.Equal(t, uint64(2), l.Frames())
}

func TestRun_CancelledContext(t *testing.T) {
	arb, _, _ := newArbiter(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l := New[fakeFrame](&fakeSource{frames: 5}, nil, fakeSensor{}, arb)
	require.NoError(t, l.Run(ctx))
	assert.Equal(t, uint64(0), l.Frames())
}

func TestRun_CooldownAcrossFrames(t *testing.T) {
	arb, sp, clock := newArbiter(t)
	sensor := fakeSensor{sample: ranging.Sample{DistanceCM: 30, DistanceKnown: true, Level: ranging.LevelDanger}, ok: true, enabled: true}
	src := &fakeSource{frames: 3}
	l := New[fakeFrame](src, nil, sensor, arb)

	for i := 0; i < 3; i++ {
		_, err := l.Step(context.Background())
		require.NoError(t, err)
		clock.Advance(time.Second)
	}
	assert.Equal(t, []string{"Danger ahead!"}, sp.said)
}
