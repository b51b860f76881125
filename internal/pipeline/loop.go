// Package pipeline runs the per-frame main loop: read a frame, detect
// objects, classify them into zones, let the alert arbiter decide whether to
// speak and render the overlay. Everything it talks to sits behind an
// interface so the loop runs the same against a camera or test fakes.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/banshee-data/obstacle.alert/internal/alert"
	"github.com/banshee-data/obstacle.alert/internal/monitoring"
	"github.com/banshee-data/obstacle.alert/internal/ranging"
	"github.com/banshee-data/obstacle.alert/internal/vision"
)

// ErrCamera wraps every frame source failure. The loop stops on it.
var ErrCamera = errors.New("camera failure")

// Frame is one captured image. Frames that implement io.Closer are closed
// once the loop is done with them.
type Frame interface {
	Width() int
	Height() int
}

// Source yields frames.
type Source[F Frame] interface {
	Read(ctx context.Context) (F, error)
}

// Detector finds objects in a frame. Box coordinates are in frame pixels.
type Detector[F Frame] interface {
	Detect(frame F) ([]vision.Detection, error)
}

// Renderer draws the overlay on a frame and shows it. quit is set when the
// user asked to stop.
type Renderer[F Frame] interface {
	Render(frame F, o Overlay) (quit bool, err error)
}

// SensorView is the read-only side of the range reader.
type SensorView interface {
	Latest() (ranging.Sample, bool)
	Enabled() bool
}

// Arbiter decides on alerts. *alert.Arbiter implements it.
type Arbiter interface {
	Evaluate(ctx context.Context, sample ranging.Sample, sensorOK bool, dets []vision.ZonedDetection) *alert.Event
}

// Loop is the synchronous frame loop. It is not safe for concurrent use
// except for Frames.
type Loop[F Frame] struct {
	source        Source[F]
	detector      Detector[F]
	renderer      Renderer[F]
	sensor        SensorView
	arbiter       Arbiter
	minConfidence float64

	frames         atomic.Uint64
	detectorErrors atomic.Uint64
}

// Option configures a Loop.
type Option[F Frame] func(*Loop[F])

// WithRenderer sets the display. Without one the loop runs headless.
func WithRenderer[F Frame](r Renderer[F]) Option[F] {
	return func(l *Loop[F]) { l.renderer = r }
}

// WithMinConfidence sets the confidence a detection must exceed to be drawn.
func WithMinConfidence[F Frame](c float64) Option[F] {
	return func(l *Loop[F]) { l.minConfidence = c }
}

// New creates a loop. detector may be nil, in which case only sensor alerts
// are possible.
func New[F Frame](source Source[F], detector Detector[F], sensor SensorView, arbiter Arbiter, opts ...Option[F]) *Loop[F] {
	l := &Loop[F]{
		source:        source,
		detector:      detector,
		sensor:        sensor,
		arbiter:       arbiter,
		minConfidence: alert.DefaultMinConfidence,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Frames returns the number of frames processed so far.
func (l *Loop[F]) Frames() uint64 {
	return l.frames.Load()
}

// DetectorErrors returns the number of frames whose detection failed.
func (l *Loop[F]) DetectorErrors() uint64 {
	return l.detectorErrors.Load()
}

// Step processes a single frame. quit is set when the renderer asked to
// stop. A frame source error is returned wrapped in ErrCamera; a detector
// error only drops that frame's detections.
func (l *Loop[F]) Step(ctx context.Context) (quit bool, err error) {
	frame, err := l.source.Read(ctx)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrCamera, err)
	}
	defer closeFrame(frame)
	l.frames.Add(1)

	var dets []vision.Detection
	if l.detector != nil {
		dets, err = l.detector.Detect(frame)
		if err != nil {
			l.detectorErrors.Add(1)
			monitoring.Logf("detection failed: %v", err)
			dets = nil
		}
	}
	zoned := vision.ClassifyAll(dets, frame.Width())

	sample, ok := l.sensor.Latest()
	ev := l.arbiter.Evaluate(ctx, sample, ok, zoned)

	if l.renderer == nil {
		return false, nil
	}
	o := BuildOverlay(FrameState{
		Width:         frame.Width(),
		Height:        frame.Height(),
		Detections:    zoned,
		MinConfidence: l.minConfidence,
		Sample:        sample,
		SensorOK:      ok,
		SensorEnabled: l.sensor.Enabled(),
		Alert:         ev,
	})
	quit, err = l.renderer.Render(frame, o)
	if err != nil {
		return false, fmt.Errorf("render failed: %w", err)
	}
	return quit, nil
}

// Run steps until ctx is cancelled, the renderer asks to quit or a step
// fails. Cancellation and quitting return nil.
func (l *Loop[F]) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		quit, err := l.Step(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if quit {
			monitoring.Logf("quit requested after %d frames", l.frames.Load())
			return nil
		}
	}
}

func closeFrame(f any) {
	if c, ok := f.(io.Closer); ok {
		if err := c.Close(); err != nil {
			monitoring.Logf("failed to release frame: %v", err)
		}
	}
}
