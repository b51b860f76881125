// Package telemetry forwards range readings to the remote dashboard at a
// bounded rate, independent of how often the sensor reports or how often
// the user is alerted.
package telemetry

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/banshee-data/obstacle.alert/internal/monitoring"
	"github.com/google/uuid"
)

// DefaultUploadInterval is the minimum gap between two uploads.
const DefaultUploadInterval = time.Second

// Sink performs a single upload.
type Sink interface {
	Upload(ctx context.Context, distanceCM int) error
}

// UploadEvent describes one upload attempt.
type UploadEvent struct {
	ID         string    `json:"id"`
	Time       time.Time `json:"time"`
	DistanceCM int       `json:"distance_cm"`
	Err        error     `json:"-"`
}

// Recorder persists upload attempts. Recording failures are logged only.
type Recorder interface {
	RecordUpload(UploadEvent) error
}

// Throttle gates uploads to one per interval. It is driven from the ranging
// goroutine only and holds no lock on its clock state; the counters are
// atomic so the status endpoint can read them.
type Throttle struct {
	sink     Sink
	interval time.Duration
	recorder Recorder

	lastUpload time.Time
	uploaded   bool

	attempts atomic.Uint64
	failures atomic.Uint64
}

// NewThrottle creates a throttle in front of sink. A non-positive interval
// falls back to DefaultUploadInterval.
func NewThrottle(sink Sink, interval time.Duration) *Throttle {
	if interval <= 0 {
		interval = DefaultUploadInterval
	}
	return &Throttle{sink: sink, interval: interval}
}

// SetRecorder attaches a recorder for upload attempts.
func (t *Throttle) SetRecorder(r Recorder) {
	t.recorder = r
}

// Interval returns the configured upload interval.
func (t *Throttle) Interval() time.Duration {
	return t.interval
}

// MaybeUpload uploads distanceCM when more than the interval has passed
// since the previous attempt, or when nothing has been uploaded yet. The
// attempt time advances whether or not the upload succeeds, so a failing
// endpoint sees at most one request per interval. It reports whether an
// upload was attempted.
func (t *Throttle) MaybeUpload(ctx context.Context, distanceCM int, now time.Time) bool {
	if t.uploaded && now.Sub(t.lastUpload) <= t.interval {
		return false
	}
	t.lastUpload = now
	t.uploaded = true
	t.attempts.Add(1)

	err := t.sink.Upload(ctx, distanceCM)
	if err != nil {
		t.failures.Add(1)
		monitoring.Logf("telemetry upload of %dcm failed: %v", distanceCM, err)
	}

	if t.recorder != nil {
		ev := UploadEvent{ID: uuid.NewString(), Time: now, DistanceCM: distanceCM, Err: err}
		if rerr := t.recorder.RecordUpload(ev); rerr != nil {
			monitoring.Logf("failed to record telemetry upload: %v", rerr)
		}
	}
	return true
}

// Stats summarises upload attempts so far.
type Stats struct {
	Attempts   uint64 `json:"attempts"`
	Failures   uint64 `json:"failures"`
	IntervalMS int64  `json:"interval_ms"`
}

func (t *Throttle) Stats() Stats {
	return Stats{
		Attempts:   t.attempts.Load(),
		Failures:   t.failures.Load(),
		IntervalMS: t.interval.Milliseconds(),
	}
}
