package ranging

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/obstacle.alert/internal/monitoring"
	"github.com/banshee-data/obstacle.alert/internal/serialmux"
	"github.com/banshee-data/obstacle.alert/internal/timeutil"
)

// DefaultRetryDelay is the pause between a failed serial read and the next
// attempt.
const DefaultRetryDelay = 100 * time.Millisecond

// ErrDisabled is returned by HandleLine on a reader running in camera-only mode.
var ErrDisabled = errors.New("ranging sensor disabled")

// Uploader receives every accepted sample with a known distance. The
// telemetry throttle implements it and decides on its own whether to send.
type Uploader interface {
	MaybeUpload(ctx context.Context, distanceCM int, now time.Time) bool
}

// Reader owns the serial subscription for the range sensor and the latest
// sample cell. Latest may be called from any goroutine; everything else
// happens on the goroutine running Run.
type Reader struct {
	mux        serialmux.SerialMuxInterface
	clock      timeutil.Clock
	retryDelay time.Duration
	uploader   Uploader
	enabled    bool

	latest    atomic.Pointer[Sample]
	accepted  atomic.Uint64
	discarded atomic.Uint64
	readErrs  atomic.Uint64
}

// Option configures a Reader.
type Option func(*Reader)

// WithClock sets the clock used to stamp samples and time retries.
func WithClock(c timeutil.Clock) Option {
	return func(r *Reader) { r.clock = c }
}

// WithRetryDelay overrides DefaultRetryDelay.
func WithRetryDelay(d time.Duration) Option {
	return func(r *Reader) {
		if d > 0 {
			r.retryDelay = d
		}
	}
}

// WithUploader attaches the telemetry throttle.
func WithUploader(u Uploader) Option {
	return func(r *Reader) { r.uploader = u }
}

// NewReader creates a reader fed by mux.
func NewReader(mux serialmux.SerialMuxInterface, opts ...Option) *Reader {
	r := &Reader{
		mux:        mux,
		clock:      timeutil.RealClock{},
		retryDelay: DefaultRetryDelay,
		enabled:    true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewDisabledReader creates a reader for camera-only mode. It never reports
// a sample and never touches a serial port.
func NewDisabledReader() *Reader {
	return &Reader{
		mux:        serialmux.NewDisabledSerialMux(),
		clock:      timeutil.RealClock{},
		retryDelay: DefaultRetryDelay,
	}
}

// Enabled reports whether a serial link was opened for this reader.
func (r *Reader) Enabled() bool {
	return r.enabled
}

// Latest returns the most recent sample. ok is false in camera-only mode and
// before the first well-formed frame has arrived.
func (r *Reader) Latest() (s Sample, ok bool) {
	if !r.enabled {
		return Sample{}, false
	}
	p := r.latest.Load()
	if p == nil {
		return Sample{}, false
	}
	return *p, true
}

// Stats counts what the reader has done with the lines it received.
type Stats struct {
	Accepted   uint64 `json:"accepted"`
	Discarded  uint64 `json:"discarded"`
	ReadErrors uint64 `json:"read_errors"`
}

func (r *Reader) Stats() Stats {
	return Stats{
		Accepted:   r.accepted.Load(),
		Discarded:  r.discarded.Load(),
		ReadErrors: r.readErrs.Load(),
	}
}

// HandleLine parses one serial line. On success the sample replaces the
// published one and the uploader is consulted; on failure the previous
// sample is left untouched and the parse error is returned.
func (r *Reader) HandleLine(ctx context.Context, line string) error {
	if !r.enabled {
		return ErrDisabled
	}
	monitoring.Debugf("🔍 serial line: [%s]", line)

	now := r.clock.Now()
	s, err := ParseLine(line, now)
	if err != nil {
		r.discarded.Add(1)
		return err
	}

	r.latest.Store(&s)
	r.accepted.Add(1)

	if r.uploader != nil && s.DistanceKnown {
		r.uploader.MaybeUpload(ctx, s.DistanceCM, now)
	}
	return nil
}

// Run consumes serial lines until ctx is done or the mux is closed. Serial
// read failures are retried after the retry delay for the lifetime of the
// process. In camera-only mode Run just waits for ctx.
func (r *Reader) Run(ctx context.Context) error {
	if !r.enabled {
		<-ctx.Done()
		return nil
	}

	id, lines := r.mux.Subscribe()
	defer r.mux.Unsubscribe(id)

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer wg.Wait()
	defer cancel()

	wg.Add(1)
	go func() {
		defer wg.Done()
		r.monitor(ctx)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := r.HandleLine(ctx, line); err != nil {
				monitoring.Debugf("discarded serial line: %v", err)
			}
		}
	}
}

// monitor keeps the serial mux reading, pausing retryDelay after every
// failure so a dead port cannot spin the scheduler.
func (r *Reader) monitor(ctx context.Context) {
	failures := 0
	for {
		err := r.mux.Monitor(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			r.readErrs.Add(1)
			if failures%100 == 0 {
				monitoring.Logf("❌ serial read failed (%d consecutive): %v", failures+1, err)
			}
			failures++
		} else {
			failures = 0
		}

		select {
		case <-ctx.Done():
			return
		case <-r.clock.After(r.retryDelay):
		}
	}
}
