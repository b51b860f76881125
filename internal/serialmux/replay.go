package serialmux

import (
	"bytes"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// ReplayPort is a SerialPorter that loops over a fixed set of recorded lines,
// emitting one every interval. It backs the -fixture development mode so the
// full pipeline can run without the ESP32 attached.
type ReplayPort struct {
	r    *io.PipeReader
	w    *io.PipeWriter
	mu   sync.Mutex
	sent bytes.Buffer
	done chan struct{}
	once sync.Once
}

// NewReplayPort starts replaying lines. Empty lines are skipped.
func NewReplayPort(lines []string, interval time.Duration) *ReplayPort {
	r, w := io.Pipe()
	p := &ReplayPort{r: r, w: w, done: make(chan struct{})}

	var payload [][]byte
	for _, l := range lines {
		l = string(bytes.TrimSpace([]byte(l)))
		if l != "" {
			payload = append(payload, []byte(l+"\n"))
		}
	}

	go func() {
		defer w.Close()
		if len(payload) == 0 {
			<-p.done
			return
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for i := 0; ; i = (i + 1) % len(payload) {
			select {
			case <-p.done:
				return
			case <-ticker.C:
				if _, err := w.Write(payload[i]); err != nil {
					return
				}
			}
		}
	}()
	return p
}

func (p *ReplayPort) Read(b []byte) (int, error) { return p.r.Read(b) }

// Write records commands so they can be inspected; the replay ignores them.
func (p *ReplayPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sent.Write(b)
}

// Sent returns everything written to the port so far.
func (p *ReplayPort) Sent() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sent.String()
}

func (p *ReplayPort) Close() error {
	p.once.Do(func() { close(p.done) })
	return p.r.Close()
}

// NewReplaySerialMux creates a SerialMux backed by a ReplayPort.
func NewReplaySerialMux(lines []string, interval time.Duration) *SerialMux[*ReplayPort] {
	return NewSerialMux(NewReplayPort(lines, interval))
}

// ReadFixture loads recorded serial output for NewReplaySerialMux. Blank
// lines and Windows line endings are dropped.
func ReadFixture(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var lines []string
	for _, l := range strings.Split(string(data), "\n") {
		l = strings.TrimRight(l, "\r")
		if strings.TrimSpace(l) == "" {
			continue
		}
		lines = append(lines, l)
	}
	return lines, nil
}
