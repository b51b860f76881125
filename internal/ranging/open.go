package ranging

import (
	"fmt"
	"time"

	"github.com/banshee-data/obstacle.alert/internal/monitoring"
	"github.com/banshee-data/obstacle.alert/internal/serialmux"
)

// DefaultReplayInterval paces fixture playback.
const DefaultReplayInterval = 200 * time.Millisecond

// Setup describes how to reach the range sensor.
type Setup struct {
	// Disabled forces camera-only mode.
	Disabled bool
	// FixturePath replays recorded serial output instead of opening Port.
	FixturePath    string
	ReplayInterval time.Duration

	Port        string
	PortOptions serialmux.PortOptions
	// Opener defaults to serialmux.OpenSerialPort.
	Opener serialmux.SerialPortOpener

	Options []Option
}

// Open connects the range sensor. A disabled sensor, an empty port and a
// port that cannot be opened all degrade to camera-only mode with a disabled
// mux and reader; no retry is attempted. Only an unreadable fixture file is
// an error.
func Open(s Setup) (serialmux.SerialMuxInterface, *Reader, error) {
	if s.Disabled {
		monitoring.Logf("Camera only mode: sensor disabled by flag")
		return serialmux.NewDisabledSerialMux(), NewDisabledReader(), nil
	}

	if s.FixturePath != "" {
		lines, err := serialmux.ReadFixture(s.FixturePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open fixtures file: %w", err)
		}
		interval := s.ReplayInterval
		if interval <= 0 {
			interval = DefaultReplayInterval
		}
		monitoring.Logf("Replaying %d serial lines from %s", len(lines), s.FixturePath)
		m := serialmux.NewReplaySerialMux(lines, interval)
		return m, NewReader(m, s.Options...), nil
	}

	if s.Port == "" {
		monitoring.Logf("Camera only mode: no serial port given")
		return serialmux.NewDisabledSerialMux(), NewDisabledReader(), nil
	}

	open := s.Opener
	if open == nil {
		open = serialmux.OpenSerialPort
	}
	port, err := open(s.Port, s.PortOptions)
	if err != nil {
		monitoring.Logf("❌ Failed to connect to ESP32 on %s: %v", s.Port, err)
		monitoring.Logf("Running in camera-only mode")
		return serialmux.NewDisabledSerialMux(), NewDisabledReader(), nil
	}
	monitoring.Logf("✅ Connected to ESP32 on %s", s.Port)
	m := serialmux.NewSerialMux(port)
	return m, NewReader(m, s.Options...), nil
}
