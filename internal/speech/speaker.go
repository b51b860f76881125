// Package speech speaks alert phrases through the host's text-to-speech
// command.
package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/banshee-data/obstacle.alert/internal/monitoring"
)

// DefaultRate is the speaking rate in words per minute.
const DefaultRate = 150

// ErrNoEngine is returned by NewCommandSpeaker when no usable text-to-speech
// command could be found.
var ErrNoEngine = errors.New("no text-to-speech command found")

// CommandSpeaker runs one external process per phrase and waits for it to
// finish. Calls are serialised so phrases never overlap.
type CommandSpeaker struct {
	Program string
	// Args are placed before the phrase. "{rate}" is replaced by Rate.
	Args []string
	Rate int

	mu sync.Mutex
}

// engine describes how to invoke a known text-to-speech command.
type engine struct {
	program string
	args    []string
}

var engines = map[string]engine{
	"espeak":    {"espeak", []string{"-s", "{rate}"}},
	"espeak-ng": {"espeak-ng", []string{"-s", "{rate}"}},
	"say":       {"say", []string{"-r", "{rate}"}},
	"spd-say":   {"spd-say", []string{"--wait", "-r", "0"}},
}

// NewCommandSpeaker returns a speaker for program, or for the first engine
// found on PATH when program is empty.
func NewCommandSpeaker(program string, rate int) (*CommandSpeaker, error) {
	if rate <= 0 {
		rate = DefaultRate
	}
	if program != "" {
		e, ok := engines[program]
		if !ok {
			e = engine{program: program}
		}
		if _, err := exec.LookPath(e.program); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrNoEngine, program, err)
		}
		return &CommandSpeaker{Program: e.program, Args: e.args, Rate: rate}, nil
	}

	for _, name := range searchOrder() {
		if _, err := exec.LookPath(name); err == nil {
			e := engines[name]
			return &CommandSpeaker{Program: e.program, Args: e.args, Rate: rate}, nil
		}
	}
	return nil, ErrNoEngine
}

func searchOrder() []string {
	if runtime.GOOS == "darwin" {
		return []string{"say", "espeak-ng", "espeak"}
	}
	return []string{"espeak-ng", "espeak", "spd-say"}
}

// Command builds the process that speaks text.
func (s *CommandSpeaker) Command(ctx context.Context, text string) *exec.Cmd {
	args := make([]string, 0, len(s.Args)+1)
	for _, a := range s.Args {
		args = append(args, strings.ReplaceAll(a, "{rate}", strconv.Itoa(s.Rate)))
	}
	args = append(args, text)
	return exec.CommandContext(ctx, s.Program, args...)
}

// Speak blocks until the phrase has been spoken.
func (s *CommandSpeaker) Speak(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cmd := s.Command(ctx, text)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	monitoring.Debugf("speaking via %s: %q", s.Program, text)
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s failed: %w, stderr: %s", s.Program, err, msg)
		}
		return fmt.Errorf("%s failed: %w", s.Program, err)
	}
	return nil
}

// LogSpeaker writes phrases to the diagnostic log instead of speaking them.
// It is used when no engine is installed.
type LogSpeaker struct{}

func (LogSpeaker) Speak(_ context.Context, text string) error {
	monitoring.Logf("🗣️  %s", text)
	return nil
}
