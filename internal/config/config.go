// Package config loads the optional JSON configuration file. Every field is
// optional: the Get* accessors fall back to the built-in defaults, so a
// partial file (or no file at all) is valid.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the example configuration shipped with the repo.
const DefaultConfigPath = "config/obstacle.defaults.json"

// Defaults.
const (
	DefaultBaudRate        = 115200
	DefaultSettleDelay     = 2 * time.Second
	DefaultReadRetryDelay  = 100 * time.Millisecond
	DefaultAlertCooldown   = 3 * time.Second
	DefaultMinConfidence   = 0.5
	DefaultNearDistanceCM  = 100
	DefaultUploadInterval  = time.Second
	DefaultUploadTimeout   = 4 * time.Second
	DefaultThingSpeakURL   = "https://api.thingspeak.com/update"
	DefaultThingSpeakField = "field1"
	DefaultSpeechRate      = 150
	DefaultCameraIndex     = 0
	DefaultModelPath       = "yolov8n.onnx"
	DefaultModelInputSize  = 640
	DefaultDBPath          = "obstacle.db"
	DefaultListenAddr      = "127.0.0.1:8090"
)

// DefaultWatchList is the set of classes that trigger a vision alert.
var DefaultWatchList = []string{"person", "car", "truck", "bicycle"}

// Config is the root configuration. Durations are strings such as "3s".
type Config struct {
	// Range sensor
	SerialPort     *string `json:"serial_port,omitempty"`
	BaudRate       *int    `json:"baud_rate,omitempty"`
	SettleDelay    *string `json:"settle_delay,omitempty"`
	ReadRetryDelay *string `json:"read_retry_delay,omitempty"`

	// Alerting
	AlertCooldown  *string  `json:"alert_cooldown,omitempty"`
	MinConfidence  *float64 `json:"min_confidence,omitempty"`
	NearDistanceCM *int     `json:"near_distance_cm,omitempty"`
	WatchList      []string `json:"watch_list,omitempty"`
	SpeechEngine   *string  `json:"speech_engine,omitempty"`
	SpeechRate     *int     `json:"speech_rate,omitempty"`

	// Telemetry
	UploadInterval   *string `json:"upload_interval,omitempty"`
	UploadTimeout    *string `json:"upload_timeout,omitempty"`
	ThingSpeakURL    *string `json:"thingspeak_url,omitempty"`
	ThingSpeakAPIKey *string `json:"thingspeak_api_key,omitempty"`
	ThingSpeakField  *string `json:"thingspeak_field,omitempty"`

	// Camera and detector
	CameraIndex    *int    `json:"camera_index,omitempty"`
	ModelPath      *string `json:"model_path,omitempty"`
	ModelInputSize *int    `json:"model_input_size,omitempty"`
	Mirror         *bool   `json:"mirror,omitempty"`
	ShowWindow     *bool   `json:"show_window,omitempty"`

	// Local services
	DBPath     *string `json:"db_path,omitempty"`
	ListenAddr *string `json:"listen_addr,omitempty"`
}

func ptrString(v string) *string { return &v }
func ptrInt(v int) *int          { return &v }
func ptrBool(v bool) *bool       { return &v }

// EmptyConfig returns a Config with every field unset.
func EmptyConfig() *Config {
	return &Config{}
}

// LoadConfig loads a Config from a JSON file. The file must have a .json
// extension and be under 1MB. Unknown fields are rejected.
func LoadConfig(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	f, err := os.Open(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	defer f.Close()

	cfg := EmptyConfig()
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the values that are set.
func (c *Config) Validate() error {
	durations := []struct {
		name string
		v    *string
	}{
		{"settle_delay", c.SettleDelay},
		{"read_retry_delay", c.ReadRetryDelay},
		{"alert_cooldown", c.AlertCooldown},
		{"upload_interval", c.UploadInterval},
		{"upload_timeout", c.UploadTimeout},
	}
	for _, d := range durations {
		if d.v == nil || *d.v == "" {
			continue
		}
		parsed, err := time.ParseDuration(*d.v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", d.name, *d.v, err)
		}
		if parsed < 0 {
			return fmt.Errorf("%s must be non-negative, got %s", d.name, *d.v)
		}
	}

	if c.BaudRate != nil && *c.BaudRate <= 0 {
		return fmt.Errorf("baud_rate must be positive, got %d", *c.BaudRate)
	}
	if c.MinConfidence != nil && (*c.MinConfidence < 0 || *c.MinConfidence > 1) {
		return fmt.Errorf("min_confidence must be between 0 and 1, got %f", *c.MinConfidence)
	}
	if c.NearDistanceCM != nil && *c.NearDistanceCM < 0 {
		return fmt.Errorf("near_distance_cm must be non-negative, got %d", *c.NearDistanceCM)
	}
	if c.SpeechRate != nil && *c.SpeechRate <= 0 {
		return fmt.Errorf("speech_rate must be positive, got %d", *c.SpeechRate)
	}
	if c.CameraIndex != nil && *c.CameraIndex < 0 {
		return fmt.Errorf("camera_index must be non-negative, got %d", *c.CameraIndex)
	}
	if c.ModelInputSize != nil && (*c.ModelInputSize <= 0 || *c.ModelInputSize%32 != 0) {
		return fmt.Errorf("model_input_size must be a positive multiple of 32, got %d", *c.ModelInputSize)
	}
	for i, l := range c.WatchList {
		if l == "" {
			return fmt.Errorf("watch_list[%d] is empty", i)
		}
	}
	return nil
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}

func stringOr(v *string, def string) string {
	if v == nil || *v == "" {
		return def
	}
	return *v
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

// GetSerialPort returns the serial device path, or "" when unset.
func (c *Config) GetSerialPort() string { return stringOr(c.SerialPort, "") }

func (c *Config) GetBaudRate() int { return intOr(c.BaudRate, DefaultBaudRate) }

func (c *Config) GetSettleDelay() time.Duration {
	return durationOr(c.SettleDelay, DefaultSettleDelay)
}

func (c *Config) GetReadRetryDelay() time.Duration {
	return durationOr(c.ReadRetryDelay, DefaultReadRetryDelay)
}

func (c *Config) GetAlertCooldown() time.Duration {
	return durationOr(c.AlertCooldown, DefaultAlertCooldown)
}

// GetMinConfidence returns the confidence a detection must exceed to alert.
func (c *Config) GetMinConfidence() float64 {
	if c.MinConfidence == nil {
		return DefaultMinConfidence
	}
	return *c.MinConfidence
}

func (c *Config) GetNearDistanceCM() int { return intOr(c.NearDistanceCM, DefaultNearDistanceCM) }

// GetWatchList returns a copy of the configured watch list or the default.
func (c *Config) GetWatchList() []string {
	src := c.WatchList
	if len(src) == 0 {
		src = DefaultWatchList
	}
	return append([]string(nil), src...)
}

// GetSpeechEngine returns the TTS command name, or "" to auto-detect.
func (c *Config) GetSpeechEngine() string { return stringOr(c.SpeechEngine, "") }

func (c *Config) GetSpeechRate() int { return intOr(c.SpeechRate, DefaultSpeechRate) }

func (c *Config) GetUploadInterval() time.Duration {
	return durationOr(c.UploadInterval, DefaultUploadInterval)
}

func (c *Config) GetUploadTimeout() time.Duration {
	return durationOr(c.UploadTimeout, DefaultUploadTimeout)
}

func (c *Config) GetThingSpeakURL() string { return stringOr(c.ThingSpeakURL, DefaultThingSpeakURL) }

// GetThingSpeakAPIKey returns the write key. The THINGSPEAK_API_KEY
// environment variable wins over the file so keys stay out of config.
func (c *Config) GetThingSpeakAPIKey() string {
	if k := os.Getenv("THINGSPEAK_API_KEY"); k != "" {
		return k
	}
	return stringOr(c.ThingSpeakAPIKey, "")
}

func (c *Config) GetThingSpeakField() string {
	return stringOr(c.ThingSpeakField, DefaultThingSpeakField)
}

func (c *Config) GetCameraIndex() int { return intOr(c.CameraIndex, DefaultCameraIndex) }

func (c *Config) GetModelPath() string { return stringOr(c.ModelPath, DefaultModelPath) }

func (c *Config) GetModelInputSize() int { return intOr(c.ModelInputSize, DefaultModelInputSize) }

// GetMirror reports whether frames are flipped horizontally before detection.
func (c *Config) GetMirror() bool {
	if c.Mirror == nil {
		return true
	}
	return *c.Mirror
}

func (c *Config) GetShowWindow() bool {
	if c.ShowWindow == nil {
		return true
	}
	return *c.ShowWindow
}

func (c *Config) GetDBPath() string { return stringOr(c.DBPath, DefaultDBPath) }

func (c *Config) GetListenAddr() string { return stringOr(c.ListenAddr, DefaultListenAddr) }

// Overrides carries command-line values. Zero values leave the file's value
// in place.
type Overrides struct {
	SerialPort  string
	DBPath      string
	ListenAddr  string
	CameraIndex *int
	ModelPath   string
	NoWindow    bool
}

// SerialPortArg resolves the serial port from the -port flag or, when the
// flag is empty, the first positional argument.
func SerialPortArg(flagValue string, args []string) string {
	if flagValue != "" {
		return flagValue
	}
	if len(args) > 0 {
		return args[0]
	}
	return ""
}

// Apply copies every non-zero override into c.
func (c *Config) Apply(o Overrides) {
	if o.SerialPort != "" {
		c.SerialPort = ptrString(o.SerialPort)
	}
	if o.DBPath != "" {
		c.DBPath = ptrString(o.DBPath)
	}
	if o.ListenAddr != "" {
		c.ListenAddr = ptrString(o.ListenAddr)
	}
	if o.CameraIndex != nil {
		c.CameraIndex = ptrInt(*o.CameraIndex)
	}
	if o.ModelPath != "" {
		c.ModelPath = ptrString(o.ModelPath)
	}
	if o.NoWindow {
		c.ShowWindow = ptrBool(false)
	}
}
