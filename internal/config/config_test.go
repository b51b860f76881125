package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestEmptyConfig_Defaults(t *testing.T) {
	t.Setenv("THINGSPEAK_API_KEY", "")
	c := EmptyConfig()

	assert.Equal(t, "", c.GetSerialPort())
	assert.Equal(t, 115200, c.GetBaudRate())
	assert.Equal(t, 2*time.Second, c.GetSettleDelay())
	assert.Equal(t, 100*time.Millisecond, c.GetReadRetryDelay())
	assert.Equal(t, 3*time.Second, c.GetAlertCooldown())
	assert.Equal(t, 0.5, c.GetMinConfidence())
	assert.Equal(t, 100, c.GetNearDistanceCM())
	assert.Equal(t, []string{"person", "car", "truck", "bicycle"}, c.GetWatchList())
	assert.Equal(t, 150, c.GetSpeechRate())
	assert.Equal(t, "", c.GetSpeechEngine())
	assert.Equal(t, time.Second, c.GetUploadInterval())
	assert.Equal(t, 4*time.Second, c.GetUploadTimeout())
	assert.Equal(t, "https://api.thingspeak.com/update", c.GetThingSpeakURL())
	assert.Equal(t, "", c.GetThingSpeakAPIKey())
	assert.Equal(t, "field1", c.GetThingSpeakField())
	assert.Equal(t, 0, c.GetCameraIndex())
	assert.Equal(t, "yolov8n.onnx", c.GetModelPath())
	assert.Equal(t, 640, c.GetModelInputSize())
	assert.True(t, c.GetMirror())
	assert.True(t, c.GetShowWindow())
	assert.Equal(t, "obstacle.db", c.GetDBPath())
	assert.Equal(t, "127.0.0.1:8090", c.GetListenAddr())
}

func TestGetWatchList_ReturnsCopy(t *testing.T) {
	c := EmptyConfig()
	w := c.GetWatchList()
	w[0] = "dog"
	assert.Equal(t, "person", c.GetWatchList()[0])
}

func TestLoadConfig_Partial(t *testing.T) {
	path := writeConfig(t, "partial.json", `{
		"serial_port": "/dev/ttyUSB0",
		"alert_cooldown": "5s",
		"watch_list": ["dog"],
		"mirror": false
	}`)
	c, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyUSB0", c.GetSerialPort())
	assert.Equal(t, 5*time.Second, c.GetAlertCooldown())
	assert.Equal(t, []string{"dog"}, c.GetWatchList())
	assert.False(t, c.GetMirror())
	assert.Equal(t, time.Second, c.GetUploadInterval())
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		body    string
		wantErr string
	}{
		{"wrong extension", "c.yaml", `{}`, ".json extension"},
		{"bad json", "c.json", `{`, "failed to parse config JSON"},
		{"unknown field", "c.json", `{"cooldown": "3s"}`, "unknown field"},
		{"bad duration", "c.json", `{"alert_cooldown": "soon"}`, "invalid alert_cooldown"},
		{"negative duration", "c.json", `{"upload_interval": "-1s"}`, "upload_interval must be non-negative"},
		{"confidence range", "c.json", `{"min_confidence": 1.5}`, "min_confidence"},
		{"baud", "c.json", `{"baud_rate": 0}`, "baud_rate"},
		{"near distance", "c.json", `{"near_distance_cm": -1}`, "near_distance_cm"},
		{"speech rate", "c.json", `{"speech_rate": 0}`, "speech_rate"},
		{"camera index", "c.json", `{"camera_index": -2}`, "camera_index"},
		{"input size", "c.json", `{"model_input_size": 300}`, "model_input_size"},
		{"empty label", "c.json", `{"watch_list": ["car", ""]}`, "watch_list[1]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.file, tt.body)
			_, err := LoadConfig(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadConfig_TooLarge(t *testing.T) {
	body := `{"db_path": "` + strings.Repeat("a", 1024*1024) + `"}`
	_, err := LoadConfig(writeConfig(t, "big.json", body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestLoadConfig_ShippedDefaults(t *testing.T) {
	c, err := LoadConfig(filepath.Join("..", "..", DefaultConfigPath))
	require.NoError(t, err)

	empty := EmptyConfig()
	assert.Equal(t, empty.GetAlertCooldown(), c.GetAlertCooldown())
	assert.Equal(t, empty.GetUploadInterval(), c.GetUploadInterval())
	assert.Equal(t, empty.GetWatchList(), c.GetWatchList())
	assert.Equal(t, empty.GetListenAddr(), c.GetListenAddr())
	assert.Equal(t, empty.GetModelInputSize(), c.GetModelInputSize())
}

func TestGetThingSpeakAPIKey_EnvWins(t *testing.T) {
	c := EmptyConfig()
	c.ThingSpeakAPIKey = ptrString("from-file")

	t.Setenv("THINGSPEAK_API_KEY", "")
	assert.Equal(t, "from-file", c.GetThingSpeakAPIKey())

	t.Setenv("THINGSPEAK_API_KEY", "from-env")
	assert.Equal(t, "from-env", c.GetThingSpeakAPIKey())
}

func TestApply(t *testing.T) {
	c := EmptyConfig()
	c.SerialPort = ptrString("/dev/ttyUSB0")
	c.DBPath = ptrString("file.db")

	cam := 2
	c.Apply(Overrides{SerialPort: "/dev/ttyACM0", CameraIndex: &cam, NoWindow: true})

	assert.Equal(t, "/dev/ttyACM0", c.GetSerialPort())
	assert.Equal(t, "file.db", c.GetDBPath())
	assert.Equal(t, 2, c.GetCameraIndex())
	assert.False(t, c.GetShowWindow())
	assert.Equal(t, DefaultModelPath, c.GetModelPath())
}

func TestSerialPortArg(t *testing.T) {
	tests := []struct {
		name string
		flag string
		args []string
		want string
	}{
		{"flag only", "/dev/ttyUSB0", nil, "/dev/ttyUSB0"},
		{"positional only", "", []string{"/dev/ttyACM0"}, "/dev/ttyACM0"},
		{"flag wins over positional", "/dev/ttyUSB0", []string{"/dev/ttyACM0"}, "/dev/ttyUSB0"},
		{"extra positionals ignored", "", []string{"COM3", "extra"}, "COM3"},
		{"neither", "", nil, ""},
		{"empty args", "", []string{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SerialPortArg(tt.flag, tt.args))
		})
	}
}

func TestApply_PositionalPortFeedsConfig(t *testing.T) {
	c := EmptyConfig()
	c.Apply(Overrides{SerialPort: SerialPortArg("", []string{"/dev/ttyACM0"})})
	assert.Equal(t, "/dev/ttyACM0", c.GetSerialPort())

	c = EmptyConfig()
	c.Apply(Overrides{SerialPort: SerialPortArg("", nil)})
	assert.Equal(t, "", c.GetSerialPort())
}
