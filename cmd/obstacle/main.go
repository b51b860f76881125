// Command obstacle is the single sensor obstacle alert system: it reads the
// ESP32 ultrasonic range sensor over serial, runs YOLO object detection on a
// webcam and speaks throttled alerts.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/obstacle.alert/internal/alert"
	"github.com/banshee-data/obstacle.alert/internal/api"
	"github.com/banshee-data/obstacle.alert/internal/camera"
	"github.com/banshee-data/obstacle.alert/internal/config"
	"github.com/banshee-data/obstacle.alert/internal/db"
	"github.com/banshee-data/obstacle.alert/internal/httputil"
	"github.com/banshee-data/obstacle.alert/internal/monitoring"
	"github.com/banshee-data/obstacle.alert/internal/pipeline"
	"github.com/banshee-data/obstacle.alert/internal/ranging"
	"github.com/banshee-data/obstacle.alert/internal/serialmux"
	"github.com/banshee-data/obstacle.alert/internal/speech"
	"github.com/banshee-data/obstacle.alert/internal/telemetry"
	"github.com/banshee-data/obstacle.alert/internal/version"
)

const startupAnnouncement = "Single sensor obstacle alert system activated"

var (
	port             = flag.String("port", "", "Serial port of the ESP32 range sensor (first positional argument also accepted)")
	configPath       = flag.String("config", "", "Path to a JSON config file")
	dbPath           = flag.String("db-path", "", "Path to the sqlite event log")
	listen           = flag.String("listen", "", "Debug HTTP listen address (empty uses the config value)")
	cameraIndex      = flag.Int("camera", -1, "Video device index (-1 uses the config value)")
	modelPath        = flag.String("model", "", "Path to the YOLOv8 ONNX model")
	fixture          = flag.String("fixture", "", "Replay serial lines from this file instead of opening a port")
	disableSensor    = flag.Bool("disable-sensor", false, "Run in camera-only mode")
	disableTelemetry = flag.Bool("disable-telemetry", false, "Do not upload readings to ThingSpeak")
	disableDB        = flag.Bool("disable-db", false, "Do not record events to sqlite")
	headless         = flag.Bool("headless", false, "Do not open the overlay window")
	verbose          = flag.Bool("verbose", false, "Log every serial line and detection")
	showVersion      = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	monitoring.SetVerbose(*verbose)

	if err := run(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

// run wires every component and blocks until the frame loop stops. Deferred
// releases run in reverse order: window, detector, camera, serial link,
// event log.
func run() error {
	cfg := config.EmptyConfig()
	if *configPath != "" {
		loaded, err := config.LoadConfig(*configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}
	overrides := config.Overrides{
		SerialPort: config.SerialPortArg(*port, flag.Args()),
		DBPath:     *dbPath,
		ListenAddr: *listen,
		ModelPath:  *modelPath,
		NoWindow:   *headless,
	}
	if *cameraIndex >= 0 {
		overrides.CameraIndex = cameraIndex
	}
	cfg.Apply(overrides)

	runID := uuid.NewString()
	log.Printf("=== Single Sensor Obstacle Alert System === %s run=%s", version.String(), runID)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Event log
	var events *db.DB
	if !*disableDB {
		var err error
		events, err = db.NewDB(cfg.GetDBPath())
		if err != nil {
			return fmt.Errorf("failed to open event log: %w", err)
		}
		defer events.Close()
	}

	// Telemetry
	var throttle *telemetry.Throttle
	if !*disableTelemetry {
		throttle = newThrottle(cfg, events)
	}

	// Range sensor
	sensorOpts := []ranging.Option{ranging.WithRetryDelay(cfg.GetReadRetryDelay())}
	if throttle != nil {
		sensorOpts = append(sensorOpts, ranging.WithUploader(throttle))
	}
	sensorMux, reader, err := ranging.Open(ranging.Setup{
		Disabled:    *disableSensor,
		FixturePath: *fixture,
		Port:        cfg.GetSerialPort(),
		PortOptions: serialmux.PortOptions{
			BaudRate:    cfg.GetBaudRate(),
			SettleDelay: cfg.GetSettleDelay(),
		},
		Options: sensorOpts,
	})
	if err != nil {
		return err
	}
	defer sensorMux.Close()

	// Speech and alerting
	var speaker alert.Speaker
	cmdSpeaker, err := speech.NewCommandSpeaker(cfg.GetSpeechEngine(), cfg.GetSpeechRate())
	if err != nil {
		log.Printf("⚠️ speech unavailable, alerts will be logged only: %v", err)
		speaker = speech.LogSpeaker{}
	} else {
		speaker = cmdSpeaker
	}

	arbiterOpts := []alert.Option{
		alert.WithCooldown(cfg.GetAlertCooldown()),
		alert.WithMinConfidence(cfg.GetMinConfidence()),
		alert.WithNearDistance(cfg.GetNearDistanceCM()),
		alert.WithWatchList(cfg.GetWatchList()),
	}
	if events != nil {
		arbiterOpts = append(arbiterOpts, alert.WithRecorder(events))
	}
	arbiter := alert.NewArbiter(speaker, arbiterOpts...)

	// Camera, detector and window
	capture, err := camera.OpenCapture(cfg.GetCameraIndex(), cfg.GetMirror())
	if err != nil {
		return fmt.Errorf("could not open camera: %w", err)
	}
	defer capture.Close()

	var detector pipeline.Detector[*camera.Frame]
	yoloCfg := camera.DefaultYOLOConfig()
	yoloCfg.ModelPath = cfg.GetModelPath()
	yoloCfg.InputSize = cfg.GetModelInputSize()
	yolo, err := camera.NewYOLO(yoloCfg)
	if err != nil {
		log.Printf("⚠️ object detection disabled: %v", err)
	} else {
		defer yolo.Close()
		detector = yolo
		log.Printf("✅ YOLO model loaded from %s", yoloCfg.ModelPath)
	}

	loopOpts := []pipeline.Option[*camera.Frame]{
		pipeline.WithMinConfidence[*camera.Frame](cfg.GetMinConfidence()),
	}
	if cfg.GetShowWindow() {
		window := camera.NewWindow(camera.DefaultWindowTitle)
		defer window.Close()
		loopOpts = append(loopOpts, pipeline.WithRenderer[*camera.Frame](window))
	}
	loop := pipeline.New[*camera.Frame](capture, detector, reader, arbiter, loopOpts...)

	var wg sync.WaitGroup

	// ranging goroutine: owns the serial subscription and the throttle
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := reader.Run(ctx); err != nil {
			log.Printf("range reader stopped: %v", err)
		}
		log.Print("range reader routine terminated")
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		var uploads api.UploadStatus
		var store api.EventStore
		if throttle != nil {
			uploads = throttle
		}
		mux := http.NewServeMux()
		if events != nil {
			store = events
			if err := events.AttachAdminRoutes(mux); err != nil {
				log.Printf("failed to attach event log routes: %v", err)
			}
		}
		api.NewServer(sensorMux, reader, arbiter, uploads, store, runID).AttachRoutes(mux)
		sensorMux.AttachAdminRoutes(mux)

		server := &http.Server{
			Addr:    cfg.GetListenAddr(),
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("failed to start server: %v", err)
			}
		}()
		log.Printf("debug server listening on http://%s/debug/", cfg.GetListenAddr())

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}
		log.Printf("HTTP server routine stopped")
	}()

	if err := speaker.Speak(ctx, startupAnnouncement); err != nil {
		log.Printf("startup announcement failed: %v", err)
	}

	// The frame loop runs on the main goroutine: OpenCV windows must be
	// driven from the thread that created them.
	runErr := loop.Run(ctx)
	log.Println("Shutting down...")
	stop()
	wg.Wait()

	log.Printf("System shut down successfully! frames=%d", loop.Frames())
	return runErr
}

func newThrottle(cfg *config.Config, events *db.DB) *telemetry.Throttle {
	client := httputil.NewStandardClient(cfg.GetUploadTimeout())
	sink, err := telemetry.NewThingSpeak(client, cfg.GetThingSpeakAPIKey(),
		telemetry.WithBaseURL(cfg.GetThingSpeakURL()),
		telemetry.WithField(cfg.GetThingSpeakField()),
		telemetry.WithTimeout(cfg.GetUploadTimeout()),
	)
	if err != nil {
		log.Printf("⚠️ telemetry disabled: %v", err)
		return nil
	}
	throttle := telemetry.NewThrottle(sink, cfg.GetUploadInterval())
	if events != nil {
		throttle.SetRecorder(events)
	}
	return throttle
}
