// Package api serves the JSON status endpoints of the local debug server.
package api

import (
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/obstacle.alert/internal/alert"
	"github.com/banshee-data/obstacle.alert/internal/db"
	"github.com/banshee-data/obstacle.alert/internal/httputil"
	"github.com/banshee-data/obstacle.alert/internal/ranging"
	"github.com/banshee-data/obstacle.alert/internal/serialmux"
	"github.com/banshee-data/obstacle.alert/internal/telemetry"
	"github.com/banshee-data/obstacle.alert/internal/version"
)

// ANSI escape codes
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// SensorStatus is the read side of the range reader.
type SensorStatus interface {
	Latest() (ranging.Sample, bool)
	Enabled() bool
	Stats() ranging.Stats
}

// AlertStatus is the read side of the alert arbiter.
type AlertStatus interface {
	State() alert.State
	Stats() alert.Stats
	LastEvent() *alert.Event
	Cooldown() time.Duration
}

// UploadStatus is the read side of the telemetry throttle.
type UploadStatus interface {
	Stats() telemetry.Stats
}

// EventStore is the event log. *db.DB implements it.
type EventStore interface {
	RecentAlerts(limit int) ([]db.AlertRecord, error)
	RecentUploads(limit int) ([]db.UploadRecord, error)
	EventCounts() (db.EventCounts, error)
}

// Server exposes runtime status. uploads and events may be nil when
// telemetry or the event log are disabled.
type Server struct {
	m       serialmux.SerialMuxInterface
	sensor  SensorStatus
	alerts  AlertStatus
	uploads UploadStatus
	events  EventStore
	started time.Time
	runID   string
}

func NewServer(m serialmux.SerialMuxInterface, sensor SensorStatus, alerts AlertStatus, uploads UploadStatus, events EventStore, runID string) *Server {
	return &Server{
		m:       m,
		sensor:  sensor,
		alerts:  alerts,
		uploads: uploads,
		events:  events,
		started: time.Now(),
		runID:   runID,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// AttachRoutes registers the API handlers on mux.
func (s *Server) AttachRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/alerts", s.listAlerts)
	mux.HandleFunc("/api/uploads", s.listUploads)
	mux.HandleFunc("/command", s.sendCommandHandler)
}

// ServeMux returns a mux with only the API routes.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	s.AttachRoutes(mux)
	return mux
}

// SensorJSON is the sensor part of the status response.
type SensorJSON struct {
	Enabled   bool            `json:"enabled"`
	Available bool            `json:"available"`
	Latest    *ranging.Sample `json:"latest,omitempty"`
	Stats     ranging.Stats   `json:"stats"`
}

// AlertJSON is the arbiter part of the status response.
type AlertJSON struct {
	State      alert.State  `json:"state"`
	CooldownMS int64        `json:"cooldown_ms"`
	Stats      alert.Stats  `json:"stats"`
	Last       *alert.Event `json:"last,omitempty"`
}

// StatusJSON is the /api/status response body.
type StatusJSON struct {
	Version   version.Info     `json:"version"`
	RunID     string           `json:"run_id"`
	UptimeS   float64          `json:"uptime_s"`
	Sensor    SensorJSON       `json:"sensor"`
	Alerts    AlertJSON        `json:"alerts"`
	Telemetry *telemetry.Stats `json:"telemetry,omitempty"`
	Events    *db.EventCounts  `json:"events,omitempty"`
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	status := StatusJSON{
		Version: version.Get(),
		RunID:   s.runID,
		UptimeS: time.Since(s.started).Seconds(),
		Sensor: SensorJSON{
			Enabled: s.sensor.Enabled(),
			Stats:   s.sensor.Stats(),
		},
		Alerts: AlertJSON{
			State:      s.alerts.State(),
			CooldownMS: s.alerts.Cooldown().Milliseconds(),
			Stats:      s.alerts.Stats(),
			Last:       s.alerts.LastEvent(),
		},
	}
	if sample, ok := s.sensor.Latest(); ok {
		status.Sensor.Available = true
		status.Sensor.Latest = &sample
	}
	if s.uploads != nil {
		st := s.uploads.Stats()
		status.Telemetry = &st
	}
	if s.events != nil {
		counts, err := s.events.EventCounts()
		if err != nil {
			httputil.InternalServerError(w, "failed to count events: "+err.Error())
			return
		}
		status.Events = &counts
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}

func parseLimit(r *http.Request) (int, bool) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return db.DefaultRecentLimit, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 || n > 1000 {
		return 0, false
	}
	return n, true
}

func (s *Server) listAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.events == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "event log disabled")
		return
	}
	limit, ok := parseLimit(r)
	if !ok {
		httputil.WriteJSONError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
		return
	}
	alerts, err := s.events.RecentAlerts(limit)
	if err != nil {
		httputil.InternalServerError(w, "failed to read alerts: "+err.Error())
		return
	}
	if alerts == nil {
		alerts = []db.AlertRecord{}
	}
	httputil.WriteJSON(w, http.StatusOK, alerts)
}

func (s *Server) listUploads(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.events == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "event log disabled")
		return
	}
	limit, ok := parseLimit(r)
	if !ok {
		httputil.WriteJSONError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
		return
	}
	uploads, err := s.events.RecentUploads(limit)
	if err != nil {
		httputil.InternalServerError(w, "failed to read uploads: "+err.Error())
		return
	}
	if uploads == nil {
		uploads = []db.UploadRecord{}
	}
	httputil.WriteJSON(w, http.StatusOK, uploads)
}

func (s *Server) sendCommandHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	command := r.FormValue("command")
	if command == "" {
		http.Error(w, "command is required", http.StatusBadRequest)
		return
	}
	if err := s.m.SendCommand(command); err != nil {
		http.Error(w, "Failed to send command", http.StatusInternalServerError)
		return
	}
	io.WriteString(w, "Command sent successfully")
}
