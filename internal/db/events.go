package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/banshee-data/obstacle.alert/internal/alert"
	"github.com/banshee-data/obstacle.alert/internal/telemetry"
)

// DefaultRecentLimit caps the Recent* queries when no limit is given.
const DefaultRecentLimit = 100

// RecordAlert stores a spoken alert. It implements alert.Recorder.
func (db *DB) RecordAlert(ev alert.Event) error {
	var distance sql.NullInt64
	if ev.HasDistance {
		distance = sql.NullInt64{Int64: int64(ev.DistanceCM), Valid: true}
	}
	_, err := db.Exec(
		`INSERT INTO alert_events (
			alert_id, ts_unix_nanos, origin, level, label, zone, confidence,
			distance_cm, text, speech_error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID.String(), ev.Time.UnixNano(), string(ev.Origin), ev.Level.String(),
		nullString(ev.Label), nullString(ev.Zone), ev.Confidence,
		distance, ev.Text, nullString(ev.SpeechErr),
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert event: %w", err)
	}
	return nil
}

// AlertRecord is a stored alert.
type AlertRecord struct {
	ID          string    `json:"id"`
	Time        time.Time `json:"time"`
	Origin      string    `json:"origin"`
	Level       string    `json:"level"`
	Label       string    `json:"label,omitempty"`
	Zone        string    `json:"zone,omitempty"`
	Confidence  float64   `json:"confidence,omitempty"`
	DistanceCM  *int      `json:"distance_cm,omitempty"`
	Text        string    `json:"text"`
	SpeechError string    `json:"speech_error,omitempty"`
}

// RecentAlerts returns up to limit alerts, newest first.
func (db *DB) RecentAlerts(limit int) ([]AlertRecord, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	rows, err := db.Query(
		`SELECT alert_id, ts_unix_nanos, origin, level, label, zone, confidence,
			distance_cm, text, speech_error
		FROM alert_events ORDER BY ts_unix_nanos DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []AlertRecord
	for rows.Next() {
		var (
			rec                      AlertRecord
			tsNanos                  int64
			label, zone, speechError sql.NullString
			confidence               sql.NullFloat64
			distance                 sql.NullInt64
		)
		if err := rows.Scan(
			&rec.ID, &tsNanos, &rec.Origin, &rec.Level, &label, &zone, &confidence,
			&distance, &rec.Text, &speechError,
		); err != nil {
			return nil, err
		}
		rec.Time = time.Unix(0, tsNanos).UTC()
		rec.Label = label.String
		rec.Zone = zone.String
		rec.Confidence = confidence.Float64
		rec.SpeechError = speechError.String
		if distance.Valid {
			d := int(distance.Int64)
			rec.DistanceCM = &d
		}
		alerts = append(alerts, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return alerts, nil
}

// RecordUpload stores a telemetry upload attempt. It implements
// telemetry.Recorder.
func (db *DB) RecordUpload(ev telemetry.UploadEvent) error {
	var errText sql.NullString
	if ev.Err != nil {
		errText = sql.NullString{String: ev.Err.Error(), Valid: true}
	}
	_, err := db.Exec(
		`INSERT INTO telemetry_uploads (upload_id, ts_unix_nanos, distance_cm, succeeded, error)
		VALUES (?, ?, ?, ?, ?)`,
		ev.ID, ev.Time.UnixNano(), ev.DistanceCM, ev.Err == nil, errText,
	)
	if err != nil {
		return fmt.Errorf("failed to insert telemetry upload: %w", err)
	}
	return nil
}

// UploadRecord is a stored telemetry upload attempt.
type UploadRecord struct {
	ID         string    `json:"id"`
	Time       time.Time `json:"time"`
	DistanceCM int       `json:"distance_cm"`
	Succeeded  bool      `json:"succeeded"`
	Error      string    `json:"error,omitempty"`
}

// RecentUploads returns up to limit upload attempts, newest first.
func (db *DB) RecentUploads(limit int) ([]UploadRecord, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	rows, err := db.Query(
		`SELECT upload_id, ts_unix_nanos, distance_cm, succeeded, error
		FROM telemetry_uploads ORDER BY ts_unix_nanos DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var uploads []UploadRecord
	for rows.Next() {
		var (
			rec     UploadRecord
			tsNanos int64
			errText sql.NullString
		)
		if err := rows.Scan(&rec.ID, &tsNanos, &rec.DistanceCM, &rec.Succeeded, &errText); err != nil {
			return nil, err
		}
		rec.Time = time.Unix(0, tsNanos).UTC()
		rec.Error = errText.String
		uploads = append(uploads, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return uploads, nil
}

// EventCounts is the number of rows in each event table.
type EventCounts struct {
	Alerts        int `json:"alerts"`
	Uploads       int `json:"uploads"`
	FailedUploads int `json:"failed_uploads"`
}

func (db *DB) EventCounts() (EventCounts, error) {
	var c EventCounts
	if err := db.QueryRow(`SELECT COUNT(*) FROM alert_events`).Scan(&c.Alerts); err != nil {
		return c, err
	}
	err := db.QueryRow(
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN succeeded = 0 THEN 1 ELSE 0 END), 0)
		FROM telemetry_uploads`).Scan(&c.Uploads, &c.FailedUploads)
	return c, err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
