package archive

import (
	"time"

	"backend-safetrack/internal/geolocation"
)

// Trip is a finished session together with its recorded path.
type Trip struct {
	SessionID       string
	OwnerID         string
	Status          string
	StartedAt       time.Time
	EndedAt         time.Time
	AnomalyDetected bool
	Points          []geolocation.Sample
}

type Point struct {
	Seq        int       `json:"seq"`
	SessionID  string    `json:"session_id"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	AccuracyM  float64   `json:"accuracy_m"`
	RecordedAt time.Time `json:"recorded_at"`
	SpeedMps   float64   `json:"speed_mps"`
}

type Summary struct {
	SessionID       string  `json:"session_id"`
	Status          string  `json:"status"`
	PointCount      int     `json:"point_count"`
	DistanceM       float64 `json:"distance_m"`
	DurationSec     int64   `json:"duration_sec"`
	AverageSpeedM   float64 `json:"average_speed_mps"`
	AnomalyDetected bool    `json:"anomaly_detected"`
}
