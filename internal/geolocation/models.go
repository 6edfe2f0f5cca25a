package geolocation

import (
	"errors"
	"time"
)

var (
	ErrPositionUnavailable = errors.New("position unavailable")
	ErrPermissionDenied    = errors.New("location permission denied")
	ErrTimeout             = errors.New("location fix timed out")
)

// Sample is one recorded position. It is never mutated after being recorded.
type Sample struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy"`
	Heading   *float64  `json:"heading,omitempty"`
	Speed     *float64  `json:"speed,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Reading is what a device reports. Timestamp is optional and stamped on receipt when zero.
type Reading struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy"`
	Heading   *float64  `json:"heading,omitempty"`
	Speed     *float64  `json:"speed,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
	// Error carries a device-side failure ("denied", "unavailable", "timeout").
	Error string `json:"error,omitempty"`
}

func (r Reading) Sample(now time.Time) Sample {
	ts := r.Timestamp
	if ts.IsZero() {
		ts = now
	}
	return Sample{
		Latitude:  r.Latitude,
		Longitude: r.Longitude,
		Accuracy:  r.Accuracy,
		Heading:   r.Heading,
		Speed:     r.Speed,
		Timestamp: ts,
	}
}

func (r Reading) Err() error {
	switch r.Error {
	case "":
		return nil
	case "denied", "permission_denied":
		return ErrPermissionDenied
	case "timeout":
		return ErrTimeout
	default:
		return ErrPositionUnavailable
	}
}
