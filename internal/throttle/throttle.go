package throttle

import (
	"time"

	"backend-safetrack/internal/geolocation"
	"backend-safetrack/internal/shared/geo"
)

const (
	DefaultInterval  = 10 * time.Second
	DefaultDistanceM = 20.0
)

// Policy decides whether a sample is significant enough to persist and broadcast.
type Policy struct {
	Interval  time.Duration
	DistanceM float64
}

func New(interval time.Duration, distanceM float64) Policy {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if distanceM <= 0 {
		distanceM = DefaultDistanceM
	}
	return Policy{Interval: interval, DistanceM: distanceM}
}

// ShouldPersist reports whether next must be persisted given the last persisted
// sample and the wall time it was persisted at.
func (p Policy) ShouldPersist(last geolocation.Sample, lastAt time.Time, next geolocation.Sample, now time.Time) bool {
	if now.Sub(lastAt) > p.Interval {
		return true
	}
	return geo.HaversineM(last.Latitude, last.Longitude, next.Latitude, next.Longitude) > p.DistanceM
}
