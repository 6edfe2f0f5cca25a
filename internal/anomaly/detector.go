package anomaly

import (
	"math"
	"sync"
	"time"

	"backend-safetrack/internal/geolocation"
	"backend-safetrack/internal/shared/geo"
)

const (
	DefaultThresholdMps = 6.0
	DefaultWarmup       = 10 * time.Second
)

// Observation is the outcome of feeding one sample to the detector.
type Observation struct {
	Evaluated bool
	SpeedMps  float64
	Anomalous bool
}

// Detector flags implied speeds above a threshold between consecutive samples.
// It is safe for concurrent use; state updates are serialized.
type Detector struct {
	threshold float64
	warmup    time.Duration
	now       func() time.Time

	mu        sync.Mutex
	last      *geolocation.Sample
	startedAt time.Time
}

func NewDetector(thresholdMps float64, warmup time.Duration) *Detector {
	if thresholdMps <= 0 {
		thresholdMps = DefaultThresholdMps
	}
	return &Detector{
		threshold: thresholdMps,
		warmup:    warmup,
		now:       time.Now,
	}
}

// Reset restarts the warm-up window and seeds the last-sample memory (seed may be nil).
func (d *Detector) Reset(seed *geolocation.Sample) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.startedAt = d.now()
	if seed != nil {
		s := *seed
		d.last = &s
	} else {
		d.last = nil
	}
}

func (d *Detector) Last() (geolocation.Sample, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.last == nil {
		return geolocation.Sample{}, false
	}
	return *d.last, true
}

// Observe evaluates s against the previous sample. force bypasses the warm-up window.
func (d *Detector) Observe(s geolocation.Sample, force bool) Observation {
	d.mu.Lock()
	defer d.mu.Unlock()

	prev := d.last
	d.last = &s

	if prev == nil {
		return Observation{}
	}
	if !force && d.now().Sub(d.startedAt) < d.warmup {
		return Observation{}
	}

	elapsed := s.Timestamp.Sub(prev.Timestamp).Seconds()
	if elapsed <= 0 {
		return Observation{}
	}

	speed := geo.SphericalCosineM(prev.Latitude, prev.Longitude, s.Latitude, s.Longitude) / elapsed
	return Observation{
		Evaluated: true,
		SpeedMps:  speed,
		Anomalous: speed > d.threshold,
	}
}

// ImpliedSpeed returns the haversine distance between a and b over the absolute
// time between them. ok is false when both share a timestamp.
func ImpliedSpeed(a, b geolocation.Sample) (speed float64, ok bool) {
	elapsed := math.Abs(b.Timestamp.Sub(a.Timestamp).Seconds())
	if elapsed == 0 {
		return 0, false
	}
	return geo.HaversineM(a.Latitude, a.Longitude, b.Latitude, b.Longitude) / elapsed, true
}
