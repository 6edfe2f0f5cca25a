package archive

import (
	"context"
	"fmt"
	"time"

	"backend-safetrack/internal/db"
	"backend-safetrack/internal/geolocation"
	"backend-safetrack/internal/shared/geo"
)

var schema = []string{
	`CREATE EXTENSION IF NOT EXISTS postgis`,
	`CREATE TABLE IF NOT EXISTS trip_sessions (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		ended_at TIMESTAMPTZ NOT NULL,
		total_distance_m DOUBLE PRECISION,
		anomaly_detected BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS trip_points (
		session_id TEXT NOT NULL REFERENCES trip_sessions(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		location GEOGRAPHY(POINT, 4326) NOT NULL,
		accuracy_m DOUBLE PRECISION,
		recorded_at TIMESTAMPTZ NOT NULL,
		speed_mps DOUBLE PRECISION,
		PRIMARY KEY (session_id, seq)
	)`,
}

type Service struct {
	db db.Querier
}

func NewService(db db.Querier) *Service {
	return &Service{db: db}
}

func (s *Service) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// PathDistanceM sums the haversine legs of a path.
func PathDistanceM(points []geolocation.Sample) float64 {
	total := 0.0
	for i := 1; i < len(points); i++ {
		a, b := points[i-1], points[i]
		total += geo.HaversineM(a.Latitude, a.Longitude, b.Latitude, b.Longitude)
	}
	return total
}

// Archive upserts the trip row and inserts its points. Re-archiving a trip is harmless.
func (s *Service) Archive(ctx context.Context, trip Trip) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO trip_sessions (id, owner_id, status, started_at, ended_at, total_distance_m, anomaly_detected)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO UPDATE
		SET status=EXCLUDED.status,
		    ended_at=EXCLUDED.ended_at,
		    total_distance_m=EXCLUDED.total_distance_m,
		    anomaly_detected=EXCLUDED.anomaly_detected
	`, trip.SessionID, trip.OwnerID, trip.Status, trip.StartedAt, trip.EndedAt, PathDistanceM(trip.Points), trip.AnomalyDetected)
	if err != nil {
		return fmt.Errorf("archive trip %s: %w", trip.SessionID, err)
	}

	for i, p := range trip.Points {
		speed := 0.0
		if p.Speed != nil {
			speed = *p.Speed
		}
		_, err := s.db.Exec(ctx, `
			INSERT INTO trip_points (session_id, seq, location, accuracy_m, recorded_at, speed_mps)
			VALUES ($1, $2, ST_SetSRID(ST_MakePoint($3,$4), 4326)::geography, $5, $6, $7)
			ON CONFLICT (session_id, seq) DO NOTHING
		`, trip.SessionID, i, p.Longitude, p.Latitude, p.Accuracy, p.Timestamp, speed)
		if err != nil {
			return fmt.Errorf("archive point %d of %s: %w", i, trip.SessionID, err)
		}
	}
	return nil
}

func (s *Service) Summary(ctx context.Context, sessionID string) (Summary, error) {
	var (
		summary   Summary
		startedAt time.Time
		endedAt   time.Time
	)
	row := s.db.QueryRow(ctx, `
		SELECT id, status, started_at, ended_at, COALESCE(total_distance_m,0), anomaly_detected
		FROM trip_sessions WHERE id=$1
	`, sessionID)
	if err := row.Scan(&summary.SessionID, &summary.Status, &startedAt, &endedAt, &summary.DistanceM, &summary.AnomalyDetected); err != nil {
		return Summary{}, err
	}

	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM trip_points WHERE session_id=$1`, sessionID).Scan(&summary.PointCount); err != nil {
		return Summary{}, err
	}

	duration := endedAt.Sub(startedAt)
	if duration.Seconds() > 0 {
		summary.AverageSpeedM = summary.DistanceM / duration.Seconds()
	}
	summary.DurationSec = int64(duration.Seconds())
	return summary, nil
}

func (s *Service) Points(ctx context.Context, sessionID string) ([]Point, error) {
	rows, err := s.db.Query(ctx, `
		SELECT seq, session_id, ST_Y(location::geometry), ST_X(location::geometry), COALESCE(accuracy_m,0), recorded_at, COALESCE(speed_mps,0)
		FROM trip_points WHERE session_id=$1
		ORDER BY seq
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	points := []Point{}
	for rows.Next() {
		var p Point
		if err := rows.Scan(&p.Seq, &p.SessionID, &p.Lat, &p.Lng, &p.AccuracyM, &p.RecordedAt, &p.SpeedMps); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}
