package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"backend-safetrack/internal/geolocation"
	"backend-safetrack/internal/store"
)

const (
	fieldStatus          = "status"
	fieldSilentMode      = "silent_mode"
	fieldLiveLocation    = "live_location"
	fieldHeartbeat       = "heartbeat"
	fieldAnomalyDetected = "anomaly_detected"
	fieldSpeedDetected   = "speed_detected"
	fieldEndTime         = "end_time"
	fieldLastEvent       = "last_event_timestamp"
	fieldSafetyConfirmed = "user_safety_confirmation"
)

var ErrSessionNotFound = errors.New("session not found")

// Repository maps sessions onto store paths.
type Repository struct {
	store store.Store
}

func NewRepository(st store.Store) *Repository {
	return &Repository{store: st}
}

func sessionPath(id string) string      { return "sessions/" + id }
func samplesPath(id string) string      { return "sessions/" + id + "/path" }
func indexPath(ownerID string) string   { return "users/" + ownerID + "/sessions" }
func pointerPath(ownerID string) string { return "users/" + ownerID + "/active_session" }

func (r *Repository) Create(ctx context.Context, s Session) error {
	if err := r.store.Set(ctx, sessionPath(s.ID), s); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	if err := r.store.Push(ctx, indexPath(s.OwnerID), s.ID); err != nil {
		return fmt.Errorf("index session: %w", err)
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id string) (Session, error) {
	var s Session
	err := r.store.Get(ctx, sessionPath(id), &s)
	if errors.Is(err, store.ErrNotFound) {
		return Session{}, ErrSessionNotFound
	}
	return s, err
}

func (r *Repository) Update(ctx context.Context, id string, fields map[string]any) error {
	err := r.store.Update(ctx, sessionPath(id), fields)
	if errors.Is(err, store.ErrNotFound) {
		return ErrSessionNotFound
	}
	return err
}

// RecordSample appends to the path and moves the live location and heartbeat in
// one write.
func (r *Repository) RecordSample(ctx context.Context, id string, s geolocation.Sample, now time.Time) error {
	err := r.store.PushAndUpdate(ctx, samplesPath(id), s, sessionPath(id), map[string]any{
		fieldLiveLocation: s,
		fieldHeartbeat:    now,
	})
	if errors.Is(err, store.ErrNotFound) {
		return ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("record sample: %w", err)
	}
	return nil
}

func (r *Repository) Path(ctx context.Context, id string) ([]geolocation.Sample, error) {
	raw, err := r.store.List(ctx, samplesPath(id))
	if err != nil {
		return nil, err
	}
	out := make([]geolocation.Sample, 0, len(raw))
	for _, item := range raw {
		var s geolocation.Sample
		if err := json.Unmarshal(item, &s); err != nil {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// Resumable lists the owner's active or connection_lost sessions in index order.
func (r *Repository) Resumable(ctx context.Context, ownerID string) ([]Session, error) {
	raw, err := r.store.List(ctx, indexPath(ownerID))
	if err != nil {
		return nil, err
	}

	var out []Session
	for _, item := range raw {
		var id string
		if err := json.Unmarshal(item, &id); err != nil {
			continue
		}
		s, err := r.Get(ctx, id)
		if errors.Is(err, ErrSessionNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if s.OwnerID == ownerID && s.Status.Resumable() {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *Repository) ActivePointer(ctx context.Context, ownerID string) (string, error) {
	return r.store.GetString(ctx, pointerPath(ownerID))
}

// ClaimPointer moves the owner's active-session pointer from old to id.
func (r *Repository) ClaimPointer(ctx context.Context, ownerID, old, id string) (bool, error) {
	return r.store.CompareAndSwap(ctx, pointerPath(ownerID), old, id)
}

func (r *Repository) ReleasePointer(ctx context.Context, ownerID, id string) error {
	_, err := r.store.CompareAndSwap(ctx, pointerPath(ownerID), id, "")
	return err
}
