package tracking

import (
	"context"
	"fmt"

	"backend-safetrack/internal/checkin"
	"backend-safetrack/internal/geolocation"
	"backend-safetrack/internal/metrics"
)

// ConfirmSafe is the "yes" answer to the safety prompt.
func (t *Tracker) ConfirmSafe(ctx context.Context) error {
	rs, ok := t.current()
	if !ok {
		return ErrNoActiveSession
	}
	t.scheduler.Dismiss()
	metrics.CheckResults.WithLabelValues("safe").Inc()

	now := t.now()
	err := t.deps.Repo.Update(ctx, rs.session.ID, map[string]any{
		fieldSafetyConfirmed: now,
		fieldLastEvent:       now,
	})
	if err != nil {
		t.writeFailed(rs.session.ID, "confirm_safe", err)
		return fmt.Errorf("confirm safe: %w", err)
	}
	return nil
}

// Panic is the "no" answer. The owner's device sees nothing; only viewers and the store do.
func (t *Tracker) Panic(ctx context.Context) error {
	t.lifecycle.Lock()
	defer t.lifecycle.Unlock()

	t.mu.Lock()
	rs := t.run
	if rs == nil {
		t.mu.Unlock()
		return ErrNoActiveSession
	}
	if rs.panic {
		t.mu.Unlock()
		return nil
	}
	rs.panic = true
	id := rs.session.ID
	t.mu.Unlock()

	t.scheduler.Stop()
	metrics.CheckResults.WithLabelValues("panic").Inc()

	now := t.now()
	err := t.deps.Repo.Update(ctx, id, map[string]any{
		fieldStatus:     StatusPanic,
		fieldSilentMode: true,
		fieldLastEvent:  now,
	})
	if err != nil {
		t.writeFailed(id, "panic", err)
		t.mu.Lock()
		rs.panic = false
		t.mu.Unlock()
		t.scheduler.Start()
		return fmt.Errorf("trigger panic: %w", err)
	}

	t.mu.Lock()
	rs.session.Status = StatusPanic
	rs.session.SilentMode = true
	t.mu.Unlock()

	metrics.PanicsTotal.Inc()
	t.logger(id).Warn("silent panic triggered")
	t.broadcast(ViewerUpdate{Type: "status", SessionID: id, Status: StatusPanic, At: now})
	return nil
}

// CancelPanic returns the session to active and restarts the prompt cycle from a fresh interval.
func (t *Tracker) CancelPanic(ctx context.Context) error {
	t.lifecycle.Lock()
	defer t.lifecycle.Unlock()

	t.mu.Lock()
	rs := t.run
	if rs == nil {
		t.mu.Unlock()
		return ErrNoActiveSession
	}
	if !rs.panic {
		t.mu.Unlock()
		return nil
	}
	rs.panic = false
	id := rs.session.ID
	t.mu.Unlock()

	now := t.now()
	err := t.deps.Repo.Update(ctx, id, map[string]any{
		fieldStatus:          StatusActive,
		fieldSilentMode:      false,
		fieldAnomalyDetected: false,
		fieldSpeedDetected:   0,
		fieldLastEvent:       now,
	})
	if err != nil {
		t.writeFailed(id, "cancel_panic", err)
		t.mu.Lock()
		rs.panic = true
		t.mu.Unlock()
		return fmt.Errorf("cancel panic: %w", err)
	}

	t.mu.Lock()
	rs.session.Status = StatusActive
	rs.session.SilentMode = false
	t.mu.Unlock()

	t.scheduler.Start()
	t.emit(Event{Type: EventPanicCancelled, SessionID: id})
	t.broadcast(ViewerUpdate{Type: "status", SessionID: id, Status: StatusActive, At: now})
	return nil
}

// RequestCheck asks whoever watches the session to confirm the owner is safe.
func (t *Tracker) RequestCheck(ctx context.Context) (checkin.Request, error) {
	rs, ok := t.current()
	if !ok {
		return checkin.Request{}, ErrNoActiveSession
	}
	if t.deps.Checkins == nil {
		return checkin.Request{}, fmt.Errorf("%w: check-ins are not configured", checkin.ErrHandshakeWrite)
	}
	req, err := t.deps.Checkins.Request(ctx, rs.session.ID)
	if err != nil {
		t.writeFailed(rs.session.ID, "check_request", err)
		return checkin.Request{}, err
	}
	t.emit(Event{Type: EventCheckRequested, SessionID: rs.session.ID, Data: req})
	return req, nil
}

func (t *Tracker) watchChecks(ctx context.Context, rs *run) {
	defer rs.loops.Done()
	id := rs.session.ID
	err := t.deps.Checkins.Watch(ctx, id, func(req checkin.Request) {
		if !t.isCurrent(rs) {
			return
		}
		switch req.Status {
		case checkin.StatusOK:
			metrics.CheckResults.WithLabelValues("contact_ok").Inc()
			t.emit(Event{Type: EventCheckOK, SessionID: id, Message: "Your contact confirmed you are safe.", Data: req})
		case checkin.StatusDanger:
			metrics.CheckResults.WithLabelValues("contact_danger").Inc()
			t.logger(id).Warn("contact reported danger")
			t.emit(Event{Type: EventCheckDanger, SessionID: id, Message: "Your contact reported danger. Get to safety.", Data: req})
		}
	})
	if err != nil && ctx.Err() == nil {
		t.logger(id).WithError(err).Error("check request watcher stopped")
	}
}

// SimulateAnomaly fabricates a far away sample stamped now and runs forced detection on it.
// It returns the speed that was recorded.
func (t *Tracker) SimulateAnomaly(ctx context.Context) (float64, error) {
	rs, ok := t.current()
	if !ok {
		return 0, ErrNoActiveSession
	}
	last, ok := t.detector.Last()
	if !ok {
		return 0, ErrNoSample
	}

	speed := 100.0
	fake := geolocation.Sample{
		Latitude:  last.Latitude + 0.005,
		Longitude: last.Longitude + 0.005,
		Accuracy:  last.Accuracy,
		Speed:     &speed,
		Timestamp: t.now(),
	}
	// A stale last sample yields a low implied speed; the reported speed stands in then.
	obs := t.detector.Observe(fake, true)
	recorded := speed
	if obs.Anomalous {
		recorded = obs.SpeedMps
	}
	if err := t.recordAnomaly(ctx, rs.session.ID, recorded); err != nil {
		return 0, err
	}
	return recorded, nil
}

// ClearAnomaly resets the anomaly flags. Detection never clears them on its own.
func (t *Tracker) ClearAnomaly(ctx context.Context) error {
	rs, ok := t.current()
	if !ok {
		return ErrNoActiveSession
	}
	err := t.deps.Repo.Update(ctx, rs.session.ID, map[string]any{
		fieldAnomalyDetected: false,
		fieldSpeedDetected:   0,
		fieldLastEvent:       t.now(),
	})
	if err != nil {
		t.writeFailed(rs.session.ID, "clear_anomaly", err)
		return fmt.Errorf("clear anomaly: %w", err)
	}
	return nil
}

// SetBusy records whether the owner's device has another modal open.
func (t *Tracker) SetBusy(busy bool) {
	if p, ok := t.deps.Prompter.(*DevicePrompter); ok {
		p.SetBusy(busy)
	}
}
