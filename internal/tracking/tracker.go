package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"backend-safetrack/internal/anomaly"
	"backend-safetrack/internal/archive"
	"backend-safetrack/internal/checkin"
	"backend-safetrack/internal/geolocation"
	"backend-safetrack/internal/link"
	"backend-safetrack/internal/metrics"
	"backend-safetrack/internal/notify"
	"backend-safetrack/internal/safety"
	"backend-safetrack/internal/throttle"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type ContactNotifier interface {
	Notify(ctx context.Context, ownerID, trackingURL string) (notify.Result, error)
}

type Archiver interface {
	Archive(ctx context.Context, trip archive.Trip) error
}

type Settings struct {
	BaseURL             string
	AnomalyThresholdMps float64
	// Warmup suppresses anomaly detection right after a start or resume. Zero means
	// anomaly.DefaultWarmup, a negative value disables it.
	Warmup            time.Duration
	Throttle          throttle.Policy
	CheckVisible      time.Duration
	CheckInterval     time.Duration
	InitialFixTimeout time.Duration
	FixStaleTimeout   time.Duration
	TeardownTimeout   time.Duration
	NotifyTimeout     time.Duration
}

func (s Settings) withDefaults() Settings {
	if s.Throttle.Interval <= 0 || s.Throttle.DistanceM <= 0 {
		s.Throttle = throttle.New(s.Throttle.Interval, s.Throttle.DistanceM)
	}
	if s.Warmup == 0 {
		s.Warmup = anomaly.DefaultWarmup
	}
	if s.InitialFixTimeout <= 0 {
		s.InitialFixTimeout = 10 * time.Second
	}
	if s.TeardownTimeout <= 0 {
		s.TeardownTimeout = 2 * time.Second
	}
	if s.NotifyTimeout <= 0 {
		s.NotifyTimeout = notify.DefaultTimeout
	}
	return s
}

type Deps struct {
	Repo     *Repository
	Source   geolocation.Source
	Prompter safety.Prompter
	Checkins *checkin.Service
	Notifier ContactNotifier
	Archiver Archiver
	Events   EventSink
	Viewers  Broadcaster
}

// Tracker owns the live session of one user. Lifecycle operations are serialized;
// background loops hold the run they were started for and stop touching state once
// it is replaced.
type Tracker struct {
	ownerID   string
	deps      Deps
	settings  Settings
	detector  *anomaly.Detector
	scheduler *safety.Scheduler
	now       func() time.Time

	lifecycle sync.Mutex

	mu  sync.Mutex
	gen uint64
	run *run

	tasks sync.WaitGroup
}

type run struct {
	gen         uint64
	session     Session
	panic       bool
	lastSaved   geolocation.Sample
	lastSavedAt time.Time
	hasSaved    bool
	cancel      context.CancelFunc
	loops       sync.WaitGroup
}

func New(ownerID string, deps Deps, settings Settings) *Tracker {
	settings = settings.withDefaults()
	if deps.Prompter == nil {
		deps.Prompter = NewDevicePrompter(ownerID, deps.Events)
	}
	warmup := settings.Warmup
	if warmup < 0 {
		warmup = 0
	}
	t := &Tracker{
		ownerID:  ownerID,
		deps:     deps,
		settings: settings,
		detector: anomaly.NewDetector(settings.AnomalyThresholdMps, warmup),
		now:      time.Now,
	}
	t.scheduler = safety.NewScheduler(settings.CheckVisible, settings.CheckInterval, deps.Prompter, t.promptAllowed)
	return t
}

func (t *Tracker) logger(sessionID string) *log.Entry {
	return log.WithFields(log.Fields{
		"owner_id":   t.ownerID,
		"session_id": sessionID,
	})
}

// Start creates and adopts a new session from a fresh position fix.
func (t *Tracker) Start(ctx context.Context) (Session, error) {
	t.lifecycle.Lock()
	defer t.lifecycle.Unlock()

	if _, ok := t.current(); ok {
		return Session{}, ErrSessionActive
	}
	existing, err := t.deps.Repo.Resumable(ctx, t.ownerID)
	if err != nil {
		return Session{}, fmt.Errorf("query sessions: %w", err)
	}
	if len(existing) > 0 {
		return Session{}, ErrSessionActive
	}

	prev, err := t.deps.Repo.ActivePointer(ctx, t.ownerID)
	if err != nil {
		return Session{}, fmt.Errorf("read active session: %w", err)
	}
	id := uuid.NewString()
	claimed, err := t.deps.Repo.ClaimPointer(ctx, t.ownerID, prev, id)
	if err != nil {
		return Session{}, fmt.Errorf("claim active session: %w", err)
	}
	if !claimed {
		return Session{}, ErrSessionActive
	}

	fixCtx, cancel := context.WithTimeout(ctx, t.settings.InitialFixTimeout)
	fix, err := t.deps.Source.CurrentPosition(fixCtx)
	cancel()
	if err != nil {
		t.releasePointer(id)
		return Session{}, fmt.Errorf("%w: %w", ErrPositionUnavailable, err)
	}

	now := t.now()
	session := Session{
		ID:                 id,
		OwnerID:            t.ownerID,
		Status:             StatusActive,
		InitialLocation:    &fix,
		LiveLocation:       &fix,
		Heartbeat:          now,
		StartTime:          now,
		LastEventTimestamp: now,
		TrackingLink:       link.TrackingURL(t.settings.BaseURL, id),
	}
	if err := t.deps.Repo.Create(ctx, session); err != nil {
		t.releasePointer(id)
		return Session{}, err
	}
	if err := t.deps.Repo.RecordSample(ctx, id, fix, now); err != nil {
		t.logger(id).WithError(err).Warn("could not record initial fix in path")
	}

	t.activate(session, &fix, now)
	t.notifyContacts(session)
	t.emit(Event{Type: EventSessionStarted, SessionID: id, Data: session})
	t.logger(id).Info("tracking session started")
	return session, nil
}

// Resume adopts the owner's most recent active or connection_lost session.
func (t *Tracker) Resume(ctx context.Context) (Session, error) {
	t.lifecycle.Lock()
	defer t.lifecycle.Unlock()

	if rs, ok := t.current(); ok {
		return rs.session, nil
	}

	sessions, err := t.deps.Repo.Resumable(ctx, t.ownerID)
	if err != nil {
		return Session{}, fmt.Errorf("query sessions: %w", err)
	}
	if len(sessions) == 0 {
		return Session{}, ErrNoResumableSession
	}

	chosen := latest(sessions)
	if len(sessions) > 1 {
		t.logger(chosen.ID).Warnf("found %d resumable sessions, adopting the latest", len(sessions))
	}

	cur, err := t.deps.Repo.ActivePointer(ctx, t.ownerID)
	if err != nil {
		t.logger(chosen.ID).WithError(err).Warn("could not read active session pointer")
	} else if cur != chosen.ID {
		if ok, err := t.deps.Repo.ClaimPointer(ctx, t.ownerID, cur, chosen.ID); err != nil || !ok {
			t.logger(chosen.ID).WithError(err).Warn("could not re-claim active session pointer")
		}
	}

	now := t.now()
	if chosen.Status == StatusConnectionLost {
		err := t.deps.Repo.Update(ctx, chosen.ID, map[string]any{
			fieldStatus:    StatusActive,
			fieldLastEvent: now,
		})
		if err != nil {
			t.writeFailed(chosen.ID, "resume", err)
		}
		chosen.Status = StatusActive
		chosen.LastEventTimestamp = now
	}

	seed := chosen.LiveLocation
	if seed == nil {
		seed = chosen.InitialLocation
	}
	t.activate(chosen, seed, now)
	t.emit(Event{Type: EventSessionResumed, SessionID: chosen.ID, Data: chosen})
	t.logger(chosen.ID).Info("tracking session resumed")
	return chosen, nil
}

// latest picks the session with the newest start time; ties go to the later entry.
func latest(sessions []Session) Session {
	best := sessions[0]
	for _, s := range sessions[1:] {
		if !s.StartTime.Before(best.StartTime) {
			best = s
		}
	}
	return best
}

// Stop cancels the session. It is a no-op without one.
func (t *Tracker) Stop(ctx context.Context) error {
	t.lifecycle.Lock()
	defer t.lifecycle.Unlock()

	rs := t.detach()
	if rs == nil {
		return nil
	}
	id := rs.session.ID
	now := t.now()

	err := t.deps.Repo.Update(ctx, id, map[string]any{
		fieldStatus:     StatusCancelled,
		fieldSilentMode: false,
		fieldEndTime:    now,
		fieldLastEvent:  now,
	})
	if err != nil {
		t.writeFailed(id, "stop", err)
	}
	if err := t.deps.Repo.ReleasePointer(ctx, t.ownerID, id); err != nil {
		t.logger(id).WithError(err).Warn("could not release active session pointer")
	}

	t.broadcast(ViewerUpdate{Type: "status", SessionID: id, Status: StatusCancelled, At: now})
	t.emit(Event{Type: EventSessionStopped, SessionID: id})
	t.archive(ctx, rs.session, now)
	t.logger(id).Info("tracking session stopped")

	if err != nil {
		return fmt.Errorf("stop session: %w", err)
	}
	return nil
}

// Teardown is the process-exit path: local loops stop and the session is left
// resumable as connection_lost. The write is bounded by a short timeout.
func (t *Tracker) Teardown(ctx context.Context) {
	t.lifecycle.Lock()
	defer t.lifecycle.Unlock()

	rs := t.detach()
	if rs == nil {
		return
	}
	id := rs.session.ID

	wctx, cancel := context.WithTimeout(ctx, t.settings.TeardownTimeout)
	defer cancel()
	now := t.now()
	err := t.deps.Repo.Update(wctx, id, map[string]any{
		fieldStatus:    StatusConnectionLost,
		fieldLastEvent: now,
	})
	if err != nil {
		t.writeFailed(id, "teardown", err)
		return
	}
	t.broadcast(ViewerUpdate{Type: "status", SessionID: id, Status: StatusConnectionLost, At: now})
}

// Current returns the adopted session, if any.
func (t *Tracker) Current() (Snapshot, bool) {
	rs, ok := t.current()
	if !ok {
		return Snapshot{}, false
	}
	return Snapshot{
		SessionID:    rs.session.ID,
		Status:       rs.session.Status,
		Panic:        rs.panic,
		TrackingLink: rs.session.TrackingLink,
	}, true
}

// Session reads the adopted session back from the store.
func (t *Tracker) Session(ctx context.Context) (Session, error) {
	rs, ok := t.current()
	if !ok {
		return Session{}, ErrNoActiveSession
	}
	return t.deps.Repo.Get(ctx, rs.session.ID)
}

// Wait blocks until detached background tasks such as contact notification finish.
func (t *Tracker) Wait() {
	t.tasks.Wait()
}

type view struct {
	session Session
	panic   bool
}

// current copies the run state so callers never read it unlocked.
func (t *Tracker) current() (view, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.run == nil {
		return view{}, false
	}
	return view{session: t.run.session, panic: t.run.panic}, true
}

func (t *Tracker) isCurrent(rs *run) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.run == rs
}

func (t *Tracker) promptAllowed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.run != nil && !t.run.panic
}

func (t *Tracker) activate(session Session, seed *geolocation.Sample, now time.Time) {
	runCtx, cancel := context.WithCancel(context.Background())
	rs := &run{session: session, cancel: cancel}
	if seed != nil {
		rs.lastSaved = *seed
		rs.lastSavedAt = now
		rs.hasSaved = true
	}
	t.detector.Reset(seed)

	t.mu.Lock()
	t.gen++
	rs.gen = t.gen
	t.run = rs
	t.mu.Unlock()

	updates, err := t.deps.Source.Watch(runCtx)
	if err != nil {
		t.logger(session.ID).WithError(err).Error("could not watch location")
		t.emit(Event{Type: EventTrackingError, SessionID: session.ID, Message: err.Error()})
	} else {
		rs.loops.Add(1)
		go t.consume(runCtx, rs, updates)
	}
	if t.deps.Checkins != nil {
		rs.loops.Add(1)
		go t.watchChecks(runCtx, rs)
	}
	t.scheduler.Start()
	metrics.ActiveSessions.Inc()
}

// detach clears the run and joins its loops. The caller holds the lifecycle lock.
func (t *Tracker) detach() *run {
	t.mu.Lock()
	rs := t.run
	t.run = nil
	t.mu.Unlock()
	if rs == nil {
		return nil
	}

	rs.cancel()
	t.scheduler.Stop()
	rs.loops.Wait()
	metrics.ActiveSessions.Dec()
	return rs
}

func (t *Tracker) consume(ctx context.Context, rs *run, updates <-chan geolocation.Update) {
	defer rs.loops.Done()
	for {
		var u geolocation.Update
		select {
		case <-ctx.Done():
			return
		case next, ok := <-updates:
			if !ok {
				return
			}
			u = next
		}
		if u.Err != nil {
			t.logger(rs.session.ID).WithError(u.Err).Warn("location stream error")
			t.emit(Event{Type: EventTrackingError, SessionID: rs.session.ID, Message: u.Err.Error()})
			continue
		}
		t.handleSample(ctx, rs, u.Sample)
	}
}

// handleSample persists significant samples and runs anomaly detection on every sample.
func (t *Tracker) handleSample(ctx context.Context, rs *run, s geolocation.Sample) {
	t.mu.Lock()
	if t.run != rs {
		t.mu.Unlock()
		return
	}
	now := t.now()
	persist := !rs.hasSaved || t.settings.Throttle.ShouldPersist(rs.lastSaved, rs.lastSavedAt, s, now)
	if persist {
		rs.lastSaved = s
		rs.lastSavedAt = now
		rs.hasSaved = true
	}
	id := rs.session.ID
	t.mu.Unlock()

	if persist {
		metrics.SamplesTotal.WithLabelValues("persisted").Inc()
		if err := t.deps.Repo.RecordSample(ctx, id, s, now); err != nil {
			if ctx.Err() == nil {
				t.writeFailed(id, "sample", err)
			}
		} else {
			sample := s
			t.broadcast(ViewerUpdate{Type: "location", SessionID: id, Location: &sample, At: now})
		}
	} else {
		metrics.SamplesTotal.WithLabelValues("throttled").Inc()
	}

	obs := t.detector.Observe(s, false)
	if obs.Anomalous {
		_ = t.recordAnomaly(ctx, id, obs.SpeedMps)
	}
}

func (t *Tracker) recordAnomaly(ctx context.Context, sessionID string, speed float64) error {
	now := t.now()
	err := t.deps.Repo.Update(ctx, sessionID, map[string]any{
		fieldAnomalyDetected: true,
		fieldSpeedDetected:   speed,
		fieldLastEvent:       now,
	})
	if err != nil {
		t.writeFailed(sessionID, "anomaly", err)
		return fmt.Errorf("record anomaly: %w", err)
	}
	metrics.AnomaliesTotal.Inc()
	t.logger(sessionID).WithField("speed_mps", speed).Warn("anomalous speed detected")
	t.broadcast(ViewerUpdate{Type: "anomaly", SessionID: sessionID, SpeedMps: speed, At: now})
	return nil
}

func (t *Tracker) writeFailed(sessionID, operation string, err error) {
	metrics.WriteFailures.WithLabelValues(operation).Inc()
	t.logger(sessionID).WithError(err).Errorf("session write failed (%s)", operation)
}

func (t *Tracker) releasePointer(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), t.settings.TeardownTimeout)
	defer cancel()
	if err := t.deps.Repo.ReleasePointer(ctx, t.ownerID, id); err != nil {
		t.logger(id).WithError(err).Warn("could not release active session pointer")
	}
}

func (t *Tracker) archive(ctx context.Context, session Session, endedAt time.Time) {
	if t.deps.Archiver == nil {
		return
	}
	path, err := t.deps.Repo.Path(ctx, session.ID)
	if err != nil {
		t.logger(session.ID).WithError(err).Warn("could not read path for archive")
		return
	}
	stored, err := t.deps.Repo.Get(ctx, session.ID)
	if err == nil {
		session = stored
	}
	trip := archive.Trip{
		SessionID:       session.ID,
		OwnerID:         session.OwnerID,
		Status:          string(StatusCancelled),
		StartedAt:       session.StartTime,
		EndedAt:         endedAt,
		AnomalyDetected: session.AnomalyDetected,
		Points:          path,
	}
	if err := t.deps.Archiver.Archive(ctx, trip); err != nil {
		t.logger(session.ID).WithError(err).Warn("could not archive trip")
	}
}

func (t *Tracker) emit(e Event) {
	if t.deps.Events == nil {
		return
	}
	e.At = t.now()
	t.deps.Events.Emit(t.ownerID, e)
}

func (t *Tracker) broadcast(u ViewerUpdate) {
	if t.deps.Viewers == nil {
		return
	}
	payload, err := json.Marshal(u)
	if err != nil {
		return
	}
	t.deps.Viewers.Broadcast(u.SessionID, payload)
}

// notifyContacts runs detached; the session never depends on its outcome.
func (t *Tracker) notifyContacts(session Session) {
	if t.deps.Notifier == nil {
		return
	}
	t.tasks.Add(1)
	go func() {
		defer t.tasks.Done()
		defer func() {
			if r := recover(); r != nil {
				t.logger(session.ID).Errorf("contact notification panicked: %v", r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 2*t.settings.NotifyTimeout)
		defer cancel()
		res, err := t.deps.Notifier.Notify(ctx, t.ownerID, session.TrackingLink)
		switch {
		case err != nil:
			t.logger(session.ID).WithError(err).Warn("contact notification failed")
			t.emit(Event{Type: EventNotifyFailed, SessionID: session.ID, Message: "Could not load contacts to notify."})
		case res.Eligible == 0:
			t.emit(Event{Type: EventNotifyNone, SessionID: session.ID, Message: "No contact can be notified automatically. Share the link instead.", Data: res})
		default:
			t.emit(Event{Type: EventNotifyResult, SessionID: session.ID, Data: res})
		}
	}()
}
