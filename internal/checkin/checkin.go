package checkin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"backend-safetrack/internal/store"

	log "github.com/sirupsen/logrus"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusOK      Status = "ok"
	StatusDanger  Status = "danger"
)

var (
	ErrHandshakeWrite = errors.New("could not send check request")
	ErrInvalidStatus  = errors.New("status must be ok or danger")
	ErrNoPendingCheck = errors.New("no check request to answer")
)

// Request is the handshake record. A viewer answers by rewriting Status on the same Timestamp.
type Request struct {
	Timestamp time.Time `json:"timestamp"`
	Status    Status    `json:"status"`
}

func Path(sessionID string) string {
	return "sessions/" + sessionID + "/check_request"
}

type Service struct {
	store store.Store
	now   func() time.Time
}

func NewService(st store.Store) *Service {
	return &Service{store: st, now: time.Now}
}

// Request asks the contact to confirm the owner's status. Any earlier request is replaced.
func (s *Service) Request(ctx context.Context, sessionID string) (Request, error) {
	req := Request{Timestamp: s.now().UTC(), Status: StatusPending}
	if err := s.store.Set(ctx, Path(sessionID), req); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrHandshakeWrite, err)
	}
	return req, nil
}

func (s *Service) Current(ctx context.Context, sessionID string) (Request, bool, error) {
	var req Request
	err := s.store.Get(ctx, Path(sessionID), &req)
	if errors.Is(err, store.ErrNotFound) {
		return Request{}, false, nil
	}
	if err != nil {
		return Request{}, false, err
	}
	return req, true, nil
}

// Reply is the viewer side of the handshake.
func (s *Service) Reply(ctx context.Context, sessionID string, status Status) error {
	if status != StatusOK && status != StatusDanger {
		return ErrInvalidStatus
	}
	req, ok, err := s.Current(ctx, sessionID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoPendingCheck
	}
	req.Status = status
	return s.store.Set(ctx, Path(sessionID), req)
}

func (s *Service) Clear(ctx context.Context, sessionID string) error {
	return s.store.Set(ctx, Path(sessionID), nil)
}

// Watch blocks until ctx ends, calling onResult once per answered request and then
// clearing the record so a new request can be issued. Pending values and repeated
// deliveries of an already surfaced answer are ignored.
func (s *Service) Watch(ctx context.Context, sessionID string, onResult func(Request)) error {
	changes, err := s.store.Subscribe(ctx, Path(sessionID))
	if err != nil {
		return fmt.Errorf("watch check request: %w", err)
	}

	var last Request
	for raw := range changes {
		if raw == nil {
			continue
		}
		var req Request
		if err := json.Unmarshal(raw, &req); err != nil {
			log.WithError(err).Warnf("checkin: unreadable check request on session %s", sessionID)
			continue
		}
		if req.Status != StatusOK && req.Status != StatusDanger {
			continue
		}
		if req.Timestamp.Equal(last.Timestamp) && req.Status == last.Status {
			continue
		}
		last = req

		onResult(req)
		if err := s.Clear(ctx, sessionID); err != nil && ctx.Err() == nil {
			log.WithError(err).Warnf("checkin: could not clear answered request on session %s", sessionID)
		}
	}
	return nil
}
