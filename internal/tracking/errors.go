package tracking

import "errors"

var (
	ErrSessionActive       = errors.New("a tracking session is already active")
	ErrNoResumableSession  = errors.New("no session to resume")
	ErrNoActiveSession     = errors.New("no active tracking session")
	ErrPositionUnavailable = errors.New("could not get an initial position")
	ErrNoSample            = errors.New("no location sample yet")
)
