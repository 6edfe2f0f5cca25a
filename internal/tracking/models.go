package tracking

import (
	"time"

	"backend-safetrack/internal/geolocation"
)

type Status string

const (
	StatusActive         Status = "active"
	StatusPanic          Status = "panic_triggered_by_user"
	StatusConnectionLost Status = "connection_lost"
	StatusCancelled      Status = "cancelled"
)

// Resumable reports whether a session may be adopted again after a restart.
func (s Status) Resumable() bool {
	return s == StatusActive || s == StatusConnectionLost
}

type Session struct {
	ID                     string              `json:"id"`
	OwnerID                string              `json:"owner_id"`
	Status                 Status              `json:"status"`
	SilentMode             bool                `json:"silent_mode"`
	InitialLocation        *geolocation.Sample `json:"initial_location,omitempty"`
	LiveLocation           *geolocation.Sample `json:"live_location,omitempty"`
	Heartbeat              time.Time           `json:"heartbeat"`
	AnomalyDetected        bool                `json:"anomaly_detected"`
	SpeedDetected          float64             `json:"speed_detected,omitempty"`
	StartTime              time.Time           `json:"start_time"`
	EndTime                *time.Time          `json:"end_time,omitempty"`
	LastEventTimestamp     time.Time           `json:"last_event_timestamp"`
	UserSafetyConfirmation *time.Time          `json:"user_safety_confirmation,omitempty"`
	TrackingLink           string              `json:"tracking_link"`
}

// Snapshot is the local view of the adopted session.
type Snapshot struct {
	SessionID    string `json:"session_id"`
	Status       Status `json:"status"`
	Panic        bool   `json:"panic"`
	TrackingLink string `json:"tracking_link"`
}

const (
	EventSessionStarted = "session_started"
	EventSessionResumed = "session_resumed"
	EventSessionStopped = "session_stopped"
	EventTrackingError  = "tracking_error"
	EventPromptShow     = "prompt_show"
	EventPromptHide     = "prompt_hide"
	EventPanicCancelled = "panic_cancelled"
	EventCheckRequested = "check_requested"
	EventCheckOK        = "check_ok"
	EventCheckDanger    = "check_danger"
	EventNotifyResult   = "notify_result"
	EventNotifyNone     = "notify_none"
	EventNotifyFailed   = "notify_failed"
)

// Event is delivered to the owner's device.
type Event struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Message   string    `json:"message,omitempty"`
	Data      any       `json:"data,omitempty"`
	At        time.Time `json:"at"`
}

// ViewerUpdate is broadcast to everyone following a session.
type ViewerUpdate struct {
	Type      string              `json:"type"`
	SessionID string              `json:"session_id"`
	Status    Status              `json:"status,omitempty"`
	Location  *geolocation.Sample `json:"location,omitempty"`
	SpeedMps  float64             `json:"speed_mps,omitempty"`
	At        time.Time           `json:"at"`
}
