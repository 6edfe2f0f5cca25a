package tracking

import (
	"backend-safetrack/internal/stream"

	log "github.com/sirupsen/logrus"
)

// EventSink delivers events to the owner's device.
type EventSink interface {
	Emit(ownerID string, e Event)
}

// Broadcaster fans a payload out to everyone following key.
type Broadcaster interface {
	Broadcast(key string, payload []byte)
}

// HubEvents sends owner events over the stream hub.
type HubEvents struct {
	hub *stream.Hub
}

func NewHubEvents(hub *stream.Hub) HubEvents {
	return HubEvents{hub: hub}
}

func (h HubEvents) Emit(ownerID string, e Event) {
	if err := h.hub.Publish(stream.OwnerKey(ownerID), e); err != nil {
		log.WithError(err).Warnf("tracking: could not publish %s event for %s", e.Type, ownerID)
	}
}
