package tracking

import (
	"sync/atomic"
	"time"
)

// DevicePrompter shows the safety prompt on the owner's device through the event sink.
// The device reports open modals so a prompt never stacks on top of another dialog.
type DevicePrompter struct {
	ownerID string
	events  EventSink
	busy    atomic.Bool
}

func NewDevicePrompter(ownerID string, events EventSink) *DevicePrompter {
	return &DevicePrompter{ownerID: ownerID, events: events}
}

func (p *DevicePrompter) ShowPrompt() {
	p.emit(Event{Type: EventPromptShow, Message: "Are you okay?"})
}

func (p *DevicePrompter) HidePrompt() {
	p.emit(Event{Type: EventPromptHide})
}

func (p *DevicePrompter) Busy() bool {
	return p.busy.Load()
}

func (p *DevicePrompter) SetBusy(busy bool) {
	p.busy.Store(busy)
}

func (p *DevicePrompter) emit(e Event) {
	if p.events == nil {
		return
	}
	e.At = time.Now()
	p.events.Emit(p.ownerID, e)
}
