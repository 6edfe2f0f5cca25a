package tracking

import (
	"context"
	"sort"
	"sync"

	"backend-safetrack/internal/geolocation"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Handle bundles a tracker with the device-facing pieces that feed it.
type Handle struct {
	Tracker  *Tracker
	Feed     *geolocation.Feed
	Prompter *DevicePrompter
}

// Factory builds the handle for an owner seen for the first time.
type Factory func(ownerID string) *Handle

// NewFactory wires every tracker to the shared dependencies and gives it its own
// device feed and prompter.
func NewFactory(deps Deps, settings Settings) Factory {
	return func(ownerID string) *Handle {
		feed := geolocation.NewFeed(settings.FixStaleTimeout)
		prompter := NewDevicePrompter(ownerID, deps.Events)

		d := deps
		d.Source = feed
		d.Prompter = prompter
		return &Handle{
			Tracker:  New(ownerID, d, settings),
			Feed:     feed,
			Prompter: prompter,
		}
	}
}

// Manager hosts one tracker per owner for the lifetime of the process.
type Manager struct {
	factory Factory

	mu      sync.Mutex
	handles map[string]*Handle
}

func NewManager(factory Factory) *Manager {
	return &Manager{
		factory: factory,
		handles: make(map[string]*Handle),
	}
}

// Get returns the owner's handle, creating it on first use.
func (m *Manager) Get(ownerID string) *Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.handles[ownerID]
	if !ok {
		h = m.factory(ownerID)
		m.handles[ownerID] = h
	}
	return h
}

func (m *Manager) Owners() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	owners := make([]string, 0, len(m.handles))
	for id := range m.handles {
		owners = append(owners, id)
	}
	sort.Strings(owners)
	return owners
}

// TeardownAll leaves every running session resumable. It is called on shutdown.
func (m *Manager) TeardownAll(ctx context.Context) error {
	m.mu.Lock()
	handles := make([]*Handle, 0, len(m.handles))
	for _, h := range m.handles {
		handles = append(handles, h)
	}
	m.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, h := range handles {
		h := h
		g.Go(func() error {
			h.Tracker.Teardown(gctx)
			return nil
		})
	}
	err := g.Wait()
	log.Infof("tracking: tore down %d trackers", len(handles))
	return err
}

// Wait blocks until detached work of every tracker is done.
func (m *Manager) Wait() {
	m.mu.Lock()
	handles := make([]*Handle, 0, len(m.handles))
	for _, h := range m.handles {
		handles = append(handles, h)
	}
	m.mu.Unlock()

	for _, h := range handles {
		h.Tracker.Wait()
	}
}
