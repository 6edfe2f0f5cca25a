package tracking

import (
	"context"
	"testing"
	"time"

	"backend-safetrack/internal/geolocation"
)

func TestManagerReusesHandles(t *testing.T) {
	f := newFixture(t)
	m := NewManager(NewFactory(f.deps, f.settings))

	a := m.Get("user-1")
	if m.Get("user-1") != a {
		t.Fatalf("expected same handle for same owner")
	}
	if m.Get("user-2") == a {
		t.Fatalf("owners must not share trackers")
	}
	owners := m.Owners()
	if len(owners) != 2 || owners[0] != "user-1" || owners[1] != "user-2" {
		t.Fatalf("unexpected owners: %v", owners)
	}
}

func TestManagerTeardownAll(t *testing.T) {
	f := newFixture(t)
	f.settings.InitialFixTimeout = time.Second
	m := NewManager(NewFactory(f.deps, f.settings))
	ctx := context.Background()

	h := m.Get("user-1")
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			case <-time.After(10 * time.Millisecond):
				h.Feed.Push(geolocation.Reading{Latitude: origin.Latitude, Longitude: origin.Longitude, Accuracy: 5})
			}
		}
	}()
	session, err := h.Tracker.Start(ctx)
	close(stop)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	m.Get("user-2")

	if err := m.TeardownAll(ctx); err != nil {
		t.Fatalf("teardown: %v", err)
	}
	m.Wait()

	stored, _ := f.repo.Get(ctx, session.ID)
	if stored.Status != StatusConnectionLost {
		t.Fatalf("expected connection_lost, got %s", stored.Status)
	}
	if _, ok := h.Tracker.Current(); ok {
		t.Fatalf("tracker should be detached")
	}
}

func TestDevicePrompterBusy(t *testing.T) {
	events := &recordedEvents{}
	p := NewDevicePrompter("user-1", events)
	p.SetBusy(true)
	if !p.Busy() {
		t.Fatalf("expected busy")
	}
	p.ShowPrompt()
	p.HidePrompt()
	if events.count(EventPromptShow) != 1 || events.count(EventPromptHide) != 1 {
		t.Fatalf("unexpected events: %v", events.types())
	}
}
