package geolocation

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFeedCurrentPosition(t *testing.T) {
	feed := NewFeed(time.Second)

	go func() {
		time.Sleep(10 * time.Millisecond)
		feed.Push(Reading{Latitude: -23.55, Longitude: -46.63, Accuracy: 5})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s, err := feed.CurrentPosition(ctx)
	if err != nil {
		t.Fatalf("current position: %v", err)
	}
	if s.Latitude != -23.55 || s.Timestamp.IsZero() {
		t.Fatalf("unexpected sample: %+v", s)
	}
}

func TestFeedCurrentPositionTimeout(t *testing.T) {
	feed := NewFeed(time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := feed.CurrentPosition(ctx)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if len(feed.waiters) != 0 {
		t.Fatalf("expected waiter to be dropped")
	}
}

func TestFeedCurrentPositionDenied(t *testing.T) {
	feed := NewFeed(time.Second)
	go func() {
		time.Sleep(10 * time.Millisecond)
		feed.Push(Reading{Error: "denied"})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := feed.CurrentPosition(ctx); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}
}

func TestFeedWatch(t *testing.T) {
	feed := NewFeed(time.Second)
	ctx, cancel := context.WithCancel(context.Background())

	updates, err := feed.Watch(ctx)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}

	stamp := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	feed.Push(Reading{Latitude: 1, Longitude: 2, Timestamp: stamp})

	select {
	case u := <-updates:
		if u.Err != nil || !u.Sample.Timestamp.Equal(stamp) {
			t.Fatalf("unexpected update: %+v", u)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("timeout waiting for update")
	}

	cancel()
	select {
	case _, ok := <-updates:
		if ok {
			t.Fatalf("expected closed channel")
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("watch did not close")
	}
}

func TestFeedWatchStale(t *testing.T) {
	feed := NewFeed(20 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates, _ := feed.Watch(ctx)
	select {
	case u := <-updates:
		if !errors.Is(u.Err, ErrTimeout) {
			t.Fatalf("expected stale timeout, got %+v", u)
		}
	case <-time.After(300 * time.Millisecond):
		t.Fatalf("expected stale update")
	}
}

func TestReadingErr(t *testing.T) {
	if (Reading{}).Err() != nil {
		t.Fatalf("expected nil error")
	}
	if !errors.Is(Reading{Error: "timeout"}.Err(), ErrTimeout) {
		t.Fatalf("expected timeout")
	}
	if !errors.Is(Reading{Error: "weird"}.Err(), ErrPositionUnavailable) {
		t.Fatalf("expected unavailable")
	}
}
