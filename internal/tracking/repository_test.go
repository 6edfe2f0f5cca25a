package tracking

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRepositoryResumableFiltersStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	t0 := time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC)

	for _, s := range []Session{
		{ID: "s1", OwnerID: "user-1", Status: StatusCancelled, StartTime: t0},
		{ID: "s2", OwnerID: "user-1", Status: StatusConnectionLost, StartTime: t0.Add(time.Minute)},
		{ID: "s3", OwnerID: "user-1", Status: StatusPanic, StartTime: t0.Add(2 * time.Minute)},
		{ID: "s4", OwnerID: "user-2", Status: StatusActive, StartTime: t0},
	} {
		if err := f.repo.Create(ctx, s); err != nil {
			t.Fatalf("create %s: %v", s.ID, err)
		}
	}

	got, err := f.repo.Resumable(ctx, "user-1")
	if err != nil {
		t.Fatalf("resumable: %v", err)
	}
	if len(got) != 1 || got[0].ID != "s2" {
		t.Fatalf("unexpected resumable sessions: %+v", got)
	}
}

func TestRepositoryPointer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ok, err := f.repo.ClaimPointer(ctx, "user-1", "", "s1")
	if err != nil || !ok {
		t.Fatalf("first claim should win: %v", err)
	}
	ok, _ = f.repo.ClaimPointer(ctx, "user-1", "", "s2")
	if ok {
		t.Fatalf("second claim against a stale value should lose")
	}
	if err := f.repo.ReleasePointer(ctx, "user-1", "s2"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if cur, _ := f.repo.ActivePointer(ctx, "user-1"); cur != "s1" {
		t.Fatalf("releasing another id must not clear the pointer, got %q", cur)
	}
	_ = f.repo.ReleasePointer(ctx, "user-1", "s1")
	if cur, _ := f.repo.ActivePointer(ctx, "user-1"); cur != "" {
		t.Fatalf("pointer should be cleared, got %q", cur)
	}
}

func TestRepositoryUpdateMissingSession(t *testing.T) {
	f := newFixture(t)
	err := f.repo.Update(context.Background(), "missing", map[string]any{fieldStatus: StatusActive})
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestRepositoryRecordSample(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := origin.Timestamp.Add(time.Second)

	if err := f.repo.RecordSample(ctx, "missing", origin, now); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if path, _ := f.repo.Path(ctx, "missing"); len(path) != 0 {
		t.Fatalf("sample stored for a missing session: %+v", path)
	}

	if err := f.repo.Create(ctx, Session{ID: "s1", OwnerID: "user-1", Status: StatusActive, StartTime: origin.Timestamp}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.repo.RecordSample(ctx, "s1", origin, now); err != nil {
		t.Fatalf("record: %v", err)
	}
	stored, _ := f.repo.Get(ctx, "s1")
	if stored.LiveLocation == nil || stored.LiveLocation.Latitude != origin.Latitude {
		t.Fatalf("live location not moved: %+v", stored.LiveLocation)
	}
	if !stored.Heartbeat.Equal(now) {
		t.Fatalf("heartbeat not written: %v", stored.Heartbeat)
	}
	if path, _ := f.repo.Path(ctx, "s1"); len(path) != 1 {
		t.Fatalf("expected one path entry, got %d", len(path))
	}
}
