package sessionstore

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lakestack/hometrace/internal/calendar"
)

func TestTTLCacheExpiry(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	c := NewTTLCache[string, int]()
	c.now = func() time.Time { return now }

	c.Set("short", 1, time.Minute)
	c.Set("forever", 2, 0)
	if v, ok := c.Get("short"); !ok || v != 1 {
		t.Fatalf("Get(short) = %v, %v", v, ok)
	}

	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("short"); ok {
		t.Fatal("expired entry should miss")
	}
	if _, ok := c.Get("forever"); !ok {
		t.Fatal("zero ttl never expires")
	}

	c.Set("other", 3, time.Second)
	now = now.Add(time.Minute)
	if n := c.Sweep(); n != 1 {
		t.Fatalf("Sweep removed %d", n)
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	user := uuid.New()

	snap, err := m.Get(ctx, user)
	if err != nil || snap != nil {
		t.Fatalf("miss should be nil, nil; got %v, %v", snap, err)
	}

	anchor := time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)
	in := calendar.Snapshot{
		Anchor:  anchor,
		Changes: []calendar.PendingChange{{AppointmentID: uuid.New(), NewDateTime: anchor.Add(10 * time.Hour)}},
	}
	if err := m.Put(ctx, user, in, time.Hour); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := m.Get(ctx, user)
	if err != nil || got == nil {
		t.Fatalf("Get: %v, %v", got, err)
	}
	if !got.Anchor.Equal(anchor) || len(got.Changes) != 1 {
		t.Fatalf("unexpected snapshot %+v", got)
	}

	if other, _ := m.Get(ctx, uuid.New()); other != nil {
		t.Fatal("snapshots are per user")
	}
	_ = m.Delete(ctx, user)
	if got, _ := m.Get(ctx, user); got != nil {
		t.Fatal("deleted snapshot should miss")
	}
}

func TestKeyFormat(t *testing.T) {
	id := uuid.MustParse("7b0f3c56-9f7e-4d8e-9f3c-1a2b3c4d5e6f")
	if got := key(id); got != "calendar:session:7b0f3c56-9f7e-4d8e-9f3c-1a2b3c4d5e6f" {
		t.Fatalf("key = %q", got)
	}
}
