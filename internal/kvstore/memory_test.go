package kvstore

import (
	"context"
	"testing"
	"time"
)

func TestMemory_PutThenGetRoundTrips(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.Put(ctx, "k1", []byte("v1"), 0); err != nil {
		t.Fatalf("Put: %v", err)
	}
	val, ok, err := m.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok || string(val) != "v1" {
		t.Errorf("Get = %q, %v, want v1, true", val, ok)
	}
}

func TestMemory_GetAbsentKeyReturnsFalse(t *testing.T) {
	m := NewMemory()
	_, ok, err := m.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Errorf("expected ok=false for an absent key")
	}
}

func TestMemory_TTLExpiresEntry(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	m.Put(ctx, "k1", []byte("v1"), time.Nanosecond)
	time.Sleep(time.Millisecond)

	_, ok, err := m.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Errorf("expected entry to have expired")
	}
}

func TestMemory_DeleteRemovesEntry(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	m.Put(ctx, "k1", []byte("v1"), 0)

	if err := m.Delete(ctx, "k1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	_, ok, _ := m.Get(ctx, "k1")
	if ok {
		t.Errorf("expected key to be gone after delete")
	}
}

func TestMemory_DeleteAbsentKeyIsNotAnError(t *testing.T) {
	m := NewMemory()
	if err := m.Delete(context.Background(), "never-existed"); err != nil {
		t.Errorf("expected deleting an absent key to be a no-op, got %v", err)
	}
}
