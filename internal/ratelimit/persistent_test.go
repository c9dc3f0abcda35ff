package ratelimit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/wisbric/pdpsync/internal/kvstore"
)

// failingStore always errors, used to exercise the limiter's fail-open
// path: on KV failure the limiter must fail open rather than block
// correctness.
type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("kv unavailable")
}
func (failingStore) Put(context.Context, string, []byte, time.Duration) error {
	return errors.New("kv unavailable")
}
func (failingStore) Delete(context.Context, string) error { return nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPersistentLimiter_AllowsWithinCapacity(t *testing.T) {
	kv := kvstore.NewMemory()
	l := NewPersistent(kv, discardLogger(), 2, 20)

	r1 := l.TryAcquire(context.Background())
	r2 := l.TryAcquire(context.Background())
	if !r1.Allowed || !r2.Allowed {
		t.Fatalf("expected both acquisitions within capacity to succeed: %+v %+v", r1, r2)
	}
}

func TestPersistentLimiter_BlocksOverCapacity(t *testing.T) {
	kv := kvstore.NewMemory()
	l := NewPersistent(kv, discardLogger(), 2, 0.001)

	l.TryAcquire(context.Background())
	l.TryAcquire(context.Background())
	r3 := l.TryAcquire(context.Background())
	if r3.Allowed {
		t.Fatalf("expected third acquisition to be blocked with a near-zero refill rate")
	}
}

func TestPersistentLimiter_FailsOpenOnKVError(t *testing.T) {
	l := NewPersistent(failingStore{}, discardLogger(), 1, 20)
	r := l.TryAcquire(context.Background())
	if !r.Allowed {
		t.Fatalf("expected limiter to fail open when KV is unavailable, got %+v", r)
	}
}
