// Package clock provides a deterministic time source so components that
// sleep or read the wall clock can be tested without real delays.
package clock

import (
	"context"
	"time"
)

// Clock abstracts wall-clock time and cancellable sleeping.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is cancelled, whichever comes first.
	Sleep(ctx context.Context, d time.Duration) error
}

// Real is the production Clock backed by the actual system clock.
type Real struct{}

// New returns the production Clock.
func New() Clock { return Real{} }

func (Real) Now() time.Time { return time.Now() }

func (Real) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
