package plc

import (
	"context"
	"time"
)

// Clock abstracts the scheduler's time source so the scan loop can be tested
// without real sleeps.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration)
}

// WallClock is the production clock.
type WallClock struct{}

func (WallClock) Now() time.Time {
	return time.Now()
}

// Sleep waits for d or until the context is cancelled, whichever comes first.
func (WallClock) Sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
