// clock.go abstracts the two time operations the retry and poll loops need,
// so tests can drive sleeps without waiting on the wall clock.
package main

import (
	"context"
	"time"
)

// Clock is the time source for Retry and Poller. Production code uses
// realClock; tests inject a fake.
type Clock interface {
	Now() time.Time
	// After returns a channel that receives once d has elapsed.
	// If d <= 0 the channel receives immediately.
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// sleep waits for d on the given clock, returning early with the context's
// error if ctx is cancelled first.
func sleep(ctx context.Context, clock Clock, d time.Duration) error {
	select {
	case <-clock.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
