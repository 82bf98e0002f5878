// retry.go implements the bounded exponential-backoff retry policy wrapped
// around every single HTTP call to the agent service.
package main

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = time.Second
)

// RetryObserver is told about each retry before the policy sleeps.
// attempt is 1-based and counts the attempt that just failed.
type RetryObserver func(attempt, maxAttempts int, delay time.Duration, err error)

// RetryPolicy retries transient failures (timeouts, connection errors) up to
// MaxAttempts times, sleeping BaseDelay * 2^k between attempts. Anything
// else propagates on first sight.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Clock       Clock
	Observer    RetryObserver
}

// DefaultRetryPolicy returns the policy used when config leaves the fields
// at zero: 3 attempts, 1s base delay, wall clock.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: defaultMaxAttempts,
		BaseDelay:   defaultBaseDelay,
		Clock:       realClock{},
	}
}

// WithObserver returns a copy of p reporting to o. Policies are values so
// each operation can attach its own notifier without affecting others.
func (p RetryPolicy) WithObserver(o RetryObserver) RetryPolicy {
	p.Observer = o
	return p
}

// schedule returns the delay generator for one Retry call. Randomization is
// disabled so delays are exactly 1x, 2x, 4x... the base.
func (p RetryPolicy) schedule() *backoff.ExponentialBackOff {
	base := p.BaseDelay
	if base <= 0 {
		base = defaultBaseDelay
	}
	return &backoff.ExponentialBackOff{
		InitialInterval:     base,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         base << 20,
	}
}

// Retry runs op under policy p. On the final transient failure the last
// error is returned unchanged so callers can still classify it.
func Retry[T any](ctx context.Context, p RetryPolicy, op func(context.Context) (T, error)) (T, error) {
	var zero T
	clock := p.Clock
	if clock == nil {
		clock = realClock{}
	}
	delays := p.schedule()

	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		if !IsTransient(err) || ctx.Err() != nil {
			return zero, err
		}
		lastErr = err

		if attempt == p.MaxAttempts-1 {
			break
		}
		delay := delays.NextBackOff()
		if p.Observer != nil {
			p.Observer(attempt+1, p.MaxAttempts, delay, err)
		}
		if err := sleep(ctx, clock, delay); err != nil {
			return zero, lastErr
		}
	}

	if lastErr == nil {
		return zero, ErrRetriesExhausted
	}
	return zero, lastErr
}
