// Package retry runs setup calls against remote services until they succeed,
// backing off exponentially between attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Policy contains configuration for exponential backoff retries
type Policy struct {
	MaxAttempts int           // 0 retries until success or cancellation
	Delay       time.Duration // Initial retry delay (default: 1 second)
	MaxDelay    time.Duration // Maximum retry delay cap (default: 30 seconds)
}

// DefaultPolicy returns the unbounded setup policy
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 0,
		Delay:       1 * time.Second,
		MaxDelay:    30 * time.Second,
	}
}

// Func is one attempt. Returning an error wrapped with Permanent stops the loop.
type Func func(ctx context.Context) error

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Do executes fn with exponential backoff until it succeeds, returns a
// permanent error, exhausts MaxAttempts or ctx is cancelled.
//
// Backoff schedule with Delay=1s, MaxDelay=30s: 1s, 2s, 4s, 8s, 16s, 30s, 30s, ...
func Do(ctx context.Context, name string, p Policy, fn Func) error {
	attempt := 0
	for {
		// Check context before attempting
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				slog.Info("retry: call succeeded", "call", name, "attempts", attempt+1)
			}
			return nil
		}

		var p2 *permanentError
		if errors.As(err, &p2) {
			return p2.err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		attempt++
		if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
			return fmt.Errorf("%s: giving up after %d attempts: %w", name, attempt, err)
		}

		delay := Backoff(attempt, p)
		slog.Warn("retry: call failed, retrying",
			"call", name,
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)

		// Wait with backoff (or until context cancelled)
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// Backoff returns Delay * 2^(attempt-1), capped at MaxDelay
func Backoff(attempt int, p Policy) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 30 {
		attempt = 30
	}
	delay := p.Delay * time.Duration(1<<uint(attempt-1))
	if p.MaxDelay > 0 && (delay > p.MaxDelay || delay <= 0) {
		delay = p.MaxDelay
	}
	return delay
}
