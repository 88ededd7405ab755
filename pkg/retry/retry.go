package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Policy describes a bounded exponential backoff shared by the archive and
// analyzer clients.
type Policy struct {
	MaxRetries   int
	InitialDelay time.Duration
	Multiplier   float64
	Jitter       bool
}

// DefaultPolicy mirrors the limits the external services tolerate well:
// three retries starting at one second, doubling each time.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:   3,
		InitialDelay: time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient marks err as retryable. Do retries only marked errors; anything
// else is returned to the caller immediately.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err was marked with Transient.
func IsTransient(err error) bool {
	var t *transientError
	return errors.As(err, &t)
}

// Do runs fn, retrying transient failures per the policy. The last error is
// returned unwrapped from its transient marker. Context cancellation aborts
// the wait between attempts.
func (p Policy) Do(ctx context.Context, fn func() error) error {
	delay := p.InitialDelay
	if delay <= 0 {
		delay = time.Second
	}
	mult := p.Multiplier
	if mult <= 1 {
		mult = 2.0
	}

	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || !IsTransient(err) {
			return unwrapTransient(err)
		}
		if attempt >= p.MaxRetries {
			return unwrapTransient(err)
		}

		wait := delay
		if p.Jitter {
			wait += time.Duration(rand.Float64() * 0.1 * float64(delay))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		delay = time.Duration(float64(delay) * mult)
	}
}

func unwrapTransient(err error) error {
	var t *transientError
	if errors.As(err, &t) {
		return t.err
	}
	return err
}
