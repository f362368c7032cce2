// Package retry holds the one backoff policy the service uses, instead of
// per-call-site fixed delays.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"gorm.io/gorm"
)

type Policy struct {
	MaxAttempts     uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Default mirrors the bounded, short-delay retries applied to list fetches
// and draft creation: 3 attempts with jittered exponential delay.
var Default = Policy{
	MaxAttempts:     3,
	InitialInterval: 100 * time.Millisecond,
	MaxInterval:     2 * time.Second,
}

// Do runs op, retrying retryable failures until the policy's attempts are
// spent or ctx is done. Wrap an error with Permanent to stop immediately.
func (p Policy) Do(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.InitialInterval
	bo.MaxInterval = p.MaxInterval
	wrapped := backoff.WithContext(backoff.WithMaxRetries(bo, p.MaxAttempts-1), ctx)
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, wrapped)
}

func Do(ctx context.Context, op func() error) error {
	return Default.Do(ctx, op)
}

// Permanent marks err as not worth retrying regardless of classification.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// retryable classifies errors. Not-found and validation failures never heal
// by waiting; everything else (connectivity, timeouts, serialization, the
// draft unique-constraint collision) gets another attempt.
func retryable(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) ||
		errors.Is(err, gorm.ErrInvalidData) ||
		errors.Is(err, context.Canceled) {
		return false
	}
	return true
}
