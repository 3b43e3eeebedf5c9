package ha

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

var errNotReady = errors.New("not ready")

// pollUntil calls check until it reports done, returns a permanent error, or
// the timeout elapses. Transient errors are retried like a not-ready answer.
// On timeout the returned error wraps context.DeadlineExceeded, and the last
// transient error when there was one, so callers can map it to their own
// taxonomy.
func pollUntil(ctx context.Context, interval, timeout time.Duration, check func(context.Context) (bool, error)) error {
	if interval <= 0 {
		interval = time.Second
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = interval
	expBackoff.MaxInterval = 4 * interval
	expBackoff.RandomizationFactor = 0.1
	expBackoff.MaxElapsedTime = timeout

	operation := func() error {
		done, err := check(ctx)
		if err != nil {
			if permanent(err) || ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		if !done {
			return errNotReady
		}
		return nil
	}

	err := backoff.Retry(operation, backoff.WithContext(expBackoff, ctx))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errNotReady):
		return context.DeadlineExceeded
	case ctx.Err() != nil || permanent(err):
		return err
	default:
		return fmt.Errorf("%w: last error: %w", context.DeadlineExceeded, err)
	}
}

// permanent reports whether err is a failure polling cannot recover from
func permanent(err error) bool {
	return errors.Is(err, ErrPromotionFailed) ||
		errors.Is(err, ErrServiceNotFound) ||
		errors.Is(err, ErrRecordConflict)
}
