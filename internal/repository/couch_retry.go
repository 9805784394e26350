package repository

import (
	"context"
	"net/http"
	"time"

	"github.com/go-kivik/kivik/v4"
	"github.com/jpillora/backoff"
)

const (
	maxConflictRetries = 5
	// The counter document is written by every save, so it sees far more
	// contention than any single day's entry.
	maxVersionRetries = 25
)

// conflictRetry reruns a read-modify-write while CouchDB answers 409,
// sleeping a jittered, growing interval between attempts.
type conflictRetry struct {
	attempts int
	backoff  func() *backoff.Backoff
	sleep    func(ctx context.Context, d time.Duration) error
}

func newConflictRetry(attempts int) conflictRetry {
	return conflictRetry{
		attempts: attempts,
		backoff: func() *backoff.Backoff {
			return &backoff.Backoff{
				Min:    5 * time.Millisecond,
				Max:    250 * time.Millisecond,
				Factor: 2,
				Jitter: true,
			}
		},
		sleep: sleepContext,
	}
}

// do returns op's result as soon as it is not a conflict, or
// ErrTooManyConflicts once every attempt has collided.
func (c conflictRetry) do(ctx context.Context, op func() error) error {
	b := c.backoff()
	for attempt := 0; attempt < c.attempts; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, b.Duration()); err != nil {
				return err
			}
		}

		err := op()
		if kivik.HTTPStatus(err) != http.StatusConflict {
			return err
		}
	}
	return ErrTooManyConflicts
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
