package reliability

import (
	"context"
	"time"
)

// RetryPolicy bounds how often a transient failure is retried.
type RetryPolicy struct {
	Attempts int
	Base     time.Duration
	Cap      time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Base: 200 * time.Millisecond, Cap: 2 * time.Second}
}

// Do runs fn until it succeeds, returns an error that retryable rejects, or
// the attempts are spent. The last error is returned.
func Do(ctx context.Context, p RetryPolicy, retryable func(error) bool, fn func(context.Context) error) error {
	if p.Attempts <= 0 {
		p.Attempts = 1
	}
	var err error
	for attempt := 0; attempt < p.Attempts; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(ExponentialBackoff(attempt-1, p.Base, p.Cap))
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || retryable == nil || !retryable(err) {
			return err
		}
	}
	return err
}
