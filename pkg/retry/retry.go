package retry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy returns an exponential backoff limited to maxRetries retries and
// bound to ctx
func Policy(ctx context.Context, maxRetries int, initial time.Duration) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if initial > 0 {
		b.InitialInterval = initial
	}
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0

	if maxRetries < 0 {
		maxRetries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxRetries)), ctx)
}

// Do runs op until it succeeds, returns a permanent error or the policy
// gives up. The error returned is the last one op produced.
func Do(ctx context.Context, maxRetries int, initial time.Duration, op func() error) error {
	err := backoff.Retry(op, Policy(ctx, maxRetries, initial))
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return permanent.Err
	}
	return err
}

// Permanent marks err as not worth retrying
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// RetryableStatus reports whether an HTTP status is worth retrying. Client
// errors other than 429 are permanent.
func RetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= 500
}
