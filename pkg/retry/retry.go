// Package retry runs an operation again after a failure, following a bounded
// backoff policy.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy builds a fresh backoff schedule for one Do call.
type Policy func() backoff.BackOff

// Notify is called after a failed attempt, before waiting wait.
type Notify func(err error, wait time.Duration)

// Constant retries up to maxRetries times with a fixed delay between attempts.
func Constant(delay time.Duration, maxRetries uint64) Policy {
	return func() backoff.BackOff {
		return backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), maxRetries)
	}
}

// Do calls op until it succeeds, the policy gives up or ctx is done. The last
// error is returned when every attempt failed.
func Do[T any](ctx context.Context, policy Policy, op func(ctx context.Context) (T, error), notify Notify) (T, error) {
	b := backoff.WithContext(policy(), ctx)

	var onRetry backoff.Notify
	if notify != nil {
		onRetry = backoff.Notify(notify)
	}

	return backoff.RetryNotifyWithData(func() (T, error) {
		return op(ctx)
	}, b, onRetry)
}

// Permanent marks err as not worth retrying; Do returns it immediately.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
