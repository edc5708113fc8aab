package scheduler

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultRetryInitial  = time.Second
	DefaultRetryMaxDelay = 5 * time.Minute
)

// RetryPolicy retries a failing call with delays doubling from Initial up to
// MaxDelay. Zero MaxAttempts and zero MaxElapsed both mean no limit.
type RetryPolicy struct {
	Initial     time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
	MaxElapsed  time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Initial: DefaultRetryInitial, MaxDelay: DefaultRetryMaxDelay}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Initial
	if b.InitialInterval <= 0 {
		b.InitialInterval = DefaultRetryInitial
	}
	b.MaxInterval = p.MaxDelay
	if b.MaxInterval <= 0 {
		b.MaxInterval = DefaultRetryMaxDelay
	}
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = p.MaxElapsed
	b.Reset()

	var bo backoff.BackOff = b
	if p.MaxAttempts > 0 {
		bo = backoff.WithMaxRetries(bo, uint64(p.MaxAttempts-1))
	}
	return backoff.WithContext(bo, ctx)
}

// Do runs op until it succeeds, returns a permanent error, the policy gives
// up, or ctx ends. notify is called before every wait.
func (p RetryPolicy) Do(ctx context.Context, op func() error, notify func(err error, wait time.Duration)) error {
	return backoff.RetryNotify(op, p.backOff(ctx), notify)
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
