package gateway

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Per-call deadlines. Every outbound call carries one of these.
const (
	ReadDeadline   = 30 * time.Second
	WriteDeadline  = 60 * time.Second
	ImportDeadline = 120 * time.Second
	ProbeDeadline  = 5 * time.Second
)

// withRetry runs fn, retrying transient failures with exponential backoff
// up to attempts extra tries. Permanent failures return immediately.
func withRetry(ctx context.Context, attempts int, fn func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 10 * time.Second

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(attempts)), ctx)

	return backoff.Retry(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if IsTransient(err) {
			return err
		}
		return backoff.Permanent(err)
	}, policy)
}
