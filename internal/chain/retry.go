package chain

import (
	"context"
	"time"

	"github.com/go-pkgz/lgr"
	"github.com/paimon-protocol/erde/internal/erde"
)

// retryPolicy implements §4.A's retry policy: up to Attempts tries, with
// linear-in-attempt backoff BaseDelay*(attempt+1) between them. Only a
// *erde.Error of KindChainTransient is retried; anything else (a
// contract revert, a malformed address) propagates on the first try.
type retryPolicy struct {
	attempts  int
	baseDelay time.Duration
	log       lgr.L
}

// withRetry runs fn up to p.attempts times, sleeping BaseDelay*(attempt+1)
// between attempts. Every attempt must target the same pinned state (the
// caller closes over a fixed blockTag) — this function does not vary
// any parameter across retries (§4.A "historical consistency").
func (p retryPolicy) withRetry(ctx context.Context, stage, op string, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < p.attempts; attempt++ {
		if attempt > 0 {
			delay := p.baseDelay * time.Duration(attempt+1)
			p.log.Logf("DEBUG retrying %s (attempt %d/%d) after %s: %v", op, attempt+1, p.attempts, delay, lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}

		if !erde.IsRetryable(err) {
			return err
		}
		lastErr = err
	}
	return erde.NewChainTransient(stage, op+": exhausted retries", lastErr)
}
