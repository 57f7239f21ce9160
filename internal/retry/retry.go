// Package retry is the Retry Driver (spec.md §4.5): it wraps an
// orchestrator call with bounded-attempt exponential backoff and
// jitter, absorbing transient concurrency failures so they never leak
// to callers.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/warp/coinvault/internal/ledger"
	"github.com/warp/coinvault/internal/ledgerr"
	"github.com/warp/coinvault/internal/logging"
)

// Driver executes operations with bounded retry on transient conflicts.
type Driver struct {
	maxAttempts uint64
	baseBackoff time.Duration
	jitter      time.Duration
	log         *logging.Logger
}

// New builds a Driver. maxAttempts, baseBackoff and jitter come from
// config.RetryConfig.
func New(maxAttempts uint64, baseBackoff, jitter time.Duration, log *logging.Logger) *Driver {
	return &Driver{
		maxAttempts: maxAttempts,
		baseBackoff: baseBackoff,
		jitter:      jitter,
		log:         log,
	}
}

// Do runs op, retrying on errors ledgerr classifies as TransientConflict
// up to maxAttempts times total, with exponential backoff and jitter
// (spec.md §4.5: `delay = base * 2^(attempt-1) + U(0, jitter_ms)`).
// The `U(0, jitter)` term is drawn here and added on top of go-retry's
// exponential backoff; a zero jitter adds nothing.
// A unique-violation race on the idempotency key (ledger.ErrIdempotencyKeyRace)
// is deliberately not retried here — the caller re-runs its fast-path
// lookup instead, per spec.md §4.5.
func (d *Driver) Do(ctx context.Context, op func(ctx context.Context) (any, error)) (any, error) {
	backoff := retry.NewExponential(d.baseBackoff)
	if d.jitter > 0 {
		exponential := backoff
		backoff = retry.BackoffFunc(func() (time.Duration, bool) {
			val, stop := exponential.Next()
			if stop {
				return 0, true
			}
			return val + time.Duration(rand.Int63n(int64(d.jitter))), false
		})
	}
	backoff = retry.WithMaxRetries(d.maxAttempts-1, backoff)

	var result any
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		res, err := op(ctx)
		if err == nil {
			result = res
			return nil
		}

		if errors.Is(err, ledger.ErrIdempotencyKeyRace) {
			return err
		}

		if ledgerr.IsRetryable(err) {
			if d.log != nil {
				d.log.Warn(ctx, "retrying after transient conflict")
			}
			return retry.RetryableError(err)
		}

		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
