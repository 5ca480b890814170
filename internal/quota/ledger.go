// Package quota implements the Quota Ledger: per-user
// daily token budget enforcement backed by Postgres, with in-process
// per-user serialization so concurrent requests from the same user
// can't race past the ceiling between check and debit.
package quota

import (
	"context"
	"time"

	"github.com/nocturnal-archive/gateway/internal/apperr"
	"github.com/nocturnal-archive/gateway/internal/concurrency"
	"github.com/nocturnal-archive/gateway/internal/store"
)

// Ledger enforces DAILY_CEILING per user per UTC day.
type Ledger struct {
	repo    *store.QuotaRepo
	ceiling int64
	locks   *concurrency.KeyedMutex
	now     func() time.Time
}

// New constructs a Ledger with the given daily token ceiling.
func New(repo *store.QuotaRepo, ceiling int64) *Ledger {
	return &Ledger{
		repo:    repo,
		ceiling: ceiling,
		locks:   concurrency.NewKeyedMutex(),
		now:     time.Now,
	}
}

// Check reports whether userID has at least estimatedCost tokens of
// headroom left today, without consuming any. Used to short-circuit
// the Query Pipeline before dispatching adapters and calling the LLM.
func (l *Ledger) Check(ctx context.Context, userID string, estimatedCost int64) error {
	unlock := l.locks.Lock(userID)
	defer unlock()

	consumed, err := l.repo.TokensConsumed(ctx, userID, l.now())
	if err != nil {
		return err
	}
	if consumed+estimatedCost > l.ceiling {
		return apperr.New(apperr.QuotaExceeded, "daily token quota exceeded")
	}
	return nil
}

// Debit atomically subtracts actualCost from the user's remaining
// daily budget. Fails QUOTA_EXCEEDED (no tokens debited) if the actual
// cost would push the user over DAILY_CEILING — this can still happen
// even after a successful Check, since the LLM's real usage may exceed
// the estimate used at check time.
func (l *Ledger) Debit(ctx context.Context, userID string, actualCost int64) (remaining int64, err error) {
	unlock := l.locks.Lock(userID)
	defer unlock()

	total, ok, err := l.repo.TryDebit(ctx, userID, l.now(), actualCost, l.ceiling)
	if err != nil {
		return 0, err
	}
	if !ok {
		return l.ceiling - total, apperr.New(apperr.QuotaExceeded, "daily token quota exceeded")
	}
	return l.ceiling - total, nil
}

// Remaining returns the user's unconsumed token budget for the current
// UTC day, used by the GET /api/quota endpoint.
func (l *Ledger) Remaining(ctx context.Context, userID string) (int64, error) {
	consumed, err := l.repo.TokensConsumed(ctx, userID, l.now())
	if err != nil {
		return 0, err
	}
	remaining := l.ceiling - consumed
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// Ceiling returns the configured daily token ceiling.
func (l *Ledger) Ceiling() int64 { return l.ceiling }
