package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

// QuotaRepo is the single owner of the daily_quota table. It provides
// the atomic read-modify-write debit the Quota Ledger needs: TryDebit
// runs in a transaction that locks the day's row with
// SELECT ... FOR UPDATE before updating it.
type QuotaRepo struct {
	db *DB
}

// NewQuotaRepo constructs a QuotaRepo over db.
func NewQuotaRepo(db *DB) *QuotaRepo { return &QuotaRepo{db: db} }

// TokensConsumed returns the tokens consumed by userID on utcDate (the
// YYYY-MM-DD UTC date), or 0 if no row exists yet.
func (r *QuotaRepo) TokensConsumed(ctx context.Context, userID string, utcDate time.Time) (int64, error) {
	var consumed int64
	row := r.db.Pool.QueryRow(ctx,
		`SELECT tokens_consumed FROM daily_quota WHERE user_id = $1 AND utc_date = $2`,
		userID, utcDate.UTC().Format("2006-01-02"))
	err := row.Scan(&consumed)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return consumed, err
}

// TryDebit atomically adds cost to the user's tokens_consumed for
// utcDate, but only if the resulting total does not exceed ceiling.
// Returns the post-debit total and ok=true on success; ok=false and
// the pre-debit total if the ceiling would be exceeded — no row is
// mutated in that case.
func (r *QuotaRepo) TryDebit(ctx context.Context, userID string, utcDate time.Time, cost, ceiling int64) (total int64, ok bool, err error) {
	date := utcDate.UTC().Format("2006-01-02")

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return 0, false, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`INSERT INTO daily_quota (user_id, utc_date, tokens_consumed) VALUES ($1, $2, 0)
		 ON CONFLICT (user_id, utc_date) DO NOTHING`,
		userID, date)
	if err != nil {
		return 0, false, err
	}

	var current int64
	if err := tx.QueryRow(ctx,
		`SELECT tokens_consumed FROM daily_quota WHERE user_id = $1 AND utc_date = $2 FOR UPDATE`,
		userID, date).Scan(&current); err != nil {
		return 0, false, err
	}

	if current+cost > ceiling {
		return current, false, tx.Commit(ctx)
	}

	newTotal := current + cost
	if _, err := tx.Exec(ctx,
		`UPDATE daily_quota SET tokens_consumed = $1 WHERE user_id = $2 AND utc_date = $3`,
		newTotal, userID, date); err != nil {
		return 0, false, err
	}

	return newTotal, true, tx.Commit(ctx)
}
