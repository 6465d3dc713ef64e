package usage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type pgStore struct {
	DB       *sql.DB
	defaults Defaults
}

func newPGStore(db *sql.DB, defaults Defaults) *pgStore {
	return &pgStore{DB: db, defaults: defaults.normalized()}
}

func (s *pgStore) EnsurePeriod(ctx context.Context, userID string, now time.Time) (Usage, error) {
	return s.inTx(ctx, func(tx *sql.Tx) (Usage, error) {
		return s.lockAndEnsure(ctx, tx, userID, now)
	})
}

// Increment adds one relative to the stored count so concurrent stages for
// the same user never overwrite each other.
func (s *pgStore) Increment(ctx context.Context, userID string, now time.Time) (Usage, error) {
	return s.inTx(ctx, func(tx *sql.Tx) (Usage, error) {
		if _, err := s.lockAndEnsure(ctx, tx, userID, now); err != nil {
			return Usage{}, err
		}
		var u Usage
		err := tx.QueryRowContext(ctx, `
UPDATE usage SET documents_processed_this_month = documents_processed_this_month + 1
WHERE user_id = $1
RETURNING subscription_tier, documents_limit, documents_processed_this_month, usage_reset_date`, userID).
			Scan(&u.SubscriptionTier, &u.DocumentsLimit, &u.DocumentsProcessedThisMonth, &u.UsageResetDate)
		if err != nil {
			return Usage{}, err
		}
		return u, nil
	})
}

func (s *pgStore) Reset(ctx context.Context, userID string, now time.Time) (Usage, error) {
	return s.inTx(ctx, func(tx *sql.Tx) (Usage, error) {
		u, err := s.lockAndEnsure(ctx, tx, userID, now)
		if err != nil {
			return Usage{}, err
		}
		u.DocumentsProcessedThisMonth = 0
		u.UsageResetDate = NextResetDate(now)
		if _, err := tx.ExecContext(ctx, `
UPDATE usage SET documents_processed_this_month = 0, usage_reset_date = $1 WHERE user_id = $2`, u.UsageResetDate, userID); err != nil {
			return Usage{}, err
		}
		return u, nil
	})
}

func (s *pgStore) inTx(ctx context.Context, fn func(tx *sql.Tx) (Usage, error)) (Usage, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return Usage{}, err
	}
	defer func() { _ = tx.Rollback() }()

	u, err := fn(tx)
	if err != nil {
		return Usage{}, err
	}
	if err := tx.Commit(); err != nil {
		return Usage{}, err
	}
	return u, nil
}

// lockAndEnsure locks the user's row, inserting defaults first when none
// exists, and rolls an expired period over.
func (s *pgStore) lockAndEnsure(ctx context.Context, tx *sql.Tx, userID string, now time.Time) (Usage, error) {
	u, err := selectForUpdate(ctx, tx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		d := s.defaults.newUsage(now)
		if _, err := tx.ExecContext(ctx, `
INSERT INTO usage (user_id, subscription_tier, documents_limit, documents_processed_this_month, usage_reset_date)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (user_id) DO NOTHING`,
			userID, d.SubscriptionTier, d.DocumentsLimit, d.DocumentsProcessedThisMonth, d.UsageResetDate); err != nil {
			return Usage{}, err
		}
		// A concurrent first insert may have won; read whichever row exists.
		u, err = selectForUpdate(ctx, tx, userID)
	}
	if err != nil {
		return Usage{}, err
	}

	if next, reset := u.rollover(now); reset {
		u = next
		if _, err := tx.ExecContext(ctx, `
UPDATE usage SET documents_processed_this_month = 0, usage_reset_date = $1 WHERE user_id = $2`, u.UsageResetDate, userID); err != nil {
			return Usage{}, err
		}
	}
	return u, nil
}

func selectForUpdate(ctx context.Context, tx *sql.Tx, userID string) (Usage, error) {
	var u Usage
	err := tx.QueryRowContext(ctx, `
SELECT subscription_tier, documents_limit, documents_processed_this_month, usage_reset_date
FROM usage WHERE user_id = $1 FOR UPDATE`, userID).
		Scan(&u.SubscriptionTier, &u.DocumentsLimit, &u.DocumentsProcessedThisMonth, &u.UsageResetDate)
	return u, err
}
