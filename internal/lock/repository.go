package lock

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"minutepad/pkg/logger"
)

type Repository struct {
	DB *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{DB: db}
}

// PurgeExpired deletes lock rows whose last refresh is older than cutoff.
// Called lazily from every acquire attempt; there is no background sweep,
// so staleness is bounded by TTL plus the time to the next acquire.
func (r *Repository) PurgeExpired(ctx context.Context, cutoff time.Time) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM locks WHERE refreshed_at < $1`, cutoff)
	if err != nil {
		logger.Sugar.Errorf("Failed to purge expired locks: %v", err)
	}
	return err
}

// TryAcquire is the single conditional write that decides mutual
// exclusion: insert, or take over our own row (lease renewal) or an
// expired one. The database serializes concurrent attempts on the unit
// row, so of two simultaneous calls on a free unit exactly one wins.
func (r *Repository) TryAcquire(ctx context.Context, unitID, docID, participantID string, cutoff time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		INSERT INTO locks (unit_id, document_id, holder_id, acquired_at, refreshed_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (unit_id) DO UPDATE
		SET holder_id = EXCLUDED.holder_id, refreshed_at = NOW(),
		    acquired_at = CASE WHEN locks.holder_id = EXCLUDED.holder_id THEN locks.acquired_at ELSE NOW() END
		WHERE locks.holder_id = $3 OR locks.refreshed_at < $4`,
		unitID, docID, participantID, cutoff)
	if err != nil {
		logger.Sugar.Errorf("Failed to acquire lock on unit %s: %v", unitID, err)
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Holder returns the live holder of a unit, if any.
func (r *Repository) Holder(ctx context.Context, unitID string, cutoff time.Time) (string, error) {
	var holder string
	err := r.DB.QueryRowContext(ctx,
		`SELECT holder_id FROM locks WHERE unit_id = $1 AND refreshed_at >= $2`,
		unitID, cutoff).Scan(&holder)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		logger.Sugar.Errorf("Failed to read lock holder for unit %s: %v", unitID, err)
		return "", err
	}
	return holder, nil
}

// Release deletes the lock iff held by the participant. Releasing a free
// unit, or one held by someone else, affects zero rows and is fine.
func (r *Repository) Release(ctx context.Context, unitID, participantID string) error {
	_, err := r.DB.ExecContext(ctx,
		`DELETE FROM locks WHERE unit_id = $1 AND holder_id = $2`, unitID, participantID)
	if err != nil {
		logger.Sugar.Errorf("Failed to release lock on unit %s: %v", unitID, err)
	}
	return err
}
