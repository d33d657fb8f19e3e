package version

import (
	"context"
	"database/sql"

	"minutepad/pkg/logger"
)

const insertSQL = `INSERT INTO versions (document_id, unit_id, content, modifier_id, modified_at, fingerprint) VALUES ($1, $2, $3, $4, NOW(), $5)`

type Repository struct {
	DB *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{DB: db}
}

// InsertTx appends a snapshot inside a caller-owned transaction, so the
// snapshot commits or rolls back with the canonical write it describes.
func (r *Repository) InsertTx(ctx context.Context, tx *sql.Tx, docID, unitID, content, modifierID, fp string) error {
	_, err := tx.ExecContext(ctx, insertSQL, docID, unitID, content, modifierID, fp)
	if err != nil {
		logger.Sugar.Errorf("Failed to append version for unit %s: %v", unitID, err)
	}
	return err
}

// ListByUnit returns a unit's history, newest first.
func (r *Repository) ListByUnit(ctx context.Context, unitID string, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, document_id, unit_id, content, modifier_id, modified_at, fingerprint FROM versions WHERE unit_id = $1 ORDER BY id DESC LIMIT $2`,
		unitID, limit)
	if err != nil {
		logger.Sugar.Errorf("Failed to list versions for unit %s: %v", unitID, err)
		return nil, err
	}
	defer rows.Close()

	var snaps []Snapshot
	for rows.Next() {
		var s Snapshot
		if err := rows.Scan(&s.ID, &s.DocumentID, &s.UnitID, &s.Content, &s.ModifierID, &s.ModifiedAt, &s.Fingerprint); err != nil {
			return nil, err
		}
		snaps = append(snaps, s)
	}
	return snaps, rows.Err()
}
