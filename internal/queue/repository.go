package queue

import (
	"context"
	"database/sql"
	"errors"

	"minutepad/internal/document/model"
	"minutepad/internal/version"
	"minutepad/pkg/apperr"
	"minutepad/pkg/fingerprint"
	"minutepad/pkg/logger"

	"github.com/lib/pq"
)

type Repository struct {
	DB       *sql.DB
	Versions *version.Repository
}

func NewRepository(db *sql.DB, versions *version.Repository) *Repository {
	return &Repository{DB: db, Versions: versions}
}

func (r *Repository) Insert(ctx context.Context, unitID, docID, submitterID, content string) (int64, error) {
	var id int64
	err := r.DB.QueryRowContext(ctx,
		`INSERT INTO queue_entries (unit_id, document_id, submitter_id, content, submitted_at, processed) VALUES ($1, $2, $3, $4, NOW(), FALSE) RETURNING id`,
		unitID, docID, submitterID, content).Scan(&id)
	if err != nil {
		logger.Sugar.Errorf("Failed to enqueue change for unit %s: %v", unitID, err)
	}
	return id, err
}

// Position counts the unit's unprocessed entries up to and including
// entryID. Entry ids are monotonic, so this tracks the (submitted_at, id)
// order; it is UI feedback, not a correctness input.
func (r *Repository) Position(ctx context.Context, unitID string, entryID int64) (int, error) {
	var pos int
	err := r.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM queue_entries WHERE unit_id = $1 AND NOT processed AND id <= $2`,
		unitID, entryID).Scan(&pos)
	return pos, err
}

func (r *Repository) Depth(ctx context.Context, unitID string) (int, error) {
	var depth int
	err := r.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM queue_entries WHERE unit_id = $1 AND NOT processed`,
		unitID).Scan(&depth)
	if err != nil {
		logger.Sugar.Errorf("Failed to read queue depth for unit %s: %v", unitID, err)
	}
	return depth, err
}

func (r *Repository) UnprocessedUnits(ctx context.Context) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT DISTINCT unit_id FROM queue_entries WHERE NOT processed`)
	if err != nil {
		logger.Sugar.Errorf("Failed to list unprocessed queue units: %v", err)
		return nil, err
	}
	defer rows.Close()

	var units []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	return units, rows.Err()
}

// ProcessUnit retires one unit's batch: the entry with the maximum
// (submitted_at, id) becomes canonical, the canonical content and its
// version snapshot are written, and every selected entry, winner and
// losers alike, flips to processed. All of it commits atomically; no reader
// observes a partially applied batch. Returns the number of entries
// processed.
func (r *Repository) ProcessUnit(ctx context.Context, unitID string) (int, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT id, document_id, submitter_id, content FROM queue_entries WHERE unit_id = $1 AND NOT processed ORDER BY submitted_at, id FOR UPDATE`,
		unitID)
	if err != nil {
		logger.Sugar.Errorf("Failed to select queue batch for unit %s: %v", unitID, err)
		return 0, err
	}

	var ids []int64
	var canonical Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.DocumentID, &e.SubmitterID, &e.Content); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, e.ID)
		canonical = e
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	// Entries pending at finalize time must never land in the document.
	status, err := lockDocumentStatus(ctx, tx, canonical.DocumentID)
	if err != nil {
		return 0, err
	}
	if status == model.StatusFinalized {
		return 0, apperr.Newf(apperr.StateConflict, "document %s is finalized", canonical.DocumentID)
	}

	fp := fingerprint.Of(canonical.Content)
	if err := r.writeCanonical(ctx, tx, unitID, canonical.Content); err != nil {
		return 0, err
	}
	if err := r.Versions.InsertTx(ctx, tx, canonical.DocumentID, unitID, canonical.Content, canonical.SubmitterID, fp); err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE queue_entries SET processed = TRUE WHERE id = ANY($1)`, pq.Array(ids)); err != nil {
		logger.Sugar.Errorf("Failed to mark queue batch processed for unit %s: %v", unitID, err)
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// AppendField is the arbitrator's priority path into a continuation
// field, bypassing the queue. It takes the same row lock on the canonical
// field row that writeCanonical takes, so it can never race a concurrent
// ProcessUnit on the same unit into a lost update. Returns the new
// content's fingerprint.
func (r *Repository) AppendField(ctx context.Context, docID, name, participantID, text string) (string, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	status, err := lockDocumentStatus(ctx, tx, docID)
	if err != nil {
		return "", err
	}
	if status == model.StatusFinalized {
		return "", apperr.Newf(apperr.StateConflict, "document %s is finalized", docID)
	}

	current, err := lockFieldRow(ctx, tx, docID, name)
	if err != nil {
		return "", err
	}

	content := current + text
	fp := fingerprint.Of(content)
	unitID := model.FieldUnitID(docID, name)

	if _, err := tx.ExecContext(ctx,
		`UPDATE document_fields SET content = $1, last_editor = $2, last_edited_at = NOW() WHERE document_id = $3 AND name = $4`,
		content, participantID, docID, name); err != nil {
		logger.Sugar.Errorf("Failed to append to field %s: %v", unitID, err)
		return "", err
	}
	if err := r.Versions.InsertTx(ctx, tx, docID, unitID, content, participantID, fp); err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return fp, nil
}

// writeCanonical writes the batch winner's content, locking the canonical
// row first. Both canonical tables share this gate with the priority
// append path.
func (r *Repository) writeCanonical(ctx context.Context, tx *sql.Tx, unitID, content string) error {
	if d, name, ok := model.SplitFieldUnitID(unitID); ok {
		if _, err := lockFieldRow(ctx, tx, d, name); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE document_fields SET content = $1, last_edited_at = NOW() WHERE document_id = $2 AND name = $3`,
			content, d, name)
		return err
	}

	var got string
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM paragraphs WHERE id = $1 FOR UPDATE`, unitID).Scan(&got)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.Newf(apperr.NotFound, "unit %s not found", unitID)
	}
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE paragraphs SET content = $1, last_edited_at = NOW() WHERE id = $2`, content, unitID)
	return err
}

// lockDocumentStatus locks the document row and returns its status, so a
// concurrent finalize cannot slip between the check and the write.
func lockDocumentStatus(ctx context.Context, tx *sql.Tx, docID string) (model.DocumentStatus, error) {
	var status model.DocumentStatus
	err := tx.QueryRowContext(ctx,
		`SELECT status FROM documents WHERE id = $1 FOR UPDATE`, docID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperr.Newf(apperr.NotFound, "document %s not found", docID)
	}
	return status, err
}

// lockFieldRow creates the field row if needed and locks it FOR UPDATE,
// returning the current content. This is the write gate serializing the
// queue-processing and priority-append paths.
func lockFieldRow(ctx context.Context, tx *sql.Tx, docID, name string) (string, error) {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO document_fields (document_id, name, content, last_edited_at) VALUES ($1, $2, '', NOW()) ON CONFLICT (document_id, name) DO NOTHING`,
		docID, name); err != nil {
		return "", err
	}
	var content string
	err := tx.QueryRowContext(ctx,
		`SELECT content FROM document_fields WHERE document_id = $1 AND name = $2 FOR UPDATE`,
		docID, name).Scan(&content)
	return content, err
}
