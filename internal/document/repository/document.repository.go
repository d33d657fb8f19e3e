package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"minutepad/internal/document/model"
	"minutepad/internal/version"
	"minutepad/pkg/apperr"
	"minutepad/pkg/logger"
)

const (
	// Order keys are spaced by orderStep so midpoint insertion has room.
	// When the gap between neighbors drops under minOrderGap the insert
	// renumbers the document's paragraphs first, in the same transaction.
	orderStep  = 1024.0
	minOrderGap = 1e-6

	// orderSentinel is out of range for real order keys (which are always
	// positive), so a reorder in flight never exposes two paragraphs
	// sharing a key.
	orderSentinel = -1.0
)

type DocumentRepository struct {
	DB       *sql.DB
	Versions *version.Repository
}

func NewDocumentRepository(db *sql.DB, versions *version.Repository) *DocumentRepository {
	return &DocumentRepository{DB: db, Versions: versions}
}

// Create inserts the document and its seed paragraph in one transaction; a
// document never exists with zero paragraphs.
func (r *DocumentRepository) Create(ctx context.Context, doc model.Document, paragraphID, seedText string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (id, title, status, initiator_id, arbitrator_id, meeting_id, created_at) VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NOW())`,
		doc.ID, doc.Title, doc.Status, doc.InitiatorID, doc.ArbitratorID, doc.MeetingID)
	if err != nil {
		logger.Sugar.Errorf("Failed to create document: %v", err)
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO paragraphs (id, document_id, ord, content, last_editor, last_edited_at) VALUES ($1, $2, $3, $4, $5, NOW())`,
		paragraphID, doc.ID, orderStep, seedText, doc.InitiatorID)
	if err != nil {
		logger.Sugar.Errorf("Failed to seed paragraph for doc %s: %v", doc.ID, err)
		return err
	}

	return tx.Commit()
}

func (r *DocumentRepository) Get(ctx context.Context, docID string) (*model.Document, error) {
	var doc model.Document
	var arb, meeting sql.NullString
	var finalizedAt sql.NullTime
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, title, status, initiator_id, arbitrator_id, meeting_id, created_at, finalized_at FROM documents WHERE id = $1`,
		docID).Scan(&doc.ID, &doc.Title, &doc.Status, &doc.InitiatorID, &arb, &meeting, &doc.CreatedAt, &finalizedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Newf(apperr.NotFound, "document %s not found", docID)
	}
	if err != nil {
		logger.Sugar.Errorf("Failed to get document %s: %v", docID, err)
		return nil, err
	}
	doc.ArbitratorID = arb.String
	doc.MeetingID = meeting.String
	if finalizedAt.Valid {
		doc.FinalizedAt = &finalizedAt.Time
	}
	return &doc, nil
}

func (r *DocumentRepository) ListByParticipant(ctx context.Context, participantID string) ([]model.DocumentMetadata, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT d.id, d.title, d.status, d.initiator_id,
		       COALESCE((SELECT MAX(p.last_edited_at) FROM paragraphs p WHERE p.document_id = d.id), d.created_at) AS updated_at
		FROM documents d
		WHERE d.initiator_id = $1
		   OR EXISTS (SELECT 1 FROM collaborators c WHERE c.document_id = d.id AND c.participant_id = $1)
		ORDER BY updated_at DESC`, participantID)
	if err != nil {
		logger.Sugar.Errorf("Failed to list documents for participant %s: %v", participantID, err)
		return nil, err
	}
	defer rows.Close()

	var docs []model.DocumentMetadata
	for rows.Next() {
		var m model.DocumentMetadata
		var initiatorID string
		if err := rows.Scan(&m.ID, &m.Title, &m.Status, &initiatorID, &m.UpdatedAt); err != nil {
			return nil, err
		}
		m.IsInitiator = initiatorID == participantID
		docs = append(docs, m)
	}
	return docs, rows.Err()
}

func (r *DocumentRepository) AddCollaborator(ctx context.Context, docID, participantID, role string) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO collaborators (document_id, participant_id, role) VALUES ($1, $2, $3) ON CONFLICT (document_id, participant_id) DO UPDATE SET role = $3`,
		docID, participantID, role)
	if err != nil {
		logger.Sugar.Errorf("Failed to add collaborator %s to doc %s: %v", participantID, docID, err)
	}
	return err
}

// Delete removes the document. Paragraphs, fields, versions, queue entries
// and lock rows all cascade in storage.
func (r *DocumentRepository) Delete(ctx context.Context, docID string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, docID)
	if err != nil {
		logger.Sugar.Errorf("Failed to delete doc %s: %v", docID, err)
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.Newf(apperr.NotFound, "document %s not found", docID)
	}
	return nil
}

func (r *DocumentRepository) Finalize(ctx context.Context, docID string) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE documents SET status = $1, finalized_at = NOW() WHERE id = $2 AND status <> $1`,
		model.StatusFinalized, docID)
	if err != nil {
		logger.Sugar.Errorf("Failed to finalize doc %s: %v", docID, err)
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.Newf(apperr.StateConflict, "document %s is already finalized", docID)
	}
	return nil
}

func (r *DocumentRepository) GetParagraph(ctx context.Context, paragraphID string) (*model.Paragraph, error) {
	var p model.Paragraph
	var lastEditor sql.NullString
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, document_id, ord, content, last_editor, last_edited_at FROM paragraphs WHERE id = $1`,
		paragraphID).Scan(&p.ID, &p.DocumentID, &p.Order, &p.Content, &lastEditor, &p.LastEditedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Newf(apperr.NotFound, "paragraph %s not found", paragraphID)
	}
	if err != nil {
		logger.Sugar.Errorf("Failed to get paragraph %s: %v", paragraphID, err)
		return nil, err
	}
	p.LastEditor = lastEditor.String
	return &p, nil
}

func (r *DocumentRepository) ListParagraphs(ctx context.Context, docID string) ([]model.Paragraph, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, document_id, ord, content, last_editor, last_edited_at FROM paragraphs WHERE document_id = $1 ORDER BY ord, id`,
		docID)
	if err != nil {
		logger.Sugar.Errorf("Failed to list paragraphs for doc %s: %v", docID, err)
		return nil, err
	}
	defer rows.Close()

	var paras []model.Paragraph
	for rows.Next() {
		var p model.Paragraph
		var lastEditor sql.NullString
		if err := rows.Scan(&p.ID, &p.DocumentID, &p.Order, &p.Content, &lastEditor, &p.LastEditedAt); err != nil {
			return nil, err
		}
		p.LastEditor = lastEditor.String
		paras = append(paras, p)
	}
	return paras, rows.Err()
}

// InsertParagraph places a new paragraph after afterOrder (appends when
// nil). Inserts on the same document are serialized by a row lock on the
// document, so two concurrent inserts at the same position can never
// compute the same midpoint.
func (r *DocumentRepository) InsertParagraph(ctx context.Context, docID, paragraphID string, afterOrder *float64, editor string) (*model.Paragraph, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	status, err := lockDocument(ctx, tx, docID)
	if err != nil {
		return nil, err
	}
	if status == model.StatusFinalized {
		return nil, apperr.Newf(apperr.StateConflict, "document %s is finalized", docID)
	}

	var newOrd float64
	if afterOrder == nil {
		var maxOrd float64
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(ord), 0) FROM paragraphs WHERE document_id = $1`, docID).Scan(&maxOrd); err != nil {
			return nil, err
		}
		newOrd = maxOrd + orderStep
	} else {
		after := *afterOrder
		var next sql.NullFloat64
		if err := tx.QueryRowContext(ctx,
			`SELECT MIN(ord) FROM paragraphs WHERE document_id = $1 AND ord > $2`, docID, after).Scan(&next); err != nil {
			return nil, err
		}
		switch {
		case !next.Valid:
			newOrd = after + orderStep
		case next.Float64-after > minOrderGap:
			newOrd = after + (next.Float64-after)/2
		default:
			// Gap exhausted: renumber onto fresh multiples of orderStep,
			// then land in the middle of the reopened gap.
			after, err = renumberParagraphs(ctx, tx, docID, after)
			if err != nil {
				return nil, err
			}
			newOrd = after + orderStep/2
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO paragraphs (id, document_id, ord, content, last_editor, last_edited_at) VALUES ($1, $2, $3, '', $4, NOW())`,
		paragraphID, docID, newOrd, editor)
	if err != nil {
		logger.Sugar.Errorf("Failed to insert paragraph into doc %s: %v", docID, err)
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &model.Paragraph{ID: paragraphID, DocumentID: docID, Order: newOrd, LastEditor: editor, LastEditedAt: time.Now()}, nil
}

// DeleteParagraph removes a paragraph, rejecting the document's last one.
// Any lock on the deleted unit goes with it in the same transaction, so an
// orphaned lock is never left holdable.
func (r *DocumentRepository) DeleteParagraph(ctx context.Context, paragraphID string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var docID string
	err = tx.QueryRowContext(ctx,
		`SELECT document_id FROM paragraphs WHERE id = $1 FOR UPDATE`, paragraphID).Scan(&docID)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.Newf(apperr.NotFound, "paragraph %s not found", paragraphID)
	}
	if err != nil {
		return err
	}

	status, err := lockDocument(ctx, tx, docID)
	if err != nil {
		return err
	}
	if status == model.StatusFinalized {
		return apperr.Newf(apperr.StateConflict, "document %s is finalized", docID)
	}

	var count int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM paragraphs WHERE document_id = $1`, docID).Scan(&count); err != nil {
		return err
	}
	if count <= 1 {
		return apperr.Newf(apperr.StateConflict, "document %s has only one paragraph", docID)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM paragraphs WHERE id = $1`, paragraphID); err != nil {
		logger.Sugar.Errorf("Failed to delete paragraph %s: %v", paragraphID, err)
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM locks WHERE unit_id = $1`, paragraphID); err != nil {
		return err
	}

	return tx.Commit()
}

// SwapOrders swaps the order keys of two paragraphs through the sentinel,
// so no concurrent reader ever observes both paragraphs on one key.
func (r *DocumentRepository) SwapOrders(ctx context.Context, aID, bID string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Rows are locked in id order regardless of argument order, so two
	// concurrent swaps of the same pair cannot deadlock on each other.
	firstID, secondID := aID, bID
	if secondID < firstID {
		firstID, secondID = secondID, firstID
	}
	firstDoc, firstOrd, err := lockParagraph(ctx, tx, firstID)
	if err != nil {
		return err
	}
	secondDoc, secondOrd, err := lockParagraph(ctx, tx, secondID)
	if err != nil {
		return err
	}
	if firstDoc != secondDoc {
		return apperr.New(apperr.InvalidArgument, "paragraphs belong to different documents")
	}
	aDoc, aOrd, bOrd := firstDoc, firstOrd, secondOrd
	if firstID != aID {
		aOrd, bOrd = secondOrd, firstOrd
	}

	status, err := lockDocument(ctx, tx, aDoc)
	if err != nil {
		return err
	}
	if status == model.StatusFinalized {
		return apperr.Newf(apperr.StateConflict, "document %s is finalized", aDoc)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE paragraphs SET ord = $1 WHERE id = $2`, orderSentinel, aID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE paragraphs SET ord = $1 WHERE id = $2`, aOrd, bID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE paragraphs SET ord = $1 WHERE id = $2`, bOrd, aID); err != nil {
		return err
	}

	return tx.Commit()
}

// SaveParagraph writes content and appends the version snapshot in one
// transaction. The write is conditional on the participant holding a live
// lock; zero rows means the lease is not held. The document row is locked
// and its status checked first, so a lease acquired before finalization
// cannot write into a finalized document.
func (r *DocumentRepository) SaveParagraph(ctx context.Context, paragraphID, docID, participantID, content, fp string, lockCutoff time.Time) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	status, err := lockDocument(ctx, tx, docID)
	if err != nil {
		return err
	}
	if status == model.StatusFinalized {
		return apperr.Newf(apperr.StateConflict, "document %s is finalized", docID)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE paragraphs SET content = $1, last_editor = $2, last_edited_at = NOW() WHERE id = $3 AND EXISTS (SELECT 1 FROM locks WHERE unit_id = $3 AND holder_id = $2 AND refreshed_at >= $4)`,
		content, participantID, paragraphID, lockCutoff)
	if err != nil {
		logger.Sugar.Errorf("Failed to save paragraph %s: %v", paragraphID, err)
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.Newf(apperr.LockConflict, "participant %s holds no live lock on unit %s", participantID, paragraphID)
	}

	if err := r.Versions.InsertTx(ctx, tx, docID, paragraphID, content, participantID, fp); err != nil {
		return err
	}

	return tx.Commit()
}

// SaveField is SaveParagraph for a named document field; the row is created
// lazily on first write.
func (r *DocumentRepository) SaveField(ctx context.Context, docID, name, participantID, content, fp string, lockCutoff time.Time) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	status, err := lockDocument(ctx, tx, docID)
	if err != nil {
		return err
	}
	if status == model.StatusFinalized {
		return apperr.Newf(apperr.StateConflict, "document %s is finalized", docID)
	}

	unitID := model.FieldUnitID(docID, name)

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO document_fields (document_id, name, content, last_edited_at) VALUES ($1, $2, '', NOW()) ON CONFLICT (document_id, name) DO NOTHING`,
		docID, name); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE document_fields SET content = $1, last_editor = $2, last_edited_at = NOW() WHERE document_id = $3 AND name = $4 AND EXISTS (SELECT 1 FROM locks WHERE unit_id = $5 AND holder_id = $2 AND refreshed_at >= $6)`,
		content, participantID, docID, name, unitID, lockCutoff)
	if err != nil {
		logger.Sugar.Errorf("Failed to save field %s: %v", unitID, err)
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.Newf(apperr.LockConflict, "participant %s holds no live lock on unit %s", participantID, unitID)
	}

	if err := r.Versions.InsertTx(ctx, tx, docID, unitID, content, participantID, fp); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *DocumentRepository) GetField(ctx context.Context, docID, name string) (*model.Field, error) {
	var f model.Field
	var lastEditor sql.NullString
	err := r.DB.QueryRowContext(ctx,
		`SELECT document_id, name, content, last_editor, last_edited_at FROM document_fields WHERE document_id = $1 AND name = $2`,
		docID, name).Scan(&f.DocumentID, &f.Name, &f.Content, &lastEditor, &f.LastEditedAt)
	if errors.Is(err, sql.ErrNoRows) {
		// Fields are lazily created; an absent row reads as empty.
		return &model.Field{DocumentID: docID, Name: name}, nil
	}
	if err != nil {
		logger.Sugar.Errorf("Failed to get field %s/%s: %v", docID, name, err)
		return nil, err
	}
	f.LastEditor = lastEditor.String
	return &f, nil
}

// ResolveUnit maps a unit id to its document. Field units parse locally
// but still require the document to exist.
func (r *DocumentRepository) ResolveUnit(ctx context.Context, unitID string) (docID, fieldName string, err error) {
	if d, name, ok := model.SplitFieldUnitID(unitID); ok {
		var exists bool
		if err := r.DB.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM documents WHERE id = $1)`, d).Scan(&exists); err != nil {
			logger.Sugar.Errorf("Failed to resolve unit %s: %v", unitID, err)
			return "", "", err
		}
		if !exists {
			return "", "", apperr.Newf(apperr.NotFound, "unit %s not found", unitID)
		}
		return d, name, nil
	}

	err = r.DB.QueryRowContext(ctx,
		`SELECT document_id FROM paragraphs WHERE id = $1`, unitID).Scan(&docID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", apperr.Newf(apperr.NotFound, "unit %s not found", unitID)
	}
	if err != nil {
		logger.Sugar.Errorf("Failed to resolve unit %s: %v", unitID, err)
		return "", "", err
	}
	return docID, "", nil
}

// UnitContent reads the canonical content of a unit (paragraph or field).
func (r *DocumentRepository) UnitContent(ctx context.Context, unitID string) (docID, content string, err error) {
	if d, name, ok := model.SplitFieldUnitID(unitID); ok {
		f, err := r.GetField(ctx, d, name)
		if err != nil {
			return "", "", err
		}
		return d, f.Content, nil
	}
	p, err := r.GetParagraph(ctx, unitID)
	if err != nil {
		return "", "", err
	}
	return p.DocumentID, p.Content, nil
}

func lockDocument(ctx context.Context, tx *sql.Tx, docID string) (model.DocumentStatus, error) {
	var status model.DocumentStatus
	err := tx.QueryRowContext(ctx,
		`SELECT status FROM documents WHERE id = $1 FOR UPDATE`, docID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperr.Newf(apperr.NotFound, "document %s not found", docID)
	}
	return status, err
}

func lockParagraph(ctx context.Context, tx *sql.Tx, paragraphID string) (docID string, ord float64, err error) {
	err = tx.QueryRowContext(ctx,
		`SELECT document_id, ord FROM paragraphs WHERE id = $1 FOR UPDATE`, paragraphID).Scan(&docID, &ord)
	if errors.Is(err, sql.ErrNoRows) {
		return "", 0, apperr.Newf(apperr.NotFound, "paragraph %s not found", paragraphID)
	}
	return docID, ord, err
}

// renumberParagraphs rewrites a document's order keys onto consecutive
// multiples of orderStep and returns the new key of the paragraph that
// previously sat at afterOrder. When afterOrder is below every existing
// key (a front insert) it returns zero, placing the caller's midpoint
// ahead of the renumbered first paragraph.
func renumberParagraphs(ctx context.Context, tx *sql.Tx, docID string, afterOrder float64) (float64, error) {
	var afterID string
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM paragraphs WHERE document_id = $1 AND ord <= $2 ORDER BY ord DESC, id DESC LIMIT 1`,
		docID, afterOrder).Scan(&afterID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE paragraphs p SET ord = r.rn * $2 FROM (SELECT id, ROW_NUMBER() OVER (ORDER BY ord, id) AS rn FROM paragraphs WHERE document_id = $1) r WHERE p.id = r.id`,
		docID, orderStep)
	if err != nil {
		return 0, err
	}

	if afterID == "" {
		return 0, nil
	}

	var newOrd float64
	err = tx.QueryRowContext(ctx,
		`SELECT ord FROM paragraphs WHERE id = $1`, afterID).Scan(&newOrd)
	return newOrd, err
}
