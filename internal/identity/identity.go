// Package identity is the engine's authorization collaborator. Participant
// ids are opaque; whether a participant may touch a document is decided
// here and nowhere else, and every decision fails closed.
package identity

import (
	"context"
	"database/sql"
	"errors"

	"minutepad/pkg/apperr"
	"minutepad/pkg/logger"
)

// Authorizer answers whether a participant may touch a document. Callers
// treat any non-nil error as a refusal.
type Authorizer interface {
	// CanAccess returns nil iff the participant is a member of the
	// document (initiator or collaborator).
	CanAccess(ctx context.Context, docID, participantID string) error
	// CanArbitrate returns nil iff the participant is the document's
	// designated arbitrator (the initiator when none is assigned).
	CanArbitrate(ctx context.Context, docID, participantID string) error
	// IsInitiator returns nil iff the participant created the document.
	IsInitiator(ctx context.Context, docID, participantID string) error
}

type SQLAuthorizer struct {
	DB *sql.DB
}

func NewSQLAuthorizer(db *sql.DB) *SQLAuthorizer {
	return &SQLAuthorizer{DB: db}
}

func (a *SQLAuthorizer) CanAccess(ctx context.Context, docID, participantID string) error {
	if docID == "" || participantID == "" {
		return apperr.New(apperr.InvalidArgument, "missing document or participant id")
	}
	var hasAccess bool
	err := a.DB.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM documents WHERE id = $1 AND initiator_id = $2
			UNION
			SELECT 1 FROM collaborators WHERE document_id = $1 AND participant_id = $2
		)`, docID, participantID).Scan(&hasAccess)
	if err != nil {
		logger.Sugar.Errorf("Failed to check access for participant %s on doc %s: %v", participantID, docID, err)
		return apperr.Wrap(apperr.StorageError, "check access", err)
	}
	if !hasAccess {
		return apperr.Newf(apperr.AuthorizationDenied, "participant %s is not a member of document %s", participantID, docID)
	}
	return nil
}

func (a *SQLAuthorizer) CanArbitrate(ctx context.Context, docID, participantID string) error {
	arbitratorID, initiatorID, err := a.roles(ctx, docID)
	if err != nil {
		return err
	}
	if arbitratorID == "" {
		arbitratorID = initiatorID
	}
	if participantID == "" || participantID != arbitratorID {
		return apperr.Newf(apperr.AuthorizationDenied, "participant %s is not the arbitrator of document %s", participantID, docID)
	}
	return nil
}

func (a *SQLAuthorizer) IsInitiator(ctx context.Context, docID, participantID string) error {
	_, initiatorID, err := a.roles(ctx, docID)
	if err != nil {
		return err
	}
	if participantID == "" || participantID != initiatorID {
		return apperr.Newf(apperr.AuthorizationDenied, "participant %s did not initiate document %s", participantID, docID)
	}
	return nil
}

func (a *SQLAuthorizer) roles(ctx context.Context, docID string) (arbitratorID, initiatorID string, err error) {
	var arb sql.NullString
	err = a.DB.QueryRowContext(ctx,
		"SELECT arbitrator_id, initiator_id FROM documents WHERE id = $1", docID).
		Scan(&arb, &initiatorID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", apperr.Newf(apperr.NotFound, "document %s not found", docID)
	}
	if err != nil {
		logger.Sugar.Errorf("Failed to load roles for doc %s: %v", docID, err)
		return "", "", apperr.Wrap(apperr.StorageError, "load document roles", err)
	}
	return arb.String, initiatorID, nil
}
