package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"minutepad/internal/document/model"
	"minutepad/internal/document/repository"
	"minutepad/internal/identity"
	"minutepad/internal/version"
	"minutepad/pkg/apperr"
	"minutepad/pkg/fingerprint"
	"minutepad/pkg/metrics"
)

type DocumentService struct {
	Repo     *repository.DocumentRepository
	Versions *version.Repository
	Auth     identity.Authorizer
	LockTTL  time.Duration
}

func NewDocumentService(repo *repository.DocumentRepository, versions *version.Repository, auth identity.Authorizer, lockTTL time.Duration) *DocumentService {
	return &DocumentService{Repo: repo, Versions: versions, Auth: auth, LockTTL: lockTTL}
}

// CreateDocument creates a document with its seed paragraph. The initiator
// becomes the document's arbitrator until one is assigned externally.
func (s *DocumentService) CreateDocument(ctx context.Context, initiatorID string, req model.CreateDocRequest) (*model.CreateDocResponse, error) {
	if initiatorID == "" {
		return nil, apperr.New(apperr.InvalidArgument, "missing initiator id")
	}
	title := req.Title
	if title == "" {
		title = "Untitled Protocol"
	}

	docID := generateID()
	paragraphID := generateID()
	if docID == "" || paragraphID == "" {
		return nil, apperr.New(apperr.StorageError, "failed to generate ids")
	}

	doc := model.Document{
		ID:          docID,
		Title:       title,
		Status:      model.StatusDraft,
		InitiatorID: initiatorID,
		MeetingID:   req.MeetingID,
	}
	if err := s.Repo.Create(ctx, doc, paragraphID, req.SeedText); err != nil {
		return nil, apperr.Storage(err)
	}
	return &model.CreateDocResponse{DocID: docID, ParagraphID: paragraphID}, nil
}

func (s *DocumentService) AddParagraph(ctx context.Context, participantID string, req model.AddParagraphRequest) (*model.Paragraph, error) {
	if req.DocID == "" {
		return nil, apperr.New(apperr.InvalidArgument, "missing document id")
	}
	if err := s.Auth.CanAccess(ctx, req.DocID, participantID); err != nil {
		return nil, err
	}
	p, err := s.Repo.InsertParagraph(ctx, req.DocID, generateID(), req.AfterOrder, participantID)
	if err != nil {
		return nil, apperr.Storage(err)
	}
	return p, nil
}

func (s *DocumentService) DeleteParagraph(ctx context.Context, participantID, paragraphID string) error {
	if paragraphID == "" {
		return apperr.New(apperr.InvalidArgument, "missing paragraph id")
	}
	docID, _, err := s.Repo.ResolveUnit(ctx, paragraphID)
	if err != nil {
		return apperr.Storage(err)
	}
	if err := s.Auth.CanAccess(ctx, docID, participantID); err != nil {
		return err
	}
	return apperr.Storage(s.Repo.DeleteParagraph(ctx, paragraphID))
}

func (s *DocumentService) Reorder(ctx context.Context, participantID string, req model.ReorderRequest) error {
	if req.ParagraphA == "" || req.ParagraphB == "" || req.ParagraphA == req.ParagraphB {
		return apperr.New(apperr.InvalidArgument, "reorder needs two distinct paragraph ids")
	}
	docID, _, err := s.Repo.ResolveUnit(ctx, req.ParagraphA)
	if err != nil {
		return apperr.Storage(err)
	}
	if err := s.Auth.CanAccess(ctx, docID, participantID); err != nil {
		return err
	}
	return apperr.Storage(s.Repo.SwapOrders(ctx, req.ParagraphA, req.ParagraphB))
}

// Save writes content to a unit under the participant's lease and returns
// the new content fingerprint. It does not release the lease; the client's
// blur path bundles save-then-release itself.
func (s *DocumentService) Save(ctx context.Context, participantID string, req model.SaveRequest) (*model.SaveResponse, error) {
	if req.UnitID == "" {
		return nil, apperr.New(apperr.InvalidArgument, "missing unit id")
	}
	docID, fieldName, err := s.Repo.ResolveUnit(ctx, req.UnitID)
	if err != nil {
		return nil, apperr.Storage(err)
	}
	if err := s.Auth.CanAccess(ctx, docID, participantID); err != nil {
		return nil, err
	}

	fp := fingerprint.Of(req.Content)
	cutoff := time.Now().Add(-s.LockTTL)
	if fieldName != "" {
		err = s.Repo.SaveField(ctx, docID, fieldName, participantID, req.Content, fp, cutoff)
	} else {
		err = s.Repo.SaveParagraph(ctx, req.UnitID, docID, participantID, req.Content, fp, cutoff)
	}
	if err != nil {
		return nil, apperr.Storage(err)
	}
	metrics.Saves.Inc()
	return &model.SaveResponse{Fingerprint: fp}, nil
}

func (s *DocumentService) Finalize(ctx context.Context, participantID, docID string) error {
	if docID == "" {
		return apperr.New(apperr.InvalidArgument, "missing document id")
	}
	if err := s.Auth.IsInitiator(ctx, docID, participantID); err != nil {
		return err
	}
	return apperr.Storage(s.Repo.Finalize(ctx, docID))
}

func (s *DocumentService) DeleteDocument(ctx context.Context, participantID, docID string) error {
	if docID == "" {
		return apperr.New(apperr.InvalidArgument, "missing document id")
	}
	if err := s.Auth.IsInitiator(ctx, docID, participantID); err != nil {
		return err
	}
	return apperr.Storage(s.Repo.Delete(ctx, docID))
}

func (s *DocumentService) Invite(ctx context.Context, participantID string, req model.InviteRequest) error {
	if req.Role != model.RoleEditor && req.Role != model.RoleContributor {
		return apperr.Newf(apperr.InvalidArgument, "invalid role %q", req.Role)
	}
	if req.ParticipantID == "" {
		return apperr.New(apperr.InvalidArgument, "missing participant id")
	}
	if err := s.Auth.IsInitiator(ctx, req.DocID, participantID); err != nil {
		return err
	}
	return apperr.Storage(s.Repo.AddCollaborator(ctx, req.DocID, req.ParticipantID, req.Role))
}

func (s *DocumentService) ListDocuments(ctx context.Context, participantID string) ([]model.DocumentMetadata, error) {
	docs, err := s.Repo.ListByParticipant(ctx, participantID)
	if err != nil {
		return nil, apperr.Storage(err)
	}
	if docs == nil {
		docs = []model.DocumentMetadata{}
	}
	return docs, nil
}

func (s *DocumentService) ListParagraphs(ctx context.Context, participantID, docID string) ([]model.Paragraph, error) {
	if err := s.Auth.CanAccess(ctx, docID, participantID); err != nil {
		return nil, err
	}
	paras, err := s.Repo.ListParagraphs(ctx, docID)
	if err != nil {
		return nil, apperr.Storage(err)
	}
	return paras, nil
}

func (s *DocumentService) History(ctx context.Context, participantID, unitID string, limit int) ([]version.Snapshot, error) {
	docID, _, err := s.Repo.ResolveUnit(ctx, unitID)
	if err != nil {
		return nil, apperr.Storage(err)
	}
	if err := s.Auth.CanAccess(ctx, docID, participantID); err != nil {
		return nil, err
	}
	snaps, err := s.Versions.ListByUnit(ctx, unitID, limit)
	if err != nil {
		return nil, apperr.Storage(err)
	}
	return snaps, nil
}

func generateID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return ""
	}
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:])
}
