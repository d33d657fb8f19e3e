package queue

import (
	"context"

	docrepo "minutepad/internal/document/repository"
	"minutepad/internal/identity"
	"minutepad/pkg/apperr"
	"minutepad/pkg/logger"
	"minutepad/pkg/metrics"
)

type Service struct {
	Repo *Repository
	Docs *docrepo.DocumentRepository
	Auth identity.Authorizer
}

func NewService(repo *Repository, docs *docrepo.DocumentRepository, auth identity.Authorizer) *Service {
	return &Service{Repo: repo, Docs: docs, Auth: auth}
}

// Submit appends an unprocessed entry and returns the contributor's
// 1-based position among the unit's pending entries.
func (s *Service) Submit(ctx context.Context, participantID string, req SubmitRequest) (*SubmitResponse, error) {
	if req.UnitID == "" || req.Content == "" {
		return nil, apperr.New(apperr.InvalidArgument, "missing unit id or content")
	}
	docID, _, err := s.Docs.ResolveUnit(ctx, req.UnitID)
	if err != nil {
		return nil, apperr.Storage(err)
	}
	doc, err := s.Docs.Get(ctx, docID)
	if err != nil {
		return nil, apperr.Storage(err)
	}
	if doc.FinalizedAt != nil {
		return nil, apperr.Newf(apperr.StateConflict, "document %s is finalized", docID)
	}
	if err := s.Auth.CanAccess(ctx, docID, participantID); err != nil {
		return nil, err
	}

	id, err := s.Repo.Insert(ctx, req.UnitID, docID, participantID, req.Content)
	if err != nil {
		return nil, apperr.Storage(err)
	}
	pos, err := s.Repo.Position(ctx, req.UnitID, id)
	if err != nil {
		return nil, apperr.Storage(err)
	}
	metrics.QueueSubmissions.Inc()
	return &SubmitResponse{Position: pos}, nil
}

// Process retires pending batches. With a unit id it processes that unit;
// with none it sweeps every unit with pending entries. participantID may
// be empty when invoked by a trusted scheduler; otherwise the caller must
// be the arbitrator of each touched document (a sweep silently skips
// documents the caller does not arbitrate).
func (s *Service) Process(ctx context.Context, participantID, unitID string) (int, error) {
	if unitID != "" {
		docID, _, err := s.Docs.ResolveUnit(ctx, unitID)
		if err != nil {
			return 0, apperr.Storage(err)
		}
		if participantID != "" {
			if err := s.Auth.CanArbitrate(ctx, docID, participantID); err != nil {
				return 0, err
			}
		}
		n, err := s.Repo.ProcessUnit(ctx, unitID)
		if err != nil {
			return 0, apperr.Storage(err)
		}
		metrics.QueueProcessed.Add(float64(n))
		return n, nil
	}

	units, err := s.Repo.UnprocessedUnits(ctx)
	if err != nil {
		return 0, apperr.Storage(err)
	}
	total := 0
	for _, u := range units {
		docID, _, err := s.Docs.ResolveUnit(ctx, u)
		if err != nil {
			logger.Sugar.Infof("Skipping queue unit %s: %v", u, err)
			continue
		}
		if participantID != "" {
			if err := s.Auth.CanArbitrate(ctx, docID, participantID); err != nil {
				continue
			}
		}
		n, err := s.Repo.ProcessUnit(ctx, u)
		if err != nil {
			// A document finalized with entries still pending keeps them
			// unprocessed; the rest of the sweep continues.
			if apperr.IsKind(err, apperr.StateConflict) {
				logger.Sugar.Infof("Skipping queue unit %s: %v", u, err)
				continue
			}
			return total, apperr.Storage(err)
		}
		total += n
	}
	metrics.QueueProcessed.Add(float64(total))
	return total, nil
}

// AppendPriority lets the arbitrator write straight to a continuation
// field without queueing. The repository serializes it against concurrent
// queue processing on the same field.
func (s *Service) AppendPriority(ctx context.Context, participantID string, req AppendRequest) (string, error) {
	if req.DocID == "" || req.Field == "" || req.Text == "" {
		return "", apperr.New(apperr.InvalidArgument, "missing document id, field, or text")
	}
	doc, err := s.Docs.Get(ctx, req.DocID)
	if err != nil {
		return "", apperr.Storage(err)
	}
	if doc.FinalizedAt != nil {
		return "", apperr.Newf(apperr.StateConflict, "document %s is finalized", req.DocID)
	}
	if err := s.Auth.CanArbitrate(ctx, req.DocID, participantID); err != nil {
		return "", err
	}
	fp, err := s.Repo.AppendField(ctx, req.DocID, req.Field, participantID, req.Text)
	if err != nil {
		return "", apperr.Storage(err)
	}
	return fp, nil
}
