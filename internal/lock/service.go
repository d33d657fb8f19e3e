package lock

import (
	"context"
	"time"

	docrepo "minutepad/internal/document/repository"
	"minutepad/internal/identity"
	"minutepad/pkg/apperr"
	"minutepad/pkg/metrics"
)

type Service struct {
	Repo *Repository
	Docs *docrepo.DocumentRepository
	Auth identity.Authorizer
	TTL  time.Duration
}

func NewService(repo *Repository, docs *docrepo.DocumentRepository, auth identity.Authorizer, ttl time.Duration) *Service {
	return &Service{Repo: repo, Docs: docs, Auth: auth, TTL: ttl}
}

// Acquire grants or denies the lease on a unit. Renewal is the same code
// path: the current holder re-acquiring before expiry always succeeds and
// extends the lease. There is no blocking or queueing; contention resolves
// immediately as a denial carrying the holder's identity.
func (s *Service) Acquire(ctx context.Context, unitID, participantID string) (*AcquireResult, error) {
	if unitID == "" || participantID == "" {
		return nil, apperr.New(apperr.InvalidArgument, "missing unit or participant id")
	}
	docID, _, err := s.Docs.ResolveUnit(ctx, unitID)
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

	cutoff := time.Now().Add(-s.TTL)
	if err := s.Repo.PurgeExpired(ctx, cutoff); err != nil {
		return nil, apperr.Storage(err)
	}
	granted, err := s.Repo.TryAcquire(ctx, unitID, docID, participantID, cutoff)
	if err != nil {
		return nil, apperr.Storage(err)
	}
	if granted {
		metrics.LockAcquisitions.WithLabelValues("granted").Inc()
		return &AcquireResult{Granted: true, Holder: participantID}, nil
	}

	holder, err := s.Repo.Holder(ctx, unitID, cutoff)
	if err != nil {
		return nil, apperr.Storage(err)
	}
	metrics.LockAcquisitions.WithLabelValues("denied").Inc()
	return &AcquireResult{Granted: false, Holder: holder}, nil
}

// Release is idempotent and never an error for the caller: a unit with no
// lock, a vanished unit, or a lock held by someone else all no-op.
func (s *Service) Release(ctx context.Context, unitID, participantID string) error {
	if unitID == "" || participantID == "" {
		return apperr.New(apperr.InvalidArgument, "missing unit or participant id")
	}
	docID, _, err := s.Docs.ResolveUnit(ctx, unitID)
	if err != nil {
		if apperr.IsKind(err, apperr.NotFound) {
			return nil
		}
		return apperr.Storage(err)
	}
	if err := s.Auth.CanAccess(ctx, docID, participantID); err != nil {
		return err
	}
	return apperr.Storage(s.Repo.Release(ctx, unitID, participantID))
}

// HolderOf reports the live holder of a unit for poll responses.
func (s *Service) HolderOf(ctx context.Context, unitID string) (string, error) {
	holder, err := s.Repo.Holder(ctx, unitID, time.Now().Add(-s.TTL))
	return holder, apperr.Storage(err)
}
