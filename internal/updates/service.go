// Package updates serves the poll side of the sync protocol: one pull
// returns everything a client needs to converge on a unit: canonical
// content, its fingerprint, lock state, who is online, and queue depth.
// Clients compare fingerprints, never arrival order.
package updates

import (
	"context"

	docrepo "minutepad/internal/document/repository"
	"minutepad/internal/identity"
	"minutepad/internal/lock"
	"minutepad/internal/presence"
	"minutepad/internal/queue"
	"minutepad/pkg/apperr"
	"minutepad/pkg/fingerprint"
)

type Service struct {
	Docs     *docrepo.DocumentRepository
	Locks    *lock.Service
	Presence *presence.Tracker
	Queue    *queue.Repository
	Auth     identity.Authorizer
}

func NewService(docs *docrepo.DocumentRepository, locks *lock.Service, tracker *presence.Tracker, q *queue.Repository, auth identity.Authorizer) *Service {
	return &Service{Docs: docs, Locks: locks, Presence: tracker, Queue: q, Auth: auth}
}

type UnitUpdate struct {
	UnitID      string   `json:"unit_id"`
	Content     string   `json:"content,omitempty"`
	Fingerprint string   `json:"fingerprint"`
	Unchanged   bool     `json:"unchanged"`
	LockHolder  string   `json:"lock_holder,omitempty"`
	Online      []string `json:"online"`
	QueueDepth  int      `json:"queue_depth"`
}

type ParagraphState struct {
	ID          string  `json:"id"`
	Order       float64 `json:"order"`
	Fingerprint string  `json:"fingerprint"`
	LockHolder  string  `json:"lock_holder,omitempty"`
}

type DocumentUpdate struct {
	DocID      string           `json:"document_id"`
	Paragraphs []ParagraphState `json:"paragraphs"`
	Online     []string         `json:"online"`
}

// ForUnit builds a unit's poll response. When the caller's fingerprint
// (since) already matches, content is omitted and Unchanged is set, so
// re-applying the response is a no-op by construction.
func (s *Service) ForUnit(ctx context.Context, participantID, unitID, since string) (*UnitUpdate, error) {
	if unitID == "" {
		return nil, apperr.New(apperr.InvalidArgument, "missing unit id")
	}
	docID, content, err := s.Docs.UnitContent(ctx, unitID)
	if err != nil {
		return nil, apperr.Storage(err)
	}
	if err := s.Auth.CanAccess(ctx, docID, participantID); err != nil {
		return nil, err
	}

	upd := &UnitUpdate{UnitID: unitID, Fingerprint: fingerprint.Of(content)}

	if upd.LockHolder, err = s.Locks.HolderOf(ctx, unitID); err != nil {
		return nil, err
	}
	if upd.Online, err = s.Presence.ListOnline(ctx, docID); err != nil {
		return nil, apperr.Storage(err)
	}
	if upd.QueueDepth, err = s.Queue.Depth(ctx, unitID); err != nil {
		return nil, apperr.Storage(err)
	}

	if since != "" && since == upd.Fingerprint {
		upd.Unchanged = true
	} else {
		upd.Content = content
	}
	return upd, nil
}

// ForDocument summarizes a whole document for the initial view: paragraph
// fingerprints and lock holders, plus presence. Clients follow up with
// ForUnit on paragraphs whose fingerprint moved.
func (s *Service) ForDocument(ctx context.Context, participantID, docID string) (*DocumentUpdate, error) {
	if docID == "" {
		return nil, apperr.New(apperr.InvalidArgument, "missing document id")
	}
	if _, err := s.Docs.Get(ctx, docID); err != nil {
		return nil, apperr.Storage(err)
	}
	if err := s.Auth.CanAccess(ctx, docID, participantID); err != nil {
		return nil, err
	}

	paras, err := s.Docs.ListParagraphs(ctx, docID)
	if err != nil {
		return nil, apperr.Storage(err)
	}

	upd := &DocumentUpdate{DocID: docID, Paragraphs: make([]ParagraphState, 0, len(paras))}
	for _, p := range paras {
		holder, err := s.Locks.HolderOf(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		upd.Paragraphs = append(upd.Paragraphs, ParagraphState{
			ID:          p.ID,
			Order:       p.Order,
			Fingerprint: fingerprint.Of(p.Content),
			LockHolder:  holder,
		})
	}
	if upd.Online, err = s.Presence.ListOnline(ctx, docID); err != nil {
		return nil, apperr.Storage(err)
	}
	return upd, nil
}
