// Package queue buffers proposed edits from contributors who do not hold
// the unit's exclusive lock. A designated arbitrator serializes them:
// periodic processing takes the freshest submission per unit as canonical
// and retires the whole batch in one transaction.
//
// The batch policy is deliberately "freshest submission wins", not
// first-come-first-served: with a short processing cadence the latency
// cost is small and the arbiter stays trivially convergent.
package queue

import "time"

// Entry is immutable once created except for Processed, which flips
// exactly once. Ordering key is (SubmittedAt, ID).
type Entry struct {
	ID          int64     `json:"id"`
	UnitID      string    `json:"unit_id"`
	DocumentID  string    `json:"document_id"`
	SubmitterID string    `json:"submitter_id"`
	Content     string    `json:"content"`
	SubmittedAt time.Time `json:"submitted_at"`
	Processed   bool      `json:"processed"`
}

type SubmitRequest struct {
	UnitID  string `json:"unit_id"`
	Content string `json:"content"`
}

type SubmitResponse struct {
	// Position is the 1-based place among the unit's unprocessed entries,
	// for UI feedback only.
	Position int `json:"position"`
}

type AppendRequest struct {
	DocID string `json:"document_id"`
	Field string `json:"field"`
	Text  string `json:"text"`
}
