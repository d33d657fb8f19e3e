package model

import (
	"strings"
	"time"
)

type DocumentStatus string

const (
	StatusDraft     DocumentStatus = "draft"
	StatusActive    DocumentStatus = "active"
	StatusFinalized DocumentStatus = "finalized"
)

type Document struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Status       DocumentStatus `json:"status"`
	InitiatorID  string         `json:"initiator_id"`
	ArbitratorID string         `json:"arbitrator_id,omitempty"`
	MeetingID    string         `json:"meeting_id,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	FinalizedAt  *time.Time     `json:"finalized_at,omitempty"`
}

// Paragraph order keys are fractional: inserts take the midpoint between
// neighbors, and the total order is (Order, ID).
type Paragraph struct {
	ID           string    `json:"id"`
	DocumentID   string    `json:"document_id"`
	Order        float64   `json:"order"`
	Content      string    `json:"content"`
	LastEditor   string    `json:"last_editor,omitempty"`
	LastEditedAt time.Time `json:"last_edited_at"`
}

// Field is a named per-document text slot (e.g. the running minutes text)
// addressed by unit id "documentID/name". Rows are created lazily on first
// write.
type Field struct {
	DocumentID   string    `json:"document_id"`
	Name         string    `json:"name"`
	Content      string    `json:"content"`
	LastEditor   string    `json:"last_editor,omitempty"`
	LastEditedAt time.Time `json:"last_edited_at"`
}

// FieldUnitID builds the unit id of a named document field. Paragraph unit
// ids are the paragraph's own id and never contain a slash.
func FieldUnitID(docID, name string) string {
	return docID + "/" + name
}

// SplitFieldUnitID parses a field unit id. ok is false for paragraph units.
func SplitFieldUnitID(unitID string) (docID, name string, ok bool) {
	i := strings.IndexByte(unitID, '/')
	if i <= 0 || i == len(unitID)-1 {
		return "", "", false
	}
	return unitID[:i], unitID[i+1:], true
}

const (
	RoleEditor      = "editor"
	RoleContributor = "contributor"
)

type CreateDocRequest struct {
	Title     string `json:"title"`
	MeetingID string `json:"meeting_id,omitempty"`
	SeedText  string `json:"seed_text,omitempty"`
}

type CreateDocResponse struct {
	DocID       string `json:"document_id"`
	ParagraphID string `json:"paragraph_id"`
}

type AddParagraphRequest struct {
	DocID      string   `json:"document_id"`
	AfterOrder *float64 `json:"after_order,omitempty"`
}

type ReorderRequest struct {
	ParagraphA string `json:"paragraph_a"`
	ParagraphB string `json:"paragraph_b"`
}

type SaveRequest struct {
	UnitID  string `json:"unit_id"`
	Content string `json:"content"`
}

type SaveResponse struct {
	Fingerprint string `json:"fingerprint"`
}

type InviteRequest struct {
	DocID         string `json:"document_id"`
	ParticipantID string `json:"participant_id"`
	Role          string `json:"role"`
}

type DocumentMetadata struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Status      DocumentStatus `json:"status"`
	UpdatedAt   time.Time      `json:"updated_at"`
	IsInitiator bool           `json:"is_initiator"`
}
