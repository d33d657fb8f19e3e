// Package version is the append-only audit history of editable units.
// Snapshots are only ever inserted; the sole delete path is the cascading
// document delete in storage.
package version

import "time"

type Snapshot struct {
	ID          int64     `json:"id"`
	DocumentID  string    `json:"document_id"`
	UnitID      string    `json:"unit_id"`
	Content     string    `json:"content"`
	ModifierID  string    `json:"modifier_id"`
	ModifiedAt  time.Time `json:"modified_at"`
	Fingerprint string    `json:"fingerprint"`
}
