// Package lock implements exclusive-editing leases over editable units.
// A lease is valid until its TTL elapses or it is explicitly released;
// an expired row is logically absent even before it is physically purged.
package lock

import "time"

type Lock struct {
	UnitID      string    `json:"unit_id"`
	DocumentID  string    `json:"document_id"`
	HolderID    string    `json:"holder_id"`
	AcquiredAt  time.Time `json:"acquired_at"`
	RefreshedAt time.Time `json:"refreshed_at"`
}

// AcquireResult is the outcome of an acquire attempt. On denial Holder
// names the live holder for UI display.
type AcquireResult struct {
	Granted bool   `json:"granted"`
	Holder  string `json:"holder,omitempty"`
}
