package models

import (
	"time"

	"github.com/google/uuid"
)

// RenameState tracks how far an organization rename has progressed.
type RenameState string

const (
	RenameStateCopying    RenameState = "copying"    // Documents are being copied into the new partition
	RenameStateFailed     RenameState = "failed"     // Copy failed, the new partition is garbage
	RenameStateCommitting RenameState = "committing" // Copy verified, registry and source drop pending
)

// RenameOperation is the durable in-progress marker for an organization rename.
// It exists from before the first document is copied until the source partition is dropped,
// and reserves NewPartition so no other organization can claim it meanwhile.
type RenameOperation struct {
	OrgID        uuid.UUID
	OldName      string
	NewName      string
	OldPartition string
	NewPartition string
	State        RenameState
	StartedAt    time.Time
	UpdatedAt    time.Time
}

// IsStale returns true if the operation has not been touched since before the cutoff.
func (op *RenameOperation) IsStale(cutoff time.Time) bool {
	return op.UpdatedAt.Before(cutoff)
}
