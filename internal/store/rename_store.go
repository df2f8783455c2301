package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/wolfeidau/tenantd/internal/models"
)

var (
	ErrRenameNotFound   = errors.New("rename operation not found")
	ErrRenameInProgress = errors.New("rename already in progress")
	ErrNameReserved     = errors.New("name reserved by a rename in progress")
)

// RenameStore persists in-progress rename markers so an interrupted rename can be resumed or
// rolled back after a restart.
type RenameStore interface {
	// Begin records a new rename marker.
	// Returns ErrRenameInProgress if the organization already has one and ErrNameReserved if
	// another marker already targets the same destination partition.
	Begin(ctx context.Context, op *models.RenameOperation) error

	// SetState moves a marker to a new state.
	SetState(ctx context.Context, orgID uuid.UUID, state models.RenameState) error

	// Get returns the marker for an organization, or ErrRenameNotFound.
	Get(ctx context.Context, orgID uuid.UUID) (*models.RenameOperation, error)

	// IsReserved reports whether partitionName is the destination of an in-progress rename.
	IsReserved(ctx context.Context, partitionName string) (bool, error)

	// List returns every marker.
	List(ctx context.Context) ([]*models.RenameOperation, error)

	// Finish removes the marker. Finishing a missing marker is a no-op.
	Finish(ctx context.Context, orgID uuid.UUID) error
}
