package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/wolfeidau/tenantd/internal/models"
)

// Sentinel errors for organization store operations
var (
	ErrOrganizationNotFound      = errors.New("organization not found")
	ErrOrganizationAlreadyExists = errors.New("organization already exists")
)

// OrganizationStore defines the interface for organization storage operations.
// Implementations must enforce uniqueness of Name, PartitionName and AdminID themselves so that
// two concurrent creates passing an application level check cannot both succeed.
type OrganizationStore interface {
	// Create creates a new organization in the store.
	// Returns ErrOrganizationAlreadyExists if the name, partition name or admin is already in use.
	Create(ctx context.Context, org *models.Organization) error

	// Get retrieves an organization by ID.
	// Returns ErrOrganizationNotFound if the organization doesn't exist.
	Get(ctx context.Context, orgID uuid.UUID) (*models.Organization, error)

	// GetByName retrieves an organization by its unique name.
	// Returns ErrOrganizationNotFound if the organization doesn't exist.
	GetByName(ctx context.Context, name string) (*models.Organization, error)

	// GetByPartition retrieves the organization whose partition is partitionName.
	// Returns ErrOrganizationNotFound if no organization uses the partition.
	GetByPartition(ctx context.Context, partitionName string) (*models.Organization, error)

	// GetByAdmin retrieves the organization owned by the admin.
	// Returns ErrOrganizationNotFound if the admin owns no organization.
	GetByAdmin(ctx context.Context, adminID uuid.UUID) (*models.Organization, error)

	// Rename changes the name and partition name of an organization in a single write.
	// Returns ErrOrganizationAlreadyExists if the new name or partition is taken,
	// ErrOrganizationNotFound if the organization doesn't exist.
	Rename(ctx context.Context, orgID uuid.UUID, name, partitionName string) error

	// Delete deletes an organization by ID.
	// Returns ErrOrganizationNotFound if the organization doesn't exist.
	Delete(ctx context.Context, orgID uuid.UUID) error

	// List returns all organizations.
	List(ctx context.Context) ([]*models.Organization, error)
}
