package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/wolfeidau/tenantd/internal/models"
)

// Errors
var (
	ErrAdminNotFound      = errors.New("admin not found")
	ErrAdminAlreadyExists = errors.New("admin already exists")
)

// AdminStore manages admin accounts.
type AdminStore interface {
	// Create stores a new admin.
	// Returns ErrAdminAlreadyExists if the email is already registered.
	Create(ctx context.Context, admin *models.Admin) error

	// Get retrieves an admin by ID
	Get(ctx context.Context, adminID uuid.UUID) (*models.Admin, error)

	// GetByEmail retrieves an admin by email
	GetByEmail(ctx context.Context, email string) (*models.Admin, error)

	// Delete removes an admin. Returns ErrAdminNotFound if absent.
	Delete(ctx context.Context, adminID uuid.UUID) error

	// List returns all admins
	List(ctx context.Context) ([]*models.Admin, error)
}
