package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/tenantd/internal/credential"
	"github.com/wolfeidau/tenantd/internal/models"
	"github.com/wolfeidau/tenantd/internal/store"
)

var (
	ErrDuplicateEmail = errors.New("email already registered")
	ErrDuplicateName  = errors.New("organization name already taken")
	ErrNotFound       = errors.New("not found")
)

// Registry is the source of truth mapping organization name to partition to admin.
// It only touches admin and organization records, never partitions.
type Registry struct {
	admins        store.AdminStore
	organizations store.OrganizationStore
	hasher        credential.Hasher
}

// New creates a registry over the given stores.
func New(admins store.AdminStore, organizations store.OrganizationStore, hasher credential.Hasher) *Registry {
	return &Registry{
		admins:        admins,
		organizations: organizations,
		hasher:        hasher,
	}
}

// NormalizeEmail folds an email address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateAdmin stores a new admin with the digest of password.
// Returns ErrDuplicateEmail if the email is already registered.
func (r *Registry) CreateAdmin(ctx context.Context, email, password string) (*models.Admin, error) {
	digest, err := r.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	admin := &models.Admin{
		AdminID:      uuid.Must(uuid.NewV7()),
		Email:        NormalizeEmail(email),
		PasswordHash: digest,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := r.admins.Create(ctx, admin); err != nil {
		if errors.Is(err, store.ErrAdminAlreadyExists) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("create admin: %w", err)
	}

	log.Debug().Str("admin_id", admin.AdminID.String()).Msg("Created admin")

	return admin, nil
}

// CreateOrganization links a new organization to an existing admin.
// Returns ErrDuplicateName if the name, the partition or the admin is already taken. The check is the
// store's own uniqueness constraint, so a concurrent create that passed an earlier lookup still fails here.
func (r *Registry) CreateOrganization(ctx context.Context, name, partitionName string, adminID uuid.UUID) (*models.Organization, error) {
	now := time.Now()
	org := &models.Organization{
		OrgID:         uuid.Must(uuid.NewV7()),
		Name:          name,
		PartitionName: partitionName,
		AdminID:       adminID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := r.organizations.Create(ctx, org); err != nil {
		if errors.Is(err, store.ErrOrganizationAlreadyExists) {
			return nil, ErrDuplicateName
		}
		return nil, fmt.Errorf("create organization: %w", err)
	}

	return org, nil
}

// FindOrganizationByName returns the organization with the given name or ErrNotFound.
func (r *Registry) FindOrganizationByName(ctx context.Context, name string) (*models.Organization, error) {
	org, err := r.organizations.GetByName(ctx, name)
	if err != nil {
		return nil, notFound(err, "find organization %q", name)
	}
	return org, nil
}

// FindOrganizationByID returns the organization with the given ID or ErrNotFound.
func (r *Registry) FindOrganizationByID(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	org, err := r.organizations.Get(ctx, orgID)
	if err != nil {
		return nil, notFound(err, "find organization %s", orgID)
	}
	return org, nil
}

// FindOrganizationByPartition returns the organization stored in partitionName or ErrNotFound.
func (r *Registry) FindOrganizationByPartition(ctx context.Context, partitionName string) (*models.Organization, error) {
	org, err := r.organizations.GetByPartition(ctx, partitionName)
	if err != nil {
		return nil, notFound(err, "find organization by partition %s", partitionName)
	}
	return org, nil
}

// FindOrganizationOwnedBy returns the organization named name only if adminID owns it.
func (r *Registry) FindOrganizationOwnedBy(ctx context.Context, adminID uuid.UUID, name string) (*models.Organization, error) {
	org, err := r.FindOrganizationByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if org.AdminID != adminID {
		return nil, ErrNotFound
	}
	return org, nil
}

// FindOrganizationByAdmin returns the organization owned by adminID or ErrNotFound.
func (r *Registry) FindOrganizationByAdmin(ctx context.Context, adminID uuid.UUID) (*models.Organization, error) {
	org, err := r.organizations.GetByAdmin(ctx, adminID)
	if err != nil {
		return nil, notFound(err, "find organization for admin %s", adminID)
	}
	return org, nil
}

// RenameOrganization updates name and partition in one write. It is a pure metadata update.
func (r *Registry) RenameOrganization(ctx context.Context, orgID uuid.UUID, newName, newPartitionName string) error {
	err := r.organizations.Rename(ctx, orgID, newName, newPartitionName)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrOrganizationAlreadyExists):
		return ErrDuplicateName
	default:
		return notFound(err, "rename organization %s", orgID)
	}
}

// DeleteOrganization removes the organization record.
func (r *Registry) DeleteOrganization(ctx context.Context, orgID uuid.UUID) error {
	if err := r.organizations.Delete(ctx, orgID); err != nil {
		return notFound(err, "delete organization %s", orgID)
	}
	return nil
}

// FindAdmin returns the admin with the given ID or ErrNotFound.
func (r *Registry) FindAdmin(ctx context.Context, adminID uuid.UUID) (*models.Admin, error) {
	admin, err := r.admins.Get(ctx, adminID)
	if err != nil {
		return nil, notFound(err, "find admin %s", adminID)
	}
	return admin, nil
}

// FindAdminByEmail returns the admin registered with email or ErrNotFound.
func (r *Registry) FindAdminByEmail(ctx context.Context, email string) (*models.Admin, error) {
	admin, err := r.admins.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, notFound(err, "find admin by email")
	}
	return admin, nil
}

// DeleteAdmin removes the admin record.
func (r *Registry) DeleteAdmin(ctx context.Context, adminID uuid.UUID) error {
	if err := r.admins.Delete(ctx, adminID); err != nil {
		return notFound(err, "delete admin %s", adminID)
	}
	return nil
}

// ListOrganizations returns every organization.
func (r *Registry) ListOrganizations(ctx context.Context) ([]*models.Organization, error) {
	orgs, err := r.organizations.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	return orgs, nil
}

// ListAdmins returns every admin.
func (r *Registry) ListAdmins(ctx context.Context) ([]*models.Admin, error) {
	admins, err := r.admins.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	return admins, nil
}

// VerifyPassword reports whether password matches the admin's digest.
func (r *Registry) VerifyPassword(admin *models.Admin, password string) bool {
	return r.hasher.Verify(password, admin.PasswordHash)
}

// notFound folds the store's not found sentinels into ErrNotFound and wraps everything else.
func notFound(err error, format string, args ...any) error {
	if errors.Is(err, store.ErrOrganizationNotFound) || errors.Is(err, store.ErrAdminNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
