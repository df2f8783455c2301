package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/tenantd/internal/models"
	"github.com/wolfeidau/tenantd/internal/store"
)

const organizationColumns = `org_id, name, partition_name, admin_id, created_at, updated_at`

// OrganizationStore implements store.OrganizationStore using PostgreSQL.
// Uniqueness of name, partition and admin is enforced by table constraints.
type OrganizationStore struct {
	pool *pgxpool.Pool
}

var _ store.OrganizationStore = (*OrganizationStore)(nil)

// NewOrganizationStore creates a new PostgreSQL-backed organization store.
// It shares the connection pool with other stores.
func NewOrganizationStore(pool *pgxpool.Pool) *OrganizationStore {
	return &OrganizationStore{
		pool: pool,
	}
}

// Create creates a new organization in the database.
func (s *OrganizationStore) Create(ctx context.Context, org *models.Organization) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO organizations (`+organizationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		org.OrgID,
		org.Name,
		org.PartitionName,
		org.AdminID,
		org.CreatedAt,
		org.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrOrganizationAlreadyExists
		}
		return mapPostgresError("create organization", err)
	}

	log.Debug().
		Str("org_id", org.OrgID.String()).
		Str("name", org.Name).
		Msg("Created organization")

	return nil
}

// Get retrieves an organization by ID.
func (s *OrganizationStore) Get(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	return s.getBy(ctx, "org_id", orgID)
}

// GetByName retrieves an organization by name.
func (s *OrganizationStore) GetByName(ctx context.Context, name string) (*models.Organization, error) {
	return s.getBy(ctx, "name", name)
}

// GetByPartition retrieves an organization by partition name.
func (s *OrganizationStore) GetByPartition(ctx context.Context, partitionName string) (*models.Organization, error) {
	return s.getBy(ctx, "partition_name", partitionName)
}

// GetByAdmin retrieves the organization owned by an admin.
func (s *OrganizationStore) GetByAdmin(ctx context.Context, adminID uuid.UUID) (*models.Organization, error) {
	return s.getBy(ctx, "admin_id", adminID)
}

// Rename updates name and partition name in a single statement.
func (s *OrganizationStore) Rename(ctx context.Context, orgID uuid.UUID, name, partitionName string) error {
	result, err := s.pool.Exec(ctx, `
		UPDATE organizations SET
			name = $2,
			partition_name = $3,
			updated_at = $4
		WHERE org_id = $1
	`, orgID, name, partitionName, time.Now())
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrOrganizationAlreadyExists
		}
		return mapPostgresError("rename organization", err)
	}

	if result.RowsAffected() == 0 {
		return store.ErrOrganizationNotFound
	}

	log.Debug().
		Str("org_id", orgID.String()).
		Str("name", name).
		Msg("Renamed organization")

	return nil
}

// Delete deletes an organization by ID.
func (s *OrganizationStore) Delete(ctx context.Context, orgID uuid.UUID) error {
	result, err := s.pool.Exec(ctx, `DELETE FROM organizations WHERE org_id = $1`, orgID)
	if err != nil {
		return mapPostgresError("delete organization", err)
	}

	if result.RowsAffected() == 0 {
		return store.ErrOrganizationNotFound
	}

	log.Debug().Str("org_id", orgID.String()).Msg("Deleted organization")

	return nil
}

// List returns all organizations ordered by creation time.
func (s *OrganizationStore) List(ctx context.Context) ([]*models.Organization, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+organizationColumns+` FROM organizations ORDER BY created_at`)
	if err != nil {
		return nil, mapPostgresError("list organizations", err)
	}

	orgs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.Organization, error) {
		return scanOrganization(row)
	})
	if err != nil {
		return nil, mapPostgresError("scan organizations", err)
	}

	return orgs, nil
}

// getBy loads one organization by a unique column. column is never user input.
func (s *OrganizationStore) getBy(ctx context.Context, column string, value any) (*models.Organization, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+organizationColumns+` FROM organizations WHERE `+column+` = $1`, value)

	org, err := scanOrganization(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrOrganizationNotFound
		}
		return nil, mapPostgresError("get organization", err)
	}

	return org, nil
}

func scanOrganization(row pgx.Row) (*models.Organization, error) {
	var org models.Organization
	err := row.Scan(
		&org.OrgID,
		&org.Name,
		&org.PartitionName,
		&org.AdminID,
		&org.CreatedAt,
		&org.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &org, nil
}
