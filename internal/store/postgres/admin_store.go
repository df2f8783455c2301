package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/tenantd/internal/models"
	"github.com/wolfeidau/tenantd/internal/store"
)

const adminColumns = `admin_id, email, password_hash, created_at, updated_at`

// AdminStore implements store.AdminStore using PostgreSQL.
type AdminStore struct {
	pool *pgxpool.Pool
}

var _ store.AdminStore = (*AdminStore)(nil)

// NewAdminStore creates a new PostgreSQL-backed admin store.
// It shares the connection pool with other stores.
func NewAdminStore(pool *pgxpool.Pool) *AdminStore {
	return &AdminStore{pool: pool}
}

// Create inserts a new admin. The admins_email_key constraint rejects duplicate emails.
func (s *AdminStore) Create(ctx context.Context, admin *models.Admin) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO admins (`+adminColumns+`)
		VALUES ($1, $2, $3, $4, $5)
	`,
		admin.AdminID,
		admin.Email,
		admin.PasswordHash,
		admin.CreatedAt,
		admin.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrAdminAlreadyExists
		}
		return mapPostgresError("create admin", err)
	}

	log.Debug().Str("admin_id", admin.AdminID.String()).Msg("Created admin")

	return nil
}

// Get retrieves an admin by ID.
func (s *AdminStore) Get(ctx context.Context, adminID uuid.UUID) (*models.Admin, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+adminColumns+` FROM admins WHERE admin_id = $1`, adminID)
	return scanAdmin(row, "get admin")
}

// GetByEmail retrieves an admin by email.
func (s *AdminStore) GetByEmail(ctx context.Context, email string) (*models.Admin, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+adminColumns+` FROM admins WHERE email = $1`, email)
	return scanAdmin(row, "get admin by email")
}

// Delete deletes an admin by ID.
func (s *AdminStore) Delete(ctx context.Context, adminID uuid.UUID) error {
	result, err := s.pool.Exec(ctx, `DELETE FROM admins WHERE admin_id = $1`, adminID)
	if err != nil {
		return mapPostgresError("delete admin", err)
	}

	if result.RowsAffected() == 0 {
		return store.ErrAdminNotFound
	}

	log.Debug().Str("admin_id", adminID.String()).Msg("Deleted admin")

	return nil
}

// List returns all admins ordered by creation time.
func (s *AdminStore) List(ctx context.Context) ([]*models.Admin, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+adminColumns+` FROM admins ORDER BY created_at`)
	if err != nil {
		return nil, mapPostgresError("list admins", err)
	}

	admins, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.Admin, error) {
		var a models.Admin
		err := row.Scan(&a.AdminID, &a.Email, &a.PasswordHash, &a.CreatedAt, &a.UpdatedAt)
		return &a, err
	})
	if err != nil {
		return nil, mapPostgresError("scan admins", err)
	}

	return admins, nil
}

func scanAdmin(row pgx.Row, op string) (*models.Admin, error) {
	var a models.Admin
	err := row.Scan(&a.AdminID, &a.Email, &a.PasswordHash, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrAdminNotFound
		}
		return nil, mapPostgresError(op, err)
	}
	return &a, nil
}
