package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wolfeidau/tenantd/internal/models"
	"github.com/wolfeidau/tenantd/internal/store"
)

const renameColumns = `org_id, old_name, new_name, old_partition, new_partition, state, started_at, updated_at`

// RenameStore implements store.RenameStore using PostgreSQL.
type RenameStore struct {
	pool *pgxpool.Pool
}

var _ store.RenameStore = (*RenameStore)(nil)

// NewRenameStore creates a new PostgreSQL-backed rename marker store.
func NewRenameStore(pool *pgxpool.Pool) *RenameStore {
	return &RenameStore{pool: pool}
}

// Begin inserts a marker. The primary key allows one rename per organization and the
// new_partition constraint reserves the destination.
func (s *RenameStore) Begin(ctx context.Context, op *models.RenameOperation) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO rename_operations (`+renameColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		op.OrgID,
		op.OldName,
		op.NewName,
		op.OldPartition,
		op.NewPartition,
		string(op.State),
		op.StartedAt,
		op.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if isUniqueViolation(err) && errors.As(err, &pgErr) {
			if pgErr.ConstraintName == "rename_operations_new_partition_key" {
				return store.ErrNameReserved
			}
			return store.ErrRenameInProgress
		}
		return mapPostgresError("begin rename", err)
	}

	return nil
}

// SetState moves a marker to a new state and refreshes updated_at.
func (s *RenameStore) SetState(ctx context.Context, orgID uuid.UUID, state models.RenameState) error {
	result, err := s.pool.Exec(ctx, `
		UPDATE rename_operations SET state = $2, updated_at = $3 WHERE org_id = $1
	`, orgID, string(state), time.Now())
	if err != nil {
		return mapPostgresError("set rename state", err)
	}

	if result.RowsAffected() == 0 {
		return store.ErrRenameNotFound
	}

	return nil
}

// Get returns the marker for an organization.
func (s *RenameStore) Get(ctx context.Context, orgID uuid.UUID) (*models.RenameOperation, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+renameColumns+` FROM rename_operations WHERE org_id = $1`, orgID)

	op, err := scanRename(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrRenameNotFound
		}
		return nil, mapPostgresError("get rename", err)
	}

	return op, nil
}

// IsReserved reports whether partitionName is the destination of an in-progress rename.
func (s *RenameStore) IsReserved(ctx context.Context, partitionName string) (bool, error) {
	var reserved bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM rename_operations WHERE new_partition = $1)
	`, partitionName).Scan(&reserved)
	if err != nil {
		return false, mapPostgresError("check reservation", err)
	}
	return reserved, nil
}

// List returns every marker, oldest first.
func (s *RenameStore) List(ctx context.Context) ([]*models.RenameOperation, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+renameColumns+` FROM rename_operations ORDER BY updated_at`)
	if err != nil {
		return nil, mapPostgresError("list renames", err)
	}

	ops, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.RenameOperation, error) {
		return scanRename(row)
	})
	if err != nil {
		return nil, mapPostgresError("scan renames", err)
	}

	return ops, nil
}

// Finish removes the marker. A missing marker is not an error.
func (s *RenameStore) Finish(ctx context.Context, orgID uuid.UUID) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM rename_operations WHERE org_id = $1`, orgID); err != nil {
		return mapPostgresError("finish rename", err)
	}
	return nil
}

func scanRename(row pgx.Row) (*models.RenameOperation, error) {
	var (
		op    models.RenameOperation
		state string
	)
	err := row.Scan(
		&op.OrgID,
		&op.OldName,
		&op.NewName,
		&op.OldPartition,
		&op.NewPartition,
		&state,
		&op.StartedAt,
		&op.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	op.State = models.RenameState(state)
	return &op, nil
}
