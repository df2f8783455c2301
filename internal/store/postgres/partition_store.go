package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/tenantd/internal/models"
	"github.com/wolfeidau/tenantd/internal/store"
)

// DefaultIterateBatchSize is how many documents Iterate reads per query.
const DefaultIterateBatchSize = 500

// PartitionStore implements store.PartitionStore with one table per partition in the current schema.
// Documents keep an insertion sequence so iteration is stable and can be paged by keyset.
type PartitionStore struct {
	pool      *pgxpool.Pool
	batchSize int
}

var _ store.PartitionStore = (*PartitionStore)(nil)

// NewPartitionStore creates a new PostgreSQL-backed partition store.
func NewPartitionStore(pool *pgxpool.Pool) *PartitionStore {
	return &PartitionStore{pool: pool, batchSize: DefaultIterateBatchSize}
}

func tableName(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// Create creates the partition table if it doesn't exist.
func (s *PartitionStore) Create(ctx context.Context, name string) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+tableName(name)+` (
			seq    BIGINT GENERATED ALWAYS AS IDENTITY,
			doc_id TEXT PRIMARY KEY,
			body   JSONB NOT NULL
		)
	`)
	if err != nil {
		// Concurrent CREATE TABLE IF NOT EXISTS can still collide in the catalog.
		var pgErr *pgconn.PgError
		if isUniqueViolation(err) || (errors.As(err, &pgErr) && pgErr.Code == pgerrcode.DuplicateTable) {
			return nil
		}
		return mapPostgresError("create partition", err)
	}

	log.Debug().Str("partition", name).Msg("Created partition")

	return nil
}

// Drop drops the partition table if it exists.
func (s *PartitionStore) Drop(ctx context.Context, name string) error {
	if _, err := s.pool.Exec(ctx, `DROP TABLE IF EXISTS `+tableName(name)); err != nil {
		return mapPostgresError("drop partition", err)
	}

	log.Debug().Str("partition", name).Msg("Dropped partition")

	return nil
}

// Exists reports whether the partition table exists.
func (s *PartitionStore) Exists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = current_schema() AND table_name = $1
		)
	`, name).Scan(&exists)
	if err != nil {
		return false, mapPostgresError("check partition", err)
	}
	return exists, nil
}

// List returns the partition tables whose name starts with prefix.
func (s *PartitionStore) List(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT table_name FROM information_schema.tables
		WHERE table_schema = current_schema() AND starts_with(table_name, $1)
		ORDER BY table_name
	`, prefix)
	if err != nil {
		return nil, mapPostgresError("list partitions", err)
	}

	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, mapPostgresError("scan partitions", err)
	}

	return names, nil
}

// Insert stores a document in the partition.
func (s *PartitionStore) Insert(ctx context.Context, name string, doc *models.Document) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO `+tableName(name)+` (doc_id, body) VALUES ($1, $2)`, doc.ID, doc.Body)
	if err != nil {
		switch {
		case isUndefinedTable(err):
			return store.ErrPartitionNotFound
		case isUniqueViolation(err):
			return store.ErrDocumentExists
		}
		return mapPostgresError("insert document", err)
	}
	return nil
}

// Iterate calls fn for every document in insertion order. Documents are read in batches and no
// connection is held while fn runs, so fn may write to other partitions.
func (s *PartitionStore) Iterate(ctx context.Context, name string, fn func(*models.Document) error) error {
	query := fmt.Sprintf(`SELECT seq, doc_id, body FROM %s WHERE seq > $1 ORDER BY seq LIMIT $2`, tableName(name))

	type row struct {
		seq int64
		doc *models.Document
	}

	var after int64
	for {
		rows, err := s.pool.Query(ctx, query, after, s.batchSize)
		if err != nil {
			if isUndefinedTable(err) {
				return store.ErrPartitionNotFound
			}
			return mapPostgresError("iterate partition", err)
		}

		batch, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (row, error) {
			doc := &models.Document{}
			var seq int64
			err := r.Scan(&seq, &doc.ID, &doc.Body)
			return row{seq: seq, doc: doc}, err
		})
		if err != nil {
			if isUndefinedTable(err) {
				return store.ErrPartitionNotFound
			}
			return mapPostgresError("scan documents", err)
		}

		for _, r := range batch {
			if err := fn(r.doc); err != nil {
				return err
			}
			after = r.seq
		}

		if len(batch) < s.batchSize {
			return nil
		}
	}
}

// Count returns the number of documents in the partition.
func (s *PartitionStore) Count(ctx context.Context, name string) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM `+tableName(name)).Scan(&count); err != nil {
		if isUndefinedTable(err) {
			return 0, store.ErrPartitionNotFound
		}
		return 0, mapPostgresError("count partition", err)
	}
	return count, nil
}
