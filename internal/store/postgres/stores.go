package postgres

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wolfeidau/tenantd/internal/store"
)

// NewStores returns the registry, rename and partition stores sharing one pool.
func NewStores(pool *pgxpool.Pool) store.Stores {
	return store.Stores{
		Admins:        NewAdminStore(pool),
		Organizations: NewOrganizationStore(pool),
		Renames:       NewRenameStore(pool),
		Partitions:    NewPartitionStore(pool),
	}
}
