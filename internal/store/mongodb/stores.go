package mongodb

import (
	"github.com/wolfeidau/tenantd/internal/store"
	"go.mongodb.org/mongo-driver/mongo"
)

// NewStores returns the registry, rename and partition stores of one database.
func NewStores(db *mongo.Database) store.Stores {
	return store.Stores{
		Admins:        NewAdminStore(db),
		Organizations: NewOrganizationStore(db),
		Renames:       NewRenameStore(db),
		Partitions:    NewPartitionStore(db),
	}
}
