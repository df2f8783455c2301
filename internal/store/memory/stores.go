package memory

import "github.com/wolfeidau/tenantd/internal/store"

// NewStores returns a fresh set of in-memory stores sharing nothing with any other set.
func NewStores() store.Stores {
	return store.Stores{
		Admins:        NewAdminStore(),
		Organizations: NewOrganizationStore(),
		Renames:       NewRenameStore(),
		Partitions:    NewPartitionStore(),
	}
}
