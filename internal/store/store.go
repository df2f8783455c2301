package store

import (
	"errors"
)

// ErrStorageUnavailable marks a storage call that failed because the backend timed out,
// was unreachable or was shedding load. The step that hit it did not complete.
var ErrStorageUnavailable = errors.New("storage unavailable")

// Stores groups the registry and partition stores of one backend.
type Stores struct {
	Admins        AdminStore
	Organizations OrganizationStore
	Renames       RenameStore
	Partitions    PartitionStore
}
