package tenant

import (
	"errors"
)

// Errors returned by the lifecycle manager. Validation, authorization and not found errors mean nothing
// changed. ErrMigrationFailed means a rename changed state partway and needs follow-up.
var (
	ErrInvalidName        = errors.New("invalid organization name")
	ErrOrganizationExists = errors.New("organization already exists")
	ErrEmailTaken         = errors.New("email already registered")
	ErrNotFound           = errors.New("organization not found")
	ErrNameTaken          = errors.New("organization name already taken")
	ErrRenameInProgress   = errors.New("organization rename in progress")
	ErrMigrationFailed    = errors.New("migration failed")
)

// MigrationError describes a failed rename copy. The source partition is intact and authoritative;
// Destination may hold a partial copy that recovery will drop.
type MigrationError struct {
	Source      string
	Destination string
	Copied      int64
	Err         error
}

func (e *MigrationError) Error() string {
	return "migration from " + e.Source + " to " + e.Destination + " failed: " + e.Err.Error()
}

func (e *MigrationError) Unwrap() []error {
	return []error{ErrMigrationFailed, e.Err}
}
