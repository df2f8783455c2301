package models

import (
	"time"

	"github.com/google/uuid"
)

// Admin is the account that owns an organization.
// Admins are created together with their organization and never on their own.
type Admin struct {
	AdminID      uuid.UUID // UUIDv7
	Email        string    // Unique across all admins
	PasswordHash string    // Digest produced by the credential hasher
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
