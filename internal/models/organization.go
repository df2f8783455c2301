package models

import (
	"time"

	"github.com/google/uuid"
)

// PartitionPrefix is prepended to the folded organization name to form its partition name.
const PartitionPrefix = "org_"

// Organization represents a tenant in the system.
// Each organization owns exactly one partition and is owned by exactly one admin.
type Organization struct {
	OrgID         uuid.UUID // UUIDv7
	Name          string    // Unique, chosen by the admin
	PartitionName string    // Unique, derived from Name
	AdminID       uuid.UUID // UUIDv7, owning admin
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
