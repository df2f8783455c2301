package store

import (
	"context"
	"errors"

	"github.com/wolfeidau/tenantd/internal/models"
)

var (
	ErrPartitionNotFound = errors.New("partition not found")
	ErrDocumentExists    = errors.New("document already exists")
)

// PartitionStore exposes the raw per-collection primitives of the document store.
// None of these operations span more than one partition.
type PartitionStore interface {
	// Create creates the partition. Creating an existing partition is a no-op.
	Create(ctx context.Context, name string) error

	// Drop drops the partition and every document in it. Dropping a missing partition is a no-op.
	Drop(ctx context.Context, name string) error

	// Exists reports whether the partition exists.
	Exists(ctx context.Context, name string) (bool, error)

	// List returns the names of all partitions starting with prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Insert stores doc in the partition using doc.ID as its identity.
	// Returns ErrPartitionNotFound if the partition doesn't exist and ErrDocumentExists on an ID clash.
	Insert(ctx context.Context, name string, doc *models.Document) error

	// Iterate calls fn for every document in the partition, stopping at the first error.
	Iterate(ctx context.Context, name string, fn func(*models.Document) error) error

	// Count returns the number of documents in the partition.
	Count(ctx context.Context, name string) (int64, error)
}
