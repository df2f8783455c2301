package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/tenantd/internal/models"
	"github.com/wolfeidau/tenantd/internal/store"
)

// RenameStore implements store.RenameStore using in-memory storage.
// This implementation is for testing only - markers are lost on restart.
type RenameStore struct {
	mu sync.RWMutex

	operations map[uuid.UUID]*models.RenameOperation // org_id -> RenameOperation
	reserved   map[string]uuid.UUID                  // new_partition -> org_id
}

// NewRenameStore creates a new in-memory rename store.
func NewRenameStore() *RenameStore {
	return &RenameStore{
		operations: make(map[uuid.UUID]*models.RenameOperation),
		reserved:   make(map[string]uuid.UUID),
	}
}

// Begin records a new rename marker.
func (s *RenameStore) Begin(ctx context.Context, op *models.RenameOperation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.operations[op.OrgID]; exists {
		return store.ErrRenameInProgress
	}
	if _, exists := s.reserved[op.NewPartition]; exists {
		return store.ErrNameReserved
	}

	clone := *op
	s.operations[op.OrgID] = &clone
	s.reserved[op.NewPartition] = op.OrgID

	return nil
}

// SetState moves a marker to a new state.
func (s *RenameStore) SetState(ctx context.Context, orgID uuid.UUID, state models.RenameState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, exists := s.operations[orgID]
	if !exists {
		return store.ErrRenameNotFound
	}

	op.State = state
	op.UpdatedAt = time.Now()

	return nil
}

// Get returns the marker for an organization.
func (s *RenameStore) Get(ctx context.Context, orgID uuid.UUID) (*models.RenameOperation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	op, exists := s.operations[orgID]
	if !exists {
		return nil, store.ErrRenameNotFound
	}

	clone := *op
	return &clone, nil
}

// IsReserved reports whether partitionName is the destination of an in-progress rename.
func (s *RenameStore) IsReserved(ctx context.Context, partitionName string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.reserved[partitionName]
	return exists, nil
}

// List returns every marker.
func (s *RenameStore) List(ctx context.Context) ([]*models.RenameOperation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.RenameOperation, 0, len(s.operations))
	for _, op := range s.operations {
		clone := *op
		result = append(result, &clone)
	}

	return result, nil
}

// Finish removes the marker.
func (s *RenameStore) Finish(ctx context.Context, orgID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, exists := s.operations[orgID]
	if !exists {
		return nil
	}

	delete(s.operations, orgID)
	delete(s.reserved, op.NewPartition)

	return nil
}
