package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/tenantd/internal/models"
	"github.com/wolfeidau/tenantd/internal/store"
)

// OrganizationStore implements store.OrganizationStore using in-memory storage.
// This implementation is for testing only - data is lost on restart.
type OrganizationStore struct {
	mu sync.RWMutex

	organizations map[uuid.UUID]*models.Organization // org_id -> Organization
	byName        map[string]uuid.UUID               // name -> org_id
	byPartition   map[string]uuid.UUID               // partition_name -> org_id
	byAdmin       map[uuid.UUID]uuid.UUID            // admin_id -> org_id
}

// NewOrganizationStore creates a new in-memory organization store.
func NewOrganizationStore() *OrganizationStore {
	return &OrganizationStore{
		organizations: make(map[uuid.UUID]*models.Organization),
		byName:        make(map[string]uuid.UUID),
		byPartition:   make(map[string]uuid.UUID),
		byAdmin:       make(map[uuid.UUID]uuid.UUID),
	}
}

// Create creates a new organization in memory.
func (s *OrganizationStore) Create(ctx context.Context, org *models.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.organizations[org.OrgID]; exists {
		return store.ErrOrganizationAlreadyExists
	}
	if _, exists := s.byName[org.Name]; exists {
		return store.ErrOrganizationAlreadyExists
	}
	if _, exists := s.byPartition[org.PartitionName]; exists {
		return store.ErrOrganizationAlreadyExists
	}
	if _, exists := s.byAdmin[org.AdminID]; exists {
		return store.ErrOrganizationAlreadyExists
	}

	// Clone to avoid external modifications
	clone := *org
	s.organizations[org.OrgID] = &clone
	s.byName[org.Name] = org.OrgID
	s.byPartition[org.PartitionName] = org.OrgID
	s.byAdmin[org.AdminID] = org.OrgID

	return nil
}

// Get retrieves an organization by ID.
func (s *OrganizationStore) Get(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.cloneLocked(orgID)
}

// GetByName retrieves an organization by name.
func (s *OrganizationStore) GetByName(ctx context.Context, name string) (*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orgID, exists := s.byName[name]
	if !exists {
		return nil, store.ErrOrganizationNotFound
	}

	return s.cloneLocked(orgID)
}

// GetByPartition retrieves an organization by partition name.
func (s *OrganizationStore) GetByPartition(ctx context.Context, partitionName string) (*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orgID, exists := s.byPartition[partitionName]
	if !exists {
		return nil, store.ErrOrganizationNotFound
	}

	return s.cloneLocked(orgID)
}

// GetByAdmin retrieves the organization owned by an admin.
func (s *OrganizationStore) GetByAdmin(ctx context.Context, adminID uuid.UUID) (*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orgID, exists := s.byAdmin[adminID]
	if !exists {
		return nil, store.ErrOrganizationNotFound
	}

	return s.cloneLocked(orgID)
}

// Rename updates the name and partition of an organization.
func (s *OrganizationStore) Rename(ctx context.Context, orgID uuid.UUID, name, partitionName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	org, exists := s.organizations[orgID]
	if !exists {
		return store.ErrOrganizationNotFound
	}

	if owner, taken := s.byName[name]; taken && owner != orgID {
		return store.ErrOrganizationAlreadyExists
	}
	if owner, taken := s.byPartition[partitionName]; taken && owner != orgID {
		return store.ErrOrganizationAlreadyExists
	}

	delete(s.byName, org.Name)
	delete(s.byPartition, org.PartitionName)

	org.Name = name
	org.PartitionName = partitionName
	org.UpdatedAt = time.Now()

	s.byName[name] = orgID
	s.byPartition[partitionName] = orgID

	return nil
}

// Delete deletes an organization by ID.
func (s *OrganizationStore) Delete(ctx context.Context, orgID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	org, exists := s.organizations[orgID]
	if !exists {
		return store.ErrOrganizationNotFound
	}

	delete(s.organizations, orgID)
	delete(s.byName, org.Name)
	delete(s.byPartition, org.PartitionName)
	delete(s.byAdmin, org.AdminID)

	return nil
}

// List returns all organizations.
func (s *OrganizationStore) List(ctx context.Context) ([]*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.Organization, 0, len(s.organizations))
	for _, org := range s.organizations {
		clone := *org
		result = append(result, &clone)
	}

	return result, nil
}

func (s *OrganizationStore) cloneLocked(orgID uuid.UUID) (*models.Organization, error) {
	org, exists := s.organizations[orgID]
	if !exists {
		return nil, store.ErrOrganizationNotFound
	}

	// Clone to avoid external modifications
	clone := *org
	return &clone, nil
}
