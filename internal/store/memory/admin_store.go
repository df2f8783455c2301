package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/wolfeidau/tenantd/internal/models"
	"github.com/wolfeidau/tenantd/internal/store"
)

// AdminStore implements store.AdminStore using in-memory storage.
// This implementation is for testing only - data is lost on restart.
type AdminStore struct {
	mu sync.RWMutex

	admins  map[uuid.UUID]*models.Admin // admin_id -> Admin
	byEmail map[string]uuid.UUID        // email -> admin_id
}

// NewAdminStore creates a new in-memory admin store.
func NewAdminStore() *AdminStore {
	return &AdminStore{
		admins:  make(map[uuid.UUID]*models.Admin),
		byEmail: make(map[string]uuid.UUID),
	}
}

// Create creates a new admin in memory.
func (s *AdminStore) Create(ctx context.Context, admin *models.Admin) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.admins[admin.AdminID]; exists {
		return store.ErrAdminAlreadyExists
	}

	// Check for duplicate email
	if _, exists := s.byEmail[admin.Email]; exists {
		return store.ErrAdminAlreadyExists
	}

	// Clone to avoid external modifications
	clone := *admin
	s.admins[admin.AdminID] = &clone
	s.byEmail[admin.Email] = admin.AdminID

	return nil
}

// Get retrieves an admin by ID.
func (s *AdminStore) Get(ctx context.Context, adminID uuid.UUID) (*models.Admin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	admin, exists := s.admins[adminID]
	if !exists {
		return nil, store.ErrAdminNotFound
	}

	clone := *admin
	return &clone, nil
}

// GetByEmail retrieves an admin by email.
func (s *AdminStore) GetByEmail(ctx context.Context, email string) (*models.Admin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	adminID, exists := s.byEmail[email]
	if !exists {
		return nil, store.ErrAdminNotFound
	}

	clone := *s.admins[adminID]
	return &clone, nil
}

// Delete removes an admin.
func (s *AdminStore) Delete(ctx context.Context, adminID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	admin, exists := s.admins[adminID]
	if !exists {
		return store.ErrAdminNotFound
	}

	delete(s.admins, adminID)
	delete(s.byEmail, admin.Email)

	return nil
}

// List returns all admins.
func (s *AdminStore) List(ctx context.Context) ([]*models.Admin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.Admin, 0, len(s.admins))
	for _, admin := range s.admins {
		clone := *admin
		result = append(result, &clone)
	}

	return result, nil
}
