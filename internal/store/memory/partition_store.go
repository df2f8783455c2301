package memory

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/wolfeidau/tenantd/internal/models"
	"github.com/wolfeidau/tenantd/internal/store"
)

// PartitionStore implements store.PartitionStore using in-memory collections.
// This implementation is for testing only - data is lost on restart.
type PartitionStore struct {
	mu sync.RWMutex

	partitions map[string]*partition // partition_name -> documents
}

type partition struct {
	order []string // insertion order, for stable iteration
	docs  map[string]map[string]any
}

// NewPartitionStore creates a new in-memory partition store.
func NewPartitionStore() *PartitionStore {
	return &PartitionStore{
		partitions: make(map[string]*partition),
	}
}

// Create creates the partition if it doesn't exist.
func (s *PartitionStore) Create(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.partitions[name]; !exists {
		s.partitions[name] = &partition{docs: make(map[string]map[string]any)}
	}

	return nil
}

// Drop removes the partition and its documents.
func (s *PartitionStore) Drop(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.partitions, name)

	return nil
}

// Exists reports whether the partition exists.
func (s *PartitionStore) Exists(ctx context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.partitions[name]
	return exists, nil
}

// List returns the partition names starting with prefix, sorted.
func (s *PartitionStore) List(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var names []string
	for name := range s.partitions {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	slices.Sort(names)

	return names, nil
}

// Insert stores a document in the partition.
func (s *PartitionStore) Insert(ctx context.Context, name string, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.partitions[name]
	if !exists {
		return store.ErrPartitionNotFound
	}
	if _, exists := p.docs[doc.ID]; exists {
		return store.ErrDocumentExists
	}

	p.docs[doc.ID] = maps.Clone(doc.Body)
	p.order = append(p.order, doc.ID)

	return nil
}

// Iterate calls fn for each document in insertion order.
// The documents are snapshotted first so fn may write to other partitions.
func (s *PartitionStore) Iterate(ctx context.Context, name string, fn func(*models.Document) error) error {
	s.mu.RLock()
	p, exists := s.partitions[name]
	if !exists {
		s.mu.RUnlock()
		return store.ErrPartitionNotFound
	}

	snapshot := make([]*models.Document, 0, len(p.order))
	for _, id := range p.order {
		snapshot = append(snapshot, &models.Document{ID: id, Body: maps.Clone(p.docs[id])})
	}
	s.mu.RUnlock()

	for _, doc := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(doc); err != nil {
			return err
		}
	}

	return nil
}

// Count returns the number of documents in the partition.
func (s *PartitionStore) Count(ctx context.Context, name string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.partitions[name]
	if !exists {
		return 0, store.ErrPartitionNotFound
	}

	return int64(len(p.docs)), nil
}
