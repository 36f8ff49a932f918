package store

import (
	"fmt"
	"sync"

	"github.com/datahopper/pbjson/internal/protoload"
	"github.com/datahopper/pbjson/internal/types"
)

// Store defines the interface for schema set storage.
type Store interface {
	CreateSchemaSet(meta *types.SchemaSet, set *protoload.Set) error
	GetSchemaSet(id string) (*types.SchemaSet, *protoload.Set, error)
	ListSchemaSets() ([]*types.SchemaSet, error)
	DeleteSchemaSet(id string) error
}

type entry struct {
	meta *types.SchemaSet
	set  *protoload.Set
}

// InMemoryStore implements Store with in-memory storage.
type InMemoryStore struct {
	mu   sync.RWMutex
	sets map[string]entry
}

// NewInMemoryStore creates a new in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sets: make(map[string]entry),
	}
}

func (s *InMemoryStore) CreateSchemaSet(meta *types.SchemaSet, set *protoload.Set) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if meta.ID == "" {
		return fmt.Errorf("schema set ID must not be empty")
	}
	s.sets[meta.ID] = entry{meta: meta, set: set}
	return nil
}

func (s *InMemoryStore) GetSchemaSet(id string) (*types.SchemaSet, *protoload.Set, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, exists := s.sets[id]
	if !exists {
		return nil, nil, fmt.Errorf("schema set not found: %s", id)
	}
	return e.meta, e.set, nil
}

func (s *InMemoryStore) ListSchemaSets() ([]*types.SchemaSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*types.SchemaSet, 0, len(s.sets))
	for _, e := range s.sets {
		out = append(out, e.meta)
	}
	return out, nil
}

func (s *InMemoryStore) DeleteSchemaSet(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sets[id]; !exists {
		return fmt.Errorf("schema set not found: %s", id)
	}
	delete(s.sets, id)
	return nil
}
