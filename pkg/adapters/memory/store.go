// Package memory provides in-process adapters: a graph store and a device
// simulator that stands in for the actuation boundary.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/autotron/pkg/domain"
	"github.com/aretw0/autotron/pkg/ports"
)

// Store implements ports.GraphStore in memory.
// Documents are kept encoded so callers never share maps with the store.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string][]byte),
	}
}

// Save persists the document in memory.
func (s *Store) Save(ctx context.Context, name string, doc *domain.Document) error {
	data, err := doc.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal graph: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[name] = data
	return nil
}

// Load retrieves a copy of the stored document.
func (s *Store) Load(ctx context.Context, name string) (*domain.Document, error) {
	s.mu.RLock()
	data, ok := s.data[name]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrGraphNotFound, name)
	}
	return domain.ParseDocument(data)
}

// Delete removes the document.
func (s *Store) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, name)
	return nil
}

// List returns the stored names, sorted, without the last-active mirror.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.data))
	for name := range s.data {
		if name != ports.LastActiveName {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}
