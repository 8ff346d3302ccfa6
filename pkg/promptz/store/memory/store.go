package memory

import (
	"context"
	"sync"

	"github.com/cremich/promptz-sub001/pkg/promptz"
)

// Store implements promptz.Store using in-memory maps, one per kind.
type Store struct {
	mu     sync.RWMutex
	tables map[string]map[string]*promptz.Entity // kind plural -> id -> entity
}

var _ promptz.Store = (*Store)(nil)

// New creates a new in-memory store
func New() *Store {
	return &Store{
		tables: make(map[string]map[string]*promptz.Entity),
	}
}

func (s *Store) table(kind promptz.Kind) map[string]*promptz.Entity {
	t, ok := s.tables[kind.Plural]
	if !ok {
		t = make(map[string]*promptz.Entity)
		s.tables[kind.Plural] = t
	}
	return t
}

func (s *Store) Create(ctx context.Context, kind promptz.Kind, entity *promptz.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.table(kind)
	if _, exists := t[entity.ID]; exists {
		return promptz.ErrConflict
	}

	// Store a copy to avoid external modifications
	t[entity.ID] = entity.Clone()
	return nil
}

func (s *Store) Update(ctx context.Context, kind promptz.Kind, owner string, entity *promptz.Entity) (*promptz.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.table(kind)[entity.ID]
	if !exists || stored.Owner != owner {
		return nil, promptz.ErrUnauthorized
	}

	stored.Slug = entity.Slug
	stored.Name = entity.Name
	stored.Description = entity.Description
	stored.Content = entity.Content
	stored.HowTo = entity.HowTo
	stored.Tags = append([]string{}, entity.Tags...)
	stored.Scope = entity.Scope
	stored.SourceURL = entity.SourceURL
	stored.UpdatedAt = entity.UpdatedAt

	return stored.Clone(), nil
}

func (s *Store) Delete(ctx context.Context, kind promptz.Kind, id, owner string) (*promptz.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.table(kind)
	stored, exists := t[id]
	if !exists || stored.Owner != owner {
		return nil, promptz.ErrUnauthorized
	}

	delete(t, id)
	return stored, nil
}

func (s *Store) Increment(ctx context.Context, kind promptz.Kind, id string, counter promptz.Counter) (*promptz.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.table(kind)[id]
	if !exists {
		return nil, promptz.ErrNotFound
	}

	switch counter {
	case promptz.CounterCopy:
		stored.CopyCount++
	case promptz.CounterDownload:
		stored.DownloadCount++
	default:
		return nil, promptz.ErrInvalidRequest
	}
	return stored.Clone(), nil
}

func (s *Store) Get(ctx context.Context, kind promptz.Kind, id string) (*promptz.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, exists := s.tables[kind.Plural][id]
	if !exists {
		return nil, promptz.ErrNotFound
	}

	// Return a copy to prevent external modifications
	return stored.Clone(), nil
}

// Len returns the number of stored entities of kind.
func (s *Store) Len(kind promptz.Kind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tables[kind.Plural])
}
