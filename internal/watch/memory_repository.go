package watch

import (
	"context"
	"sort"
	"sync"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing and for running without a database.
type InMemoryRepository struct {
	mu      sync.RWMutex
	watches map[string]*Watch
}

// NewInMemoryRepository creates a new in-memory watch repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		watches: make(map[string]*Watch),
	}
}

// Get retrieves a watch by ID.
func (r *InMemoryRepository) Get(_ context.Context, id string) (*Watch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	w, ok := r.watches[id]
	if !ok {
		return nil, ErrWatchNotFound
	}

	cpy := *w
	return &cpy, nil
}

// List retrieves watches with pagination, newest first.
func (r *InMemoryRepository) List(_ context.Context, opts ListOptions) (*ListResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var watches []*Watch
	for _, w := range r.watches {
		cpy := *w
		watches = append(watches, &cpy)
	}
	sort.Slice(watches, func(i, j int) bool {
		return watches[i].CreatedAt.After(watches[j].CreatedAt)
	})

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	result := &ListResult{Items: watches}
	if len(watches) > limit {
		result.Items = watches[:limit]
		result.NextCursor = watches[limit-1].ID
	}

	return result, nil
}

// ListEnabled retrieves every enabled watch.
func (r *InMemoryRepository) ListEnabled(_ context.Context) ([]*Watch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var watches []*Watch
	for _, w := range r.watches {
		if !w.Enabled {
			continue
		}
		cpy := *w
		watches = append(watches, &cpy)
	}
	sort.Slice(watches, func(i, j int) bool {
		return watches[i].CreatedAt.Before(watches[j].CreatedAt)
	})

	return watches, nil
}

// Create creates a new watch.
func (r *InMemoryRepository) Create(_ context.Context, w *Watch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cpy := *w
	r.watches[w.ID] = &cpy
	return nil
}

// Update updates an existing watch.
func (r *InMemoryRepository) Update(_ context.Context, w *Watch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.watches[w.ID]; !ok {
		return ErrWatchNotFound
	}

	cpy := *w
	r.watches[w.ID] = &cpy
	return nil
}

// Delete deletes a watch by ID.
func (r *InMemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.watches, id)
	return nil
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
