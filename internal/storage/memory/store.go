// Package memory is an in-process rental.Repository. Each item is guarded by
// its own mutex, so requests for different items never wait on each other.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"rentalnexus/internal/rental"

	"github.com/google/uuid"
)

type entry struct {
	mu   sync.Mutex
	item *rental.Item
}

// Store keeps items in a map. The map lock is only held long enough to find
// an entry; the read-decide-write of an update runs under the entry's lock.
type Store struct {
	mu    sync.RWMutex
	items map[uuid.UUID]*entry
	now   func() time.Time
}

func NewStore() *Store {
	return &Store{
		items: make(map[uuid.UUID]*entry),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Create(_ context.Context, item *rental.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[item.ID]; ok {
		return fmt.Errorf("item %s already exists", item.ID)
	}
	stored := item.Clone()
	stored.Version = 1
	item.Version = 1
	s.items[item.ID] = &entry{item: stored}
	return nil
}

func (s *Store) lookup(id uuid.UUID) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", rental.ErrItemNotFound, id)
	}
	return e, nil
}

func (s *Store) Get(_ context.Context, id uuid.UUID) (*rental.Item, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.item.Clone(), nil
}

// List returns copies of all items in creation order.
func (s *Store) List(_ context.Context) ([]*rental.Item, error) {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.items))
	for _, e := range s.items {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	items := make([]*rental.Item, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		items = append(items, e.item.Clone())
		e.mu.Unlock()
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID.String() < items[j].ID.String()
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items, nil
}

// Update runs fn on a copy of the item while holding the item's lock. The copy
// replaces the stored item only when fn succeeds.
func (s *Store) Update(ctx context.Context, id uuid.UUID, fn rental.UpdateFunc) (*rental.Item, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	working := e.item.Clone()
	if _, err := fn(working); err != nil {
		return nil, err
	}
	working.Version = e.item.Version + 1
	working.UpdatedAt = s.now()
	e.item = working
	return working.Clone(), nil
}
