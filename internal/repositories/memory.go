package repositories

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/desertthunder/offbeat/internal/shared"
)

type memoryEntry struct {
	seq    int
	record *Record
}

// MemoryStore implements [Store] in memory. Records are cloned on the way in and out.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[Collection]map[string]memoryEntry
	seq         int
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[Collection]map[string]memoryEntry)}
}

func (s *MemoryStore) Get(ctx context.Context, c Collection, key string) (*Record, error) {
	if _, err := c.Table(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.collections[c][key]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", shared.ErrNotFound, c, key)
	}
	return entry.record.Clone(), nil
}

func (s *MemoryStore) GetAll(ctx context.Context, c Collection) ([]*Record, error) {
	if _, err := c.Table(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	entries := make([]memoryEntry, 0, len(s.collections[c]))
	for _, e := range s.collections[c] {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	records := make([]*Record, 0, len(entries))
	for _, e := range entries {
		records = append(records, e.record.Clone())
	}
	return records, nil
}

func (s *MemoryStore) Put(ctx context.Context, c Collection, r *Record) error {
	if err := validateRecord(c, r); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = time.Now().UTC()
	}

	coll, ok := s.collections[c]
	if !ok {
		coll = make(map[string]memoryEntry)
		s.collections[c] = coll
	}

	entry, exists := coll[r.ID]
	if !exists {
		s.seq++
		entry.seq = s.seq
	}
	entry.record = r.Clone()
	coll[r.ID] = entry
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, c Collection, key string) error {
	if _, err := c.Table(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections[c], key)
	return nil
}
