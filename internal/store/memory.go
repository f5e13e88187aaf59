package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var _ FlagRepository = (*MemoryStore)(nil)

// MemoryStore is an in-process FlagRepository with the same semantics as PostgresStore
// (unique keys across soft deletes, optimistic versioning, newest-first listing).
// Values are deep-copied on the way in and out so callers never share state with the store.
type MemoryStore struct {
	mu    sync.RWMutex
	flags map[string]*Flag
	now   func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		flags: make(map[string]*Flag),
		now:   time.Now,
	}
}

func (s *MemoryStore) CreateFlag(_ context.Context, f *Flag) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.flags[f.Key]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateKey, f.Key)
	}

	now := s.now()
	f.ID = uuid.NewString()
	f.Version = 1
	f.CreatedAt = now
	f.UpdatedAt = now
	f.DeletedAt = nil

	s.flags[f.Key] = f.Clone()
	return nil
}

func (s *MemoryStore) GetFlag(_ context.Context, key string) (*Flag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.flags[key]
	if !ok || f.DeletedAt != nil {
		return nil, ErrNotFound
	}
	return f.Clone(), nil
}

func (s *MemoryStore) UpdateFlag(_ context.Context, f *Flag) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.flags[f.Key]
	if !ok || current.DeletedAt != nil {
		return ErrNotFound
	}
	if current.Version != f.Version {
		return fmt.Errorf("%w: expected version %d, found %d", ErrVersionConflict, f.Version, current.Version)
	}

	next := f.Clone()
	next.ID = current.ID
	next.CreatedAt = current.CreatedAt
	next.Version = current.Version + 1
	next.UpdatedAt = s.now()
	s.flags[f.Key] = next

	f.Version = next.Version
	f.UpdatedAt = next.UpdatedAt
	return nil
}

func (s *MemoryStore) ListFlags(_ context.Context) ([]*Flag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	flags := make([]*Flag, 0, len(s.flags))
	for _, f := range s.flags {
		if f.DeletedAt == nil {
			flags = append(flags, f.Clone())
		}
	}

	sort.Slice(flags, func(i, j int) bool {
		if !flags[i].CreatedAt.Equal(flags[j].CreatedAt) {
			return flags[i].CreatedAt.After(flags[j].CreatedAt)
		}
		return flags[i].Key < flags[j].Key
	})
	return flags, nil
}
