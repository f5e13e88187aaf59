// Package audit records who changed what on feature flags.
// Every successful registry mutation produces exactly one Entry.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Action identifies the kind of mutation recorded.
type Action string

const (
	ActionFlagCreated     Action = "FEATURE_FLAG_CREATED"
	ActionFlagUpdated     Action = "FEATURE_FLAG_UPDATED"
	ActionFlagDeleted     Action = "FEATURE_FLAG_DELETED"
	ActionOverrideSet     Action = "FEATURE_FLAG_OVERRIDE_SET"
	ActionOverrideRemoved Action = "FEATURE_FLAG_OVERRIDE_REMOVED"
)

// EntityFeatureFlag is the entity type for flag entries.
const EntityFeatureFlag = "FeatureFlag"

// Entry is a single audit record. Before and After are JSON-serializable snapshots.
type Entry struct {
	ID         uuid.UUID
	EntityType string
	EntityID   string
	Action     Action
	ActorID    string
	Before     any
	After      any
	Metadata   map[string]any
	OccurredAt time.Time
}

// Sink persists audit entries.
type Sink interface {
	Record(ctx context.Context, e Entry) error
}

// stamp fills the ID and timestamp when the caller left them empty.
func stamp(e *Entry) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
}

var _ Sink = (*MemorySink)(nil)

// MemorySink keeps entries in memory. Safe for concurrent use.
type MemorySink struct {
	mu      sync.Mutex
	entries []Entry

	// Err, when set, is returned by Record instead of storing the entry.
	Err error
}

// NewMemorySink creates an empty sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Record(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return s.Err
	}
	stamp(&e)
	s.entries = append(s.entries, e)
	return nil
}

// Entries returns a copy of everything recorded so far, oldest first.
func (s *MemorySink) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}
