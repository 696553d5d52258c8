package ledger

import (
	"context"
	"sync"

	"github.com/marwie0904/leadify-RE-APP-sub004/internal/model"
)

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records []model.TokenUsageRecord
	ids     map[string]struct{}
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{ids: make(map[string]struct{})}
}

// Append implements Store.
func (s *MemoryStore) Append(_ context.Context, rec model.TokenUsageRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[rec.ID]; ok {
		return false, nil
	}
	s.ids[rec.ID] = struct{}{}
	s.records = append(s.records, rec)
	return true, nil
}

// Scan implements Store.
func (s *MemoryStore) Scan(ctx context.Context, f Filter, fn func(model.TokenUsageRecord) error) error {
	s.mu.RLock()
	snapshot := make([]model.TokenUsageRecord, len(s.records))
	copy(snapshot, s.records)
	s.mu.RUnlock()

	for _, rec := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !f.Matches(rec) {
			continue
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

// Records returns a copy of every stored record.
func (s *MemoryStore) Records() []model.TokenUsageRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.TokenUsageRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
