package conversation

import (
	"context"
	"errors"
	"sync"

	"github.com/marwie0904/leadify-RE-APP-sub004/internal/model"
)

// ErrNotFound is returned for unknown conversation ids.
var ErrNotFound = errors.New("conversation not found")

// Store persists conversation state. Get returns a copy the caller owns.
type Store interface {
	Get(ctx context.Context, id string) (*model.ConversationState, error)
	Save(ctx context.Context, state *model.ConversationState) error
}

// MemoryStore keeps state in process.
type MemoryStore struct {
	mu    sync.RWMutex
	convs map[string]*model.ConversationState
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{convs: make(map[string]*model.ConversationState)}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id string) (*model.ConversationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.convs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c.Clone(), nil
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, state *model.ConversationState) error {
	s.mu.Lock()
	s.convs[state.ID] = state.Clone()
	s.mu.Unlock()
	return nil
}
