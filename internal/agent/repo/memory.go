package repo

import (
	"context"
	"sync"

	"github.com/AgriMind-advisor-poc/server/internal/agent/model"
)

// MemoryStateRepository keeps snapshots in process memory. Used by tests and
// by the demo runner when no Redis URL is configured.
type MemoryStateRepository struct {
	mu    sync.RWMutex
	items map[string]model.State
}

func NewMemoryStateRepository() *MemoryStateRepository {
	return &MemoryStateRepository{items: make(map[string]model.State)}
}

func (r *MemoryStateRepository) LoadSnapshot(_ context.Context, conversationID string) (model.State, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.items[conversationID]; ok {
		return s, nil
	}
	return model.State{ConversationID: conversationID}, nil
}

func (r *MemoryStateRepository) SaveSnapshot(_ context.Context, state model.State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[state.ConversationID] = state
	return nil
}

func (r *MemoryStateRepository) ClearSnapshot(_ context.Context, conversationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, conversationID)
	return nil
}

var _ model.StateRepository = (*MemoryStateRepository)(nil)
