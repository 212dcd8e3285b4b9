package repo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AgriMind-advisor-poc/server/internal/agent/model"
)

// TestMemoryRepositoryRoundTrip verifies save/load/clear semantics, including
// the zero-snapshot contract for unknown conversations.
func TestMemoryRepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryStateRepository()

	fresh, err := r.LoadSnapshot(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", fresh.ConversationID)
	assert.Empty(t, fresh.Messages)

	saved := model.State{ConversationID: "c1", TurnID: "t1", Answer: "irrigate tonight", Phase: model.PhaseDone}
	require.NoError(t, r.SaveSnapshot(ctx, saved))

	loaded, err := r.LoadSnapshot(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, saved, loaded)

	require.NoError(t, r.ClearSnapshot(ctx, "c1"))
	cleared, err := r.LoadSnapshot(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, cleared.Answer)
}
