package trace

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AgriMind-advisor-poc/server/internal/agent/model"
)

// TestRecorderGroupsByTurn verifies records land under their turn in append
// order.
func TestRecorderGroupsByTurn(t *testing.T) {
	r := NewRecorder()
	r.Record(model.ToolCallRecord{TurnID: "t1", Server: "weather", Success: true})
	r.Record(model.ToolCallRecord{TurnID: "t1", Server: "fieldrules", Success: false, Error: "timeout after 2s"})
	r.Record(model.ToolCallRecord{TurnID: "t2", Server: "weather"})

	traces := r.TurnTraces("t1")
	require.Len(t, traces, 2)
	assert.Equal(t, "weather", traces[0].Server)
	assert.Equal(t, "fieldrules", traces[1].Server)
	assert.False(t, traces[1].Success)

	assert.Equal(t, []string{"t1", "t2"}, r.Turns())
	assert.Empty(t, r.TurnTraces("unknown"))
}

// TestTurnTracesReturnsCopy verifies callers cannot mutate recorder state.
func TestTurnTracesReturnsCopy(t *testing.T) {
	r := NewRecorder()
	r.Record(model.ToolCallRecord{TurnID: "t1", Server: "weather"})

	traces := r.TurnTraces("t1")
	traces[0].Server = "mutated"

	assert.Equal(t, "weather", r.TurnTraces("t1")[0].Server)
}

// TestDropRemovesTurn verifies consumed turns disappear from both views.
func TestDropRemovesTurn(t *testing.T) {
	r := NewRecorder()
	r.Record(model.ToolCallRecord{TurnID: "t1"})
	r.Record(model.ToolCallRecord{TurnID: "t2"})

	r.Drop("t1")

	assert.Empty(t, r.TurnTraces("t1"))
	assert.Equal(t, []string{"t2"}, r.Turns())
}

// TestRecorderConcurrentRecord exercises the fan-out write path.
func TestRecorderConcurrentRecord(t *testing.T) {
	r := NewRecorder()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.Record(model.ToolCallRecord{TurnID: "t1", Server: fmt.Sprintf("s%d", i)})
		}(i)
	}
	wg.Wait()

	assert.Len(t, r.TurnTraces("t1"), 20)
}
