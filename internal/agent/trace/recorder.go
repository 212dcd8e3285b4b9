// Package trace keeps the append-only log of tool-call attempts for replay
// and observability. One record per attempted call, success or not.
package trace

import (
	"sync"

	"github.com/AgriMind-advisor-poc/server/internal/agent/model"
)

// Recorder collects ToolCallRecords grouped by turn. Safe for concurrent use;
// the fact-gathering fan-out records from multiple goroutines.
type Recorder struct {
	mu      sync.RWMutex
	byTurn  map[string][]model.ToolCallRecord
	ordered []string
}

func NewRecorder() *Recorder {
	return &Recorder{byTurn: make(map[string][]model.ToolCallRecord)}
}

// Record appends one tool-call record. Records are immutable after creation,
// so the recorder stores them by value.
func (r *Recorder) Record(rec model.ToolCallRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byTurn[rec.TurnID]; !ok {
		r.ordered = append(r.ordered, rec.TurnID)
	}
	r.byTurn[rec.TurnID] = append(r.byTurn[rec.TurnID], rec)
}

// TurnTraces returns a copy of all records for one turn, in append order.
func (r *Recorder) TurnTraces(turnID string) []model.ToolCallRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	recs := r.byTurn[turnID]
	out := make([]model.ToolCallRecord, len(recs))
	copy(out, recs)
	return out
}

// Turns returns the turn ids seen so far, oldest first.
func (r *Recorder) Turns() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Drop removes a turn's records once the external sink has consumed them.
func (r *Recorder) Drop(turnID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byTurn, turnID)
	for i, id := range r.ordered {
		if id == turnID {
			r.ordered = append(r.ordered[:i], r.ordered[i+1:]...)
			break
		}
	}
}
