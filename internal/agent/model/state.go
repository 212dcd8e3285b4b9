package model

import (
	"github.com/cloudwego/eino/schema"
)

// TurnPhase names the orchestrator's state-machine phases for one turn.
type TurnPhase string

const (
	PhaseLoadingContext    TurnPhase = "loading_context"
	PhaseClassifyingIntent TurnPhase = "classifying_intent"
	PhaseGatheringFacts    TurnPhase = "gathering_facts"
	PhaseValidating        TurnPhase = "validating"
	PhaseApplyingConsent   TurnPhase = "applying_consent"
	PhaseDone              TurnPhase = "done"
	PhaseFailed            TurnPhase = "failed"
)

// ContextBag is the typed context carried through a turn: who is asking,
// which field, and the environmental facts gathered so far.
type ContextBag struct {
	User       *UserProfile  `json:"user,omitempty"`
	Field      *FieldProfile `json:"field,omitempty"`
	Weather    *WeatherFacts `json:"weather,omitempty"`
	FieldFacts *FieldFacts   `json:"field_facts,omitempty"`
}

// State is the single record threaded through one conversation turn.
//
// State is never mutated in place: each orchestrator step produces a
// StateUpdate that Merge applies over the previous State, yielding a new
// value. Partial failure in one step therefore cannot corrupt fields
// written by another.
type State struct {
	ConversationID string            `json:"conversation_id"`
	TurnID         string            `json:"turn_id"`
	Messages       []*schema.Message `json:"messages"`
	Context        ContextBag        `json:"context"`
	Intent         *IntentResult     `json:"intent,omitempty"`
	Health         ServerHealth      `json:"-"`
	ToolCalls      []ToolCallRecord  `json:"tool_calls,omitempty"`
	ConsentGiven   bool              `json:"consent_given"`
	Recommendation *Recommendation   `json:"recommendation,omitempty"`
	Answer         string            `json:"answer,omitempty"`
	Phase          TurnPhase         `json:"phase"`

	// Accumulated LLM cost (USD) across model invocations for this turn.
	TotalCostUSD float64 `json:"total_cost_usd,omitempty"`
}

// NewTurn derives the starting State of a fresh turn from a persisted
// snapshot. Conversation identity, message history, and the static context
// profiles survive; everything scoped to a single turn is reset.
func (s State) NewTurn(turnID string, consentGiven bool) State {
	next := State{
		ConversationID: s.ConversationID,
		TurnID:         turnID,
		Messages:       append([]*schema.Message(nil), s.Messages...),
		ConsentGiven:   consentGiven,
		Phase:          PhaseLoadingContext,
	}
	next.Context.User = s.Context.User
	next.Context.Field = s.Context.Field
	return next
}

// StateUpdate is one step's partial contribution to the turn State.
// Zero-valued fields are "not present" and leave the previous value intact;
// Append* fields accumulate.
type StateUpdate struct {
	Phase           TurnPhase
	AppendMessages  []*schema.Message
	User            *UserProfile
	Field           *FieldProfile
	Weather         *WeatherFacts
	FieldFacts      *FieldFacts
	Intent          *IntentResult
	Health          ServerHealth
	AppendToolCalls []ToolCallRecord
	Recommendation  *Recommendation
	Answer          *string
	AddCostUSD      float64
}

// Merge applies upd over prev and returns the resulting State. Additive
// merge: only keys present in the update are replaced, list fields append.
func Merge(prev State, upd StateUpdate) State {
	next := prev
	next.Messages = append(append([]*schema.Message(nil), prev.Messages...), upd.AppendMessages...)
	next.ToolCalls = append(append([]ToolCallRecord(nil), prev.ToolCalls...), upd.AppendToolCalls...)

	if upd.Phase != "" {
		next.Phase = upd.Phase
	}
	if upd.User != nil {
		next.Context.User = upd.User
	}
	if upd.Field != nil {
		next.Context.Field = upd.Field
	}
	if upd.Weather != nil {
		next.Context.Weather = upd.Weather
	}
	if upd.FieldFacts != nil {
		next.Context.FieldFacts = upd.FieldFacts
	}
	if upd.Intent != nil {
		next.Intent = upd.Intent
	}
	if upd.Health != nil {
		next.Health = upd.Health
	}
	if upd.Recommendation != nil {
		next.Recommendation = upd.Recommendation
	}
	if upd.Answer != nil {
		next.Answer = *upd.Answer
	}
	next.TotalCostUSD = prev.TotalCostUSD + upd.AddCostUSD
	return next
}

// GraphState stores per-invocation state for the eino graph.
// Concurrency model:
//   - Registered as graph local state via compose.WithGenLocalState.
//   - All reads/writes happen only inside eino state handlers
//     (WithStatePreHandler, WithStatePostHandler, compose.ProcessState),
//     which eino serializes, so no extra locking is needed.
//   - Current is replaced wholesale via Merge, never mutated field by field.
type GraphState struct {
	Current State
}

// Apply merges a step's update into the held State.
func (g *GraphState) Apply(upd StateUpdate) {
	g.Current = Merge(g.Current, upd)
}
