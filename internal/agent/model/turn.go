package model

import "context"

// TurnInput is the orchestrator entry payload for one user turn.
type TurnInput struct {
	ConversationID string `json:"conversation_id"`
	Query          string `json:"query"`
	ConsentGiven   bool   `json:"consent_given"`
}

// TurnResult is the terminal output of a completed turn: the final state for
// persistence by the caller, the gated recommendation, and the rendered
// user-facing answer.
type TurnResult struct {
	State          State           `json:"state"`
	Recommendation *Recommendation `json:"recommendation"`
	Answer         string          `json:"answer"`
}

// StateRepository persists turn-state snapshots between turns.
type StateRepository interface {
	// LoadSnapshot returns the last persisted snapshot for the conversation,
	// or a zero-valued snapshot (with the ID set) when none exists.
	LoadSnapshot(ctx context.Context, conversationID string) (State, error)

	// SaveSnapshot persists the end-of-turn state.
	SaveSnapshot(ctx context.Context, state State) error

	// ClearSnapshot removes all persisted state for the conversation.
	ClearSnapshot(ctx context.Context, conversationID string) error
}
