package model

import "time"

// ToolCallRecord is one attempt to call a named tool's named operation.
// Exactly one record exists per attempted call, regardless of outcome.
// Immutable after creation.
type ToolCallRecord struct {
	TurnID    string         `json:"turn_id"`
	Server    string         `json:"server"`
	Operation string         `json:"operation"`
	Args      map[string]any `json:"args,omitempty"`
	Output    map[string]any `json:"output,omitempty"`
	Duration  time.Duration  `json:"duration"`
	Success   bool           `json:"success"`
	Error     string         `json:"error,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
