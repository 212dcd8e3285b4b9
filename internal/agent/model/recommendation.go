package model

// Source / attribution labels.
const (
	SourceLocalFallback = "local-fallback"
	AttributionLocal    = "local recommendation"
)

// Recommendation is the normalized decision output of a turn.
// Confidence is always in [0,1]; Source is always set, even in fallback.
type Recommendation struct {
	Action      string  `json:"action"`
	Rationale   string  `json:"rationale"`
	Confidence  float64 `json:"confidence"`
	Source      string  `json:"source"`
	Attribution string  `json:"attribution,omitempty"`
}

// IntentResult is the classifier's reading of the current user message.
// Synthetic marks a locally derived classification (model unavailable or
// unparseable output).
type IntentResult struct {
	Name       string            `json:"name"`
	Confidence float64           `json:"confidence"`
	Entities   map[string]string `json:"entities,omitempty"`
	Synthetic  bool              `json:"synthetic,omitempty"`
}
