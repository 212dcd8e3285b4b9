// Package handlers adapts raw tool-call results into the typed facts the
// validator consumes. Every handler follows the same shape: check server
// health, dispatch one call, parse the opaque payload, and fall back to a
// deterministic synthetic value when anything goes wrong. Handlers never
// return tool failures to the orchestrator; the only error they can surface
// is a configuration defect (a handler bound to an unconfigured server).
package handlers

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/AgriMind-advisor-poc/server/internal/agent/toolcall"
)

// Server and operation names the handlers are bound to.
const (
	ServerWeather    = "weather"
	ServerFieldRules = "fieldrules"

	OpGetForecast    = "get_forecast"
	OpGetFieldStatus = "get_field_status"
)

// Deps carries the shared collaborators of all handlers.
type Deps struct {
	Dispatcher *toolcall.Dispatcher

	// FallbackToSynthetic enables climatology/profile-derived fallback values.
	// When disabled, handlers still return a usable zero-valued fact set
	// tagged synthetic, so callers never observe a failure.
	FallbackToSynthetic bool

	// Now supplies the clock for seasonal synthesis. Nil means time.Now.
	Now func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// decode round-trips the opaque tool payload into the typed destination.
// Unknown fields are ignored; a type mismatch is a parse failure.
func decode(data map[string]any, dst any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("re-encode payload: %w", err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}
