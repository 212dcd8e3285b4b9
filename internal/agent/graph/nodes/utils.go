package nodes

import (
	"fmt"

	"github.com/AgriMind-advisor-poc/server/internal/agent/model"
)

// highStakesIntents gate the low-confidence escalation branch: advice in
// these categories should not be given confidently on thin data.
var highStakesIntents = map[string]bool{
	"irrigation_advice": true,
	"pest_treatment":    true,
}

// supportingProvenance picks the attribution for a recommendation from the
// facts that back it: real tool data wins over synthetic values, and field
// conditions are the primary evidence for agronomic rules.
func supportingProvenance(bag model.ContextBag) model.Provenance {
	if bag.FieldFacts != nil && bag.FieldFacts.Provenance.IsTool() {
		return bag.FieldFacts.Provenance
	}
	if bag.Weather != nil && bag.Weather.Provenance.IsTool() {
		return bag.Weather.Provenance
	}
	return model.ProvenanceSynthetic
}

// renderFallbackAnswer is the deterministic answer used when the composer
// model is unavailable.
func renderFallbackAnswer(rec model.Recommendation) string {
	answer := fmt.Sprintf("Recommended action: %s (confidence %.2f). %s.",
		rec.Action, rec.Confidence, rec.Rationale)
	if rec.Confidence < 0.5 {
		answer += " This advice is tentative; please verify current field conditions."
	}
	return answer
}
