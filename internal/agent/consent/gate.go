// Package consent enforces the data-usage policy on recommendation output.
package consent

import (
	"strings"

	"github.com/AgriMind-advisor-poc/server/internal/agent/model"
)

// Apply strips tool-sourced attribution from the recommendation when the
// user has not consented to disclosure. Action and confidence are never
// altered. Pure, total, and idempotent: synthetic or local-fallback
// provenance carries nothing to strip, and an already-stripped
// recommendation passes through unchanged.
func Apply(rec model.Recommendation, consentGiven bool) model.Recommendation {
	if consentGiven {
		return rec
	}
	if !model.Provenance(rec.Attribution).IsTool() {
		return rec
	}

	server := strings.TrimPrefix(rec.Attribution, "tool:")
	rec.Attribution = model.AttributionLocal
	rec.Rationale = scrub(rec.Rationale, server)
	return rec
}

// scrub removes source-specific mentions from rationale text.
func scrub(rationale, server string) string {
	if server == "" {
		return rationale
	}
	cleaned := strings.ReplaceAll(rationale, "tool:"+server, model.AttributionLocal)
	return strings.ReplaceAll(cleaned, server, model.AttributionLocal)
}
