package rules

import (
	"fmt"
	"sort"
	"strings"

	"github.com/AgriMind-advisor-poc/server/internal/agent/model"
	logx "github.com/AgriMind-advisor-poc/server/pkg/logger"
)

// Scoring constants. The agreement bonus is flat and the total is capped at
// 1.0; the proportional variant seen elsewhere is deliberately not used.
const (
	matchBonus          = 0.4
	agreementBonus      = 0.1
	contradictionFactor = 0.5
	coveragePenalty     = 0.7

	fallbackAction = "monitor"
)

// intentCategory maps classifier intents onto rule-catalog categories.
// Intents without a category never match rules and take the fallback path.
var intentCategory = map[string]string{
	"irrigation_advice": "irrigation",
	"pest_treatment":    "pest",
	"fertilization":     "fertilization",
}

// Validator scores decision contexts against the loaded rule catalog.
type Validator struct {
	set *Set
}

func NewValidator(set *Set) *Validator {
	return &Validator{set: set}
}

// Evaluate matches the applicable rule subset against ctx and produces the
// turn's Recommendation. baseConfidence is the classifier's raw confidence;
// attribution names the provenance of the supporting facts. Pure: no I/O.
func (v *Validator) Evaluate(ctx model.DecisionContext, baseConfidence float64, attribution model.Provenance) model.Recommendation {
	subset := v.set.Category(intentCategory[ctx.Intent])

	var matched []model.Rule
	for _, r := range subset {
		if r.Matches(ctx) {
			matched = append(matched, r)
		}
	}

	score := clamp01(baseConfidence)

	if len(matched) == 0 {
		rec := model.Recommendation{
			Action:      fallbackAction,
			Rationale:   fmt.Sprintf("no rule matched for intent %q; defaulting to %s", ctx.Intent, fallbackAction),
			Confidence:  clamp01(score * coveragePenalty),
			Source:      model.SourceLocalFallback,
			Attribution: string(attribution),
		}
		logx.Debug().Str("intent", ctx.Intent).Float64("confidence", rec.Confidence).Msg("no rule coverage")
		return rec
	}

	// highest weight wins the citation; ties break on id for determinism
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].Weight != matched[j].Weight {
			return matched[i].Weight > matched[j].Weight
		}
		return matched[i].ID < matched[j].ID
	})
	top := matched[0]
	score += matchBonus

	agreeing := 0
	var opposing []model.Rule
	for _, r := range matched[1:] {
		if r.Action == top.Action {
			agreeing++
		} else {
			opposing = append(opposing, r)
		}
	}
	if agreeing > 0 {
		score += agreementBonus
	}
	score = clamp01(score)

	rationale := fmt.Sprintf("rule %s matched: %s (weight %.2f)", top.ID, top.Action, top.Weight)
	if agreeing > 0 {
		rationale += fmt.Sprintf("; %d further rule(s) agree", agreeing)
	}
	if len(opposing) > 0 {
		// contradicting facts halve the confidence and both sides are cited
		score = clamp01(score * contradictionFactor)
		ids := make([]string, 0, len(opposing))
		for _, r := range opposing {
			ids = append(ids, fmt.Sprintf("%s (%s)", r.ID, r.Action))
		}
		rationale += "; contradicted by " + strings.Join(ids, ", ")
	}

	rec := model.Recommendation{
		Action:      top.Action,
		Rationale:   rationale,
		Confidence:  score,
		Source:      top.ID,
		Attribution: string(attribution),
	}
	logx.Debug().
		Str("intent", ctx.Intent).
		Str("rule", top.ID).
		Str("action", rec.Action).
		Float64("confidence", rec.Confidence).
		Int("matched", len(matched)).
		Msg("rule evaluation complete")
	return rec
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
