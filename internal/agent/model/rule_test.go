package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func f(v float64) *float64 { return &v }

// TestPredicateHolds covers each operator against the decision context.
func TestPredicateHolds(t *testing.T) {
	ctx := DecisionContext{Facts: map[string]FactValue{
		"soil_moisture_pct": NumberFact(25),
		"rain_expected":     BoolFact(false),
		"crop":              StringFact("Cotton"),
	}}

	cases := []struct {
		name string
		pred Predicate
		want bool
	}{
		{"lt holds", Predicate{Fact: "soil_moisture_pct", Op: OpLT, Value: f(30)}, true},
		{"lt boundary excluded", Predicate{Fact: "soil_moisture_pct", Op: OpLT, Value: f(25)}, false},
		{"lte boundary included", Predicate{Fact: "soil_moisture_pct", Op: OpLTE, Value: f(25)}, true},
		{"gt fails", Predicate{Fact: "soil_moisture_pct", Op: OpGT, Value: f(30)}, false},
		{"gte boundary included", Predicate{Fact: "soil_moisture_pct", Op: OpGTE, Value: f(25)}, true},
		{"range inclusive", Predicate{Fact: "soil_moisture_pct", Op: OpRange, Min: f(25), Max: f(30)}, true},
		{"range outside", Predicate{Fact: "soil_moisture_pct", Op: OpRange, Min: f(30), Max: f(60)}, false},
		{"eq bool", Predicate{Fact: "rain_expected", Op: OpEQ, Equals: false}, true},
		{"eq bool mismatch", Predicate{Fact: "rain_expected", Op: OpEQ, Equals: true}, false},
		{"eq string case-insensitive", Predicate{Fact: "crop", Op: OpEQ, Equals: "cotton"}, true},
		{"eq type mismatch never matches", Predicate{Fact: "crop", Op: OpEQ, Equals: 12.0}, false},
		{"missing fact never matches", Predicate{Fact: "growth_stage", Op: OpEQ, Equals: "squaring"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.pred.Holds(ctx))
		})
	}
}

// TestRuleMatchesRequiresAllPredicates verifies conjunction semantics.
func TestRuleMatchesRequiresAllPredicates(t *testing.T) {
	rule := Rule{
		ID:       "AZ-IRR-001",
		Category: "irrigation",
		Action:   "irrigate",
		Weight:   0.95,
		When: []Predicate{
			{Fact: "soil_moisture_pct", Op: OpLT, Value: f(30)},
			{Fact: "rain_expected", Op: OpEQ, Equals: false},
		},
	}

	dry := DecisionContext{Facts: map[string]FactValue{
		"soil_moisture_pct": NumberFact(25),
		"rain_expected":     BoolFact(false),
	}}
	assert.True(t, rule.Matches(dry))

	rainy := DecisionContext{Facts: map[string]FactValue{
		"soil_moisture_pct": NumberFact(25),
		"rain_expected":     BoolFact(true),
	}}
	assert.False(t, rule.Matches(rainy))
}

// TestRuleValidate rejects malformed definitions.
func TestRuleValidate(t *testing.T) {
	valid := Rule{
		ID: "R1", Category: "irrigation", Action: "irrigate", Weight: 0.5,
		When: []Predicate{{Fact: "temp_c", Op: OpGT, Value: f(30)}},
	}
	assert.NoError(t, valid.Validate())

	cases := []struct {
		name   string
		mutate func(Rule) Rule
	}{
		{"missing id", func(r Rule) Rule { r.ID = " "; return r }},
		{"missing action", func(r Rule) Rule { r.Action = ""; return r }},
		{"weight out of range", func(r Rule) Rule { r.Weight = 1.2; return r }},
		{"no predicates", func(r Rule) Rule { r.When = nil; return r }},
		{"unknown op", func(r Rule) Rule { r.When = []Predicate{{Fact: "x", Op: "near"}}; return r }},
		{"range min above max", func(r Rule) Rule {
			r.When = []Predicate{{Fact: "x", Op: OpRange, Min: f(2), Max: f(1)}}
			return r
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Error(t, tc.mutate(valid).Validate())
		})
	}
}

// TestBuildDecisionContext verifies fact keys assembled from profile and
// gathered facts.
func TestBuildDecisionContext(t *testing.T) {
	field := &FieldProfile{Crop: "cotton", SoilType: "sandy_loam"}
	weather := &WeatherFacts{TempC: 36, HumidityPct: 35, RainExpected: false}
	facts := &FieldFacts{SoilMoisturePct: 25, GrowthStage: "squaring", IrrigationScheduled: false}

	ctx := BuildDecisionContext("irrigation_advice", field, weather, facts)

	assert.Equal(t, "irrigation_advice", ctx.Intent)
	v, ok := ctx.Fact("soil_moisture_pct")
	assert.True(t, ok)
	assert.InDelta(t, 25, v.Num, 1e-9)
	v, ok = ctx.Fact("crop")
	assert.True(t, ok)
	assert.Equal(t, "cotton", v.Str)
	v, ok = ctx.Fact("rain_expected")
	assert.True(t, ok)
	assert.False(t, v.Bool)
	_, ok = ctx.Fact("nonexistent")
	assert.False(t, ok)
}
