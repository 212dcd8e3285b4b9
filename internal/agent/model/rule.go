package model

import (
	"fmt"
	"strings"
)

// Predicate operators. A rule matches only when all of its predicates hold.
const (
	OpLT    = "lt"
	OpLTE   = "lte"
	OpGT    = "gt"
	OpGTE   = "gte"
	OpEQ    = "eq"
	OpRange = "range"
)

// Predicate is one tagged condition over a named fact.
// Exactly one operand group applies per operator:
//   - lt/lte/gt/gte: Value
//   - eq:            Equals (string, bool, or number)
//   - range:         Min and Max (inclusive)
type Predicate struct {
	Fact   string   `yaml:"fact"`
	Op     string   `yaml:"op"`
	Value  *float64 `yaml:"value,omitempty"`
	Equals any      `yaml:"equals,omitempty"`
	Min    *float64 `yaml:"min,omitempty"`
	Max    *float64 `yaml:"max,omitempty"`
}

// Validate reports malformed predicate definitions. Rule files are static
// configuration, so a failure here is a deployment defect.
func (p Predicate) Validate() error {
	if strings.TrimSpace(p.Fact) == "" {
		return fmt.Errorf("predicate missing fact name")
	}
	switch p.Op {
	case OpLT, OpLTE, OpGT, OpGTE:
		if p.Value == nil {
			return fmt.Errorf("predicate %s/%s missing value", p.Fact, p.Op)
		}
	case OpEQ:
		if p.Equals == nil {
			return fmt.Errorf("predicate %s/eq missing equals operand", p.Fact)
		}
	case OpRange:
		if p.Min == nil || p.Max == nil {
			return fmt.Errorf("predicate %s/range missing min or max", p.Fact)
		}
		if *p.Min > *p.Max {
			return fmt.Errorf("predicate %s/range min > max", p.Fact)
		}
	default:
		return fmt.Errorf("predicate %s has unknown op %q", p.Fact, p.Op)
	}
	return nil
}

// Holds evaluates the predicate against the decision context.
// A missing fact never matches.
func (p Predicate) Holds(ctx DecisionContext) bool {
	v, ok := ctx.Fact(p.Fact)
	if !ok {
		return false
	}
	switch p.Op {
	case OpLT:
		return v.Kind == FactNumber && v.Num < *p.Value
	case OpLTE:
		return v.Kind == FactNumber && v.Num <= *p.Value
	case OpGT:
		return v.Kind == FactNumber && v.Num > *p.Value
	case OpGTE:
		return v.Kind == FactNumber && v.Num >= *p.Value
	case OpRange:
		return v.Kind == FactNumber && v.Num >= *p.Min && v.Num <= *p.Max
	case OpEQ:
		return equalsFact(v, p.Equals)
	default:
		return false
	}
}

func equalsFact(v FactValue, operand any) bool {
	switch want := operand.(type) {
	case string:
		return v.Kind == FactString && strings.EqualFold(v.Str, want)
	case bool:
		return v.Kind == FactBool && v.Bool == want
	case int:
		return v.Kind == FactNumber && v.Num == float64(want)
	case float64:
		return v.Kind == FactNumber && v.Num == want
	default:
		return false
	}
}

// Rule is a deterministic matcher plus action/weight pair, loaded from static
// configuration. Read-only input to the validator.
type Rule struct {
	ID       string      `yaml:"id"`
	Category string      `yaml:"category"`
	Action   string      `yaml:"action"`
	Weight   float64     `yaml:"weight"`
	When     []Predicate `yaml:"when"`
}

// Validate reports malformed rule definitions.
func (r Rule) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("rule missing id")
	}
	if strings.TrimSpace(r.Category) == "" {
		return fmt.Errorf("rule %s missing category", r.ID)
	}
	if strings.TrimSpace(r.Action) == "" {
		return fmt.Errorf("rule %s missing action", r.ID)
	}
	if r.Weight < 0 || r.Weight > 1 {
		return fmt.Errorf("rule %s weight %g out of [0,1]", r.ID, r.Weight)
	}
	if len(r.When) == 0 {
		return fmt.Errorf("rule %s has no predicates", r.ID)
	}
	for _, p := range r.When {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("rule %s: %w", r.ID, err)
		}
	}
	return nil
}

// Matches reports whether every predicate of the rule holds for ctx.
func (r Rule) Matches(ctx DecisionContext) bool {
	for _, p := range r.When {
		if !p.Holds(ctx) {
			return false
		}
	}
	return true
}
