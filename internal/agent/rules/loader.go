// Package rules evaluates the static agronomic rule catalog against a turn's
// decision context and scores the resulting recommendation. Evaluation is
// pure and deterministic; the only failure mode is malformed rule data at
// load time, which is a configuration error.
package rules

import (
	"fmt"
	"os"

	"github.com/AgriMind-advisor-poc/server/internal/agent/model"
	errx "github.com/AgriMind-advisor-poc/server/internal/core/error"
	logx "github.com/AgriMind-advisor-poc/server/pkg/logger"
	"gopkg.in/yaml.v3"
)

// Set is a validated, read-only rule catalog indexed by category.
type Set struct {
	rules      []model.Rule
	byCategory map[string][]model.Rule
}

type rulesFile struct {
	Rules []model.Rule `yaml:"rules"`
}

// Load reads and validates a YAML rule file. Any defect is wrapped as a
// configuration error, since rule files ship with the deployment.
func Load(path string) (*Set, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errx.WrapConfig(fmt.Errorf("read rule file %s: %w", path, err))
	}

	var file rulesFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, errx.WrapConfig(fmt.Errorf("parse rule file %s: %w", path, err))
	}

	set, err := FromRules(file.Rules)
	if err != nil {
		return nil, err
	}
	logx.Info().Int("rules", len(file.Rules)).Str("path", path).Msg("rule catalog loaded")
	return set, nil
}

// FromRules builds a Set from already-decoded rules, validating each one.
func FromRules(rules []model.Rule) (*Set, error) {
	if len(rules) == 0 {
		return nil, errx.WrapConfig(fmt.Errorf("rule catalog is empty"))
	}

	byCategory := make(map[string][]model.Rule)
	seen := make(map[string]bool, len(rules))
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return nil, errx.WrapConfig(err)
		}
		if seen[r.ID] {
			return nil, errx.WrapConfig(fmt.Errorf("duplicate rule id %s", r.ID))
		}
		seen[r.ID] = true
		byCategory[r.Category] = append(byCategory[r.Category], r)
	}
	return &Set{rules: rules, byCategory: byCategory}, nil
}

// Category returns the rules applicable to one category.
func (s *Set) Category(category string) []model.Rule {
	return s.byCategory[category]
}

// Len reports the total number of rules.
func (s *Set) Len() int {
	return len(s.rules)
}
