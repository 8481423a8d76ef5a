// Package allocation attributes resource cost to business units by
// evaluating an ordered, versioned rule list over tags, kind and
// provider. Rule changes only affect future evaluations; historical
// allocations are never rewritten.
package allocation

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Unallocated is the fallback bucket for resources no rule matches.
const Unallocated = "unallocated"

// Rule maps a predicate to a business unit. When is a CEL expression
// over the variables kind, provider, status, region and tags.
type Rule struct {
	Name string `yaml:"name"`
	When string `yaml:"when"`
	Unit string `yaml:"unit"`
}

// RuleSet is an ordered rule list. First matching rule wins. Version
// increases with every edit so assignments record which rules produced
// them.
type RuleSet struct {
	Version int    `yaml:"version"`
	Rules   []Rule `yaml:"rules"`
}

// LoadRuleSet reads a rule file.
func LoadRuleSet(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is intentional user input
	if err != nil {
		return nil, fmt.Errorf("read rule file: %w", err)
	}
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("parse rule file: %w", err)
	}
	if err := rs.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rule file: %w", err)
	}
	return &rs, nil
}

// Validate checks structural requirements before compilation.
func (rs *RuleSet) Validate() error {
	if rs.Version <= 0 {
		return fmt.Errorf("version must be positive")
	}
	seen := make(map[string]bool, len(rs.Rules))
	for i, rule := range rs.Rules {
		if rule.Name == "" {
			return fmt.Errorf("rule %d: name is required", i)
		}
		if seen[rule.Name] {
			return fmt.Errorf("duplicate rule name %q", rule.Name)
		}
		seen[rule.Name] = true
		if rule.When == "" {
			return fmt.Errorf("rule %q: when is required", rule.Name)
		}
		if rule.Unit == "" {
			return fmt.Errorf("rule %q: unit is required", rule.Name)
		}
	}
	return nil
}
