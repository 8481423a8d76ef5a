package allocation

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/checker/decls"

	"github.com/finopskit/kosten/types"
)

// Result is one allocation decision.
type Result struct {
	BusinessUnit string
	RuleName     string
	RuleVersion  int
	Matched      bool
}

type compiledRule struct {
	rule    Rule
	program cel.Program
}

// Engine evaluates a compiled rule set. Allocation is a pure function
// of the resource's current state; it is safe to re-run any number of
// times.
type Engine struct {
	version  int
	programs []compiledRule
}

// NewEngine compiles the rule set. Predicates that do not produce a
// boolean are rejected at compile time.
func NewEngine(rs *RuleSet) (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Declarations(
			decls.NewVar("kind", decls.String),
			decls.NewVar("provider", decls.String),
			decls.NewVar("status", decls.String),
			decls.NewVar("region", decls.String),
			decls.NewVar("tags", decls.NewMapType(decls.String, decls.String)),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create rule env: %w", err)
	}

	programs := make([]compiledRule, 0, len(rs.Rules))
	for _, rule := range rs.Rules {
		ast, issues := env.Compile(rule.When)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("rule %q: %w", rule.Name, issues.Err())
		}
		if !ast.OutputType().IsExactType(cel.BoolType) {
			return nil, fmt.Errorf("rule %q: predicate must be boolean, got %s", rule.Name, ast.OutputType())
		}
		program, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", rule.Name, err)
		}
		programs = append(programs, compiledRule{rule: rule, program: program})
	}

	return &Engine{version: rs.Version, programs: programs}, nil
}

// Version returns the compiled rule set version.
func (e *Engine) Version() int { return e.version }

// Allocate evaluates rules in order against the resource and its tag
// set; the first match wins, unmatched resources fall to Unallocated.
func (e *Engine) Allocate(res *types.Resource, tags types.TagSet) Result {
	vars := map[string]any{
		"kind":     string(res.Kind),
		"provider": res.Provider,
		"status":   string(res.Status),
		"region":   res.Region,
		"tags":     tags.Values(),
	}

	for _, compiled := range e.programs {
		out, _, err := compiled.program.Eval(vars)
		if err != nil {
			// Evaluation errors (e.g. missing map key in a non-guarded
			// expression) skip the rule rather than failing allocation.
			continue
		}
		if matched, ok := out.Value().(bool); ok && matched {
			return Result{
				BusinessUnit: compiled.rule.Unit,
				RuleName:     compiled.rule.Name,
				RuleVersion:  e.version,
				Matched:      true,
			}
		}
	}
	return Result{BusinessUnit: Unallocated, RuleVersion: e.version}
}
