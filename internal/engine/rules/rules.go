// Package rules compiles director-authored CEL expressions into extra
// triggers that run alongside the fixed 4Ps table.
//
// An expression sees three variables: profile and client (maps shaped like
// their JSON form) and flags (a list of flag maps). Absent observations are
// missing keys, so expressions should guard with has():
//
//	has(profile.physical.pain_level) && profile.physical.pain_level >= 9.0
//
// Custom rules add trigger records and required actions only. They never
// change severity points.
package rules

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"

	"careline/internal/domain"
	"careline/internal/engine/triggers"
)

// SourcePrefix marks records produced by a custom rule.
const SourcePrefix = "Rule:"

// CostLimit bounds the runtime cost of one rule evaluation. A rule that
// exceeds it does not match.
const CostLimit = 10000

// Definition is one rule as written in configuration.
type Definition struct {
	ID        string           `json:"id" yaml:"id"`
	Dimension domain.Dimension `json:"dimension" yaml:"dimension"`
	Reason    string           `json:"reason" yaml:"reason"`
	When      string           `json:"when" yaml:"when"`
}

type compiled struct {
	def  Definition
	prog cel.Program
}

// Set is a compiled, immutable list of rules. The zero value and nil match nothing.
type Set struct {
	rules []compiled
}

func newEnv() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable("profile", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("client", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("flags", cel.ListType(cel.MapType(cel.StringType, cel.DynType))),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}
	return env, nil
}

// Compile checks and compiles every definition. Any bad rule fails the whole set.
func Compile(defs []Definition) (*Set, error) {
	if len(defs) == 0 {
		return &Set{}, nil
	}
	env, err := newEnv()
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	set := &Set{rules: make([]compiled, 0, len(defs))}
	for i, d := range defs {
		field := fmt.Sprintf("rules[%d]", i)
		if strings.TrimSpace(d.ID) == "" {
			return nil, domain.Invalid(field+".id", "required")
		}
		if seen[d.ID] {
			return nil, domain.Invalid(field+".id", "duplicate rule id %q", d.ID)
		}
		seen[d.ID] = true
		if !d.Dimension.Valid() {
			return nil, domain.Invalid(field+".dimension", "unknown dimension %q", d.Dimension)
		}
		if strings.TrimSpace(d.Reason) == "" {
			return nil, domain.Invalid(field+".reason", "required")
		}
		ast, issues := env.Compile(d.When)
		if issues != nil && issues.Err() != nil {
			return nil, domain.Invalid(field+".when", "CEL compile error: %v", issues.Err())
		}
		if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
			return nil, domain.Invalid(field+".when", "expression must return bool, got %s", out)
		}
		prog, err := env.Program(ast, cel.CostLimit(CostLimit))
		if err != nil {
			return nil, domain.Invalid(field+".when", "CEL program error: %v", err)
		}
		set.rules = append(set.rules, compiled{def: d, prog: prog})
	}
	return set, nil
}

// Len reports the number of compiled rules.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.rules)
}

// Definitions returns the source definitions in order.
func (s *Set) Definitions() []Definition {
	if s == nil {
		return nil
	}
	out := make([]Definition, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, r.def)
	}
	return out
}

// Triggers evaluates every rule. A rule whose expression fails at runtime
// (a missing key without has(), a non-bool result) does not match.
func (s *Set) Triggers(profile domain.ConditionProfile, flags []domain.Flag, client domain.ClientContext) []domain.TriggerRecord {
	recs := []domain.TriggerRecord{}
	if s.Len() == 0 {
		return recs
	}
	activation := map[string]any{
		"profile": asMap(profile),
		"client":  asMap(client),
		"flags":   asList(flags),
	}
	for _, r := range s.rules {
		out, _, err := r.prog.Eval(activation)
		if err != nil {
			continue
		}
		if matched, ok := out.Value().(bool); ok && matched {
			recs = append(recs, domain.TriggerRecord{
				Dimension: r.def.Dimension,
				Reason:    r.def.Reason,
				Source:    SourcePrefix + r.def.ID,
			})
		}
	}
	return recs
}

// Apply appends custom triggers to a result and rebuilds its required actions.
func Apply(result domain.EvaluationResult, extra []domain.TriggerRecord) domain.EvaluationResult {
	if len(extra) == 0 {
		return result
	}
	merged := make([]domain.TriggerRecord, 0, len(result.Triggers)+len(extra))
	merged = append(merged, result.Triggers...)
	merged = append(merged, extra...)
	result.Triggers = merged
	result.RequiredActions = triggers.RequiredActions(merged)
	return result
}

// Evaluate runs the fixed engine and then the custom rules.
func (s *Set) Evaluate(profile domain.ConditionProfile, flags []domain.Flag, client domain.ClientContext) domain.EvaluationResult {
	res := triggers.Evaluate(profile, flags, client)
	return Apply(res, s.Triggers(profile, flags, client))
}

func asMap(v any) map[string]any {
	out := map[string]any{}
	b, err := json.Marshal(v)
	if err != nil {
		return out
	}
	_ = json.Unmarshal(b, &out)
	return out
}

func asList(flags []domain.Flag) []any {
	out := make([]any, 0, len(flags))
	for _, f := range flags {
		out = append(out, asMap(f))
	}
	return out
}
