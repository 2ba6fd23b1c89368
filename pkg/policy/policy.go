// Package policy implements operator-authored override expressions that
// exempt known-good traffic from the three detection filters, an addition
// over the distilled spec (SPEC_FULL.md §4.5). Expressions are written in
// CEL and precompiled at load time, the way the upstream rule engine this
// was adapted from precompiles its whitelist/blacklist expressions.
package policy

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"gopkg.in/yaml.v3"

	"github.com/cesnet/ipspoof-detector/pkg/types"
)

// Rule is one named override, loaded from YAML.
type Rule struct {
	Name       string `yaml:"name"`
	Expression string `yaml:"expression"`
}

// ruleSet is the top-level shape of a policy file.
type ruleSet struct {
	Rules []Rule `yaml:"rules"`
}

// compiled is a loaded rule paired with its compiled CEL program.
type compiled struct {
	name    string
	program cel.Program
}

// Engine evaluates the compiled override rules against a flow record.
type Engine struct {
	env   *cel.Env
	rules []compiled
}

// NewEngine builds the shared CEL environment declaring the fields a
// policy expression may reference: src, dst (string presentation form),
// direction ("in"/"out"), and link_mask.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("src", cel.StringType),
		cel.Variable("dst", cel.StringType),
		cel.Variable("direction", cel.StringType),
		cel.Variable("link_mask", cel.UintType),
	)
	if err != nil {
		return nil, fmt.Errorf("policy: create CEL environment: %w", err)
	}
	return &Engine{env: env}, nil
}

// LoadYAML parses a policy file's rules and compiles each expression. A
// malformed expression is rejected here, at load time, rather than
// surfacing as a per-record evaluation error (spec.md §4.5).
func (e *Engine) LoadYAML(data []byte) error {
	var rs ruleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return fmt.Errorf("policy: parse YAML: %w", err)
	}
	for _, r := range rs.Rules {
		ast, issues := e.env.Compile(r.Expression)
		if issues != nil && issues.Err() != nil {
			return fmt.Errorf("policy: compile rule %q: %w", r.Name, issues.Err())
		}
		prg, err := e.env.Program(ast)
		if err != nil {
			return fmt.Errorf("policy: build program for rule %q: %w", r.Name, err)
		}
		e.rules = append(e.rules, compiled{name: r.Name, program: prg})
	}
	return nil
}

// Len reports how many compiled rules the engine holds.
func (e *Engine) Len() int { return len(e.rules) }

// Allow reports whether any rule exempts the record from detection, and if
// so which rule matched.
func (e *Engine) Allow(r *types.FlowRecord) (bool, string) {
	if len(e.rules) == 0 {
		return false, ""
	}
	direction := "out"
	if r.Direction == types.Incoming {
		direction = "in"
	}
	vars := map[string]interface{}{
		"src":       r.Src.String(),
		"dst":       r.Dst.String(),
		"direction": direction,
		"link_mask": r.LinkMask,
	}
	for _, rule := range e.rules {
		out, _, err := rule.program.Eval(vars)
		if err != nil {
			continue
		}
		if b, ok := out.Value().(bool); ok && b {
			return true, rule.name
		}
	}
	return false, ""
}
