package domain

import (
	"context"
	"fmt"
	"iter"
	"strings"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks the commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows the commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityID
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	var names []string
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			names = append(names, v.Rule)
		}
	}
	if len(names) == 0 {
		return "entitygraph: commit blocked by rules"
	}
	return fmt.Sprintf("entitygraph: commit blocked by rules: %s", strings.Join(names, ", "))
}

// RuleView provides read-only access to the pending graph for rule
// evaluation. Snapshots and builders satisfy it.
type RuleView interface {
	Get(id EntityID) (*EntityData, bool)
	EntitiesOfKind(kind Kind) iter.Seq[*EntityData]
	Count(kind Kind) int
	ResolveSymbolic(sid SymbolicID) (*EntityData, bool)
	SoftLinksTo(sid SymbolicID) []EntityID
	EntitiesBySource(source EntitySource) []EntityID
}

// Rule defines an evaluation executed before a commit is published.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, view RuleView, changes []Change) (Result, error)
}

// RuleFunc adapts a function into a Rule.
type RuleFunc struct {
	RuleName string
	Fn       func(ctx context.Context, view RuleView, changes []Change) (Result, error)
}

// Name returns the rule name.
func (f RuleFunc) Name() string { return f.RuleName }

// Evaluate calls the wrapped function.
func (f RuleFunc) Evaluate(ctx context.Context, view RuleView, changes []Change) (Result, error) {
	return f.Fn(ctx, view, changes)
}

// RulesEngine orchestrates rule evaluation.
type RulesEngine struct {
	rules []Rule
}

// NewRulesEngine constructs an engine instance.
func NewRulesEngine() *RulesEngine {
	return &RulesEngine{}
}

// Register appends a rule to the engine.
func (e *RulesEngine) Register(rule Rule) {
	e.rules = append(e.rules, rule)
}

// Rules returns the registered rules in evaluation order.
func (e *RulesEngine) Rules() []Rule {
	return append([]Rule(nil), e.rules...)
}

// Evaluate executes all registered rules and aggregates their results.
func (e *RulesEngine) Evaluate(ctx context.Context, view RuleView, changes []Change) (Result, error) {
	var combined Result
	for _, rule := range e.rules {
		res, err := rule.Evaluate(ctx, view, changes)
		if err != nil {
			return Result{}, fmt.Errorf("rule %s: %w", rule.Name(), err)
		}
		combined.Merge(res)
	}
	return combined, nil
}
