package domain

import (
	"context"
	"errors"
	"iter"
	"strings"
	"testing"
)

func TestResultMergeAndBlocking(t *testing.T) {
	var result Result
	result.Merge(Result{Violations: []Violation{{Rule: "warn", Severity: SeverityWarn}}})
	if result.HasBlocking() {
		t.Fatalf("expected no blocking violations")
	}
	result.Merge(Result{Violations: []Violation{{Rule: "block", Severity: SeverityBlock}}})
	if !result.HasBlocking() {
		t.Fatalf("expected blocking violation")
	}
	err := RuleViolationError{Result: result}
	if !strings.Contains(err.Error(), "block") || strings.Contains(err.Error(), "warn") {
		t.Fatalf("expected only blocking rule names, got %q", err.Error())
	}
}

func TestResultMergeEmptyInput(t *testing.T) {
	original := Result{Violations: []Violation{{Rule: "existing", Severity: SeverityWarn}}}
	original.Merge(Result{})
	if len(original.Violations) != 1 || original.Violations[0].Rule != "existing" {
		t.Fatalf("expected original violations to remain, got %+v", original.Violations)
	}
}

func TestRulesEngineEvaluate(t *testing.T) {
	engine := NewRulesEngine()
	engine.Register(staticRule{"warn"})
	engine.Register(RuleFunc{RuleName: "count", Fn: func(_ context.Context, view RuleView, changes []Change) (Result, error) {
		if view.Count("module") != 0 || len(changes) != 1 {
			return Result{}, errors.New("unexpected input")
		}
		return Result{Violations: []Violation{{Rule: "count", Severity: SeverityLog}}}, nil
	}})
	res, err := engine.Evaluate(context.Background(), emptyView{}, []Change{{Action: ActionCreate}})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Violations) != 2 {
		t.Fatalf("expected two violations, got %+v", res.Violations)
	}
	if len(engine.Rules()) != 2 {
		t.Fatalf("expected two registered rules")
	}
}

func TestRulesEngineEvaluateError(t *testing.T) {
	engine := NewRulesEngine()
	engine.Register(errorRule{})
	_, err := engine.Evaluate(context.Background(), emptyView{}, nil)
	if err == nil || !strings.Contains(err.Error(), "rule error") {
		t.Fatalf("expected evaluation error naming the rule, got %v", err)
	}
}

type staticRule struct{ name string }

func (r staticRule) Name() string { return r.name }

func (r staticRule) Evaluate(context.Context, RuleView, []Change) (Result, error) {
	return Result{Violations: []Violation{{Rule: r.name, Severity: SeverityWarn}}}, nil
}

type errorRule struct{}

func (errorRule) Name() string { return "error" }

func (errorRule) Evaluate(context.Context, RuleView, []Change) (Result, error) {
	return Result{}, errors.New("boom")
}

type emptyView struct{}

func (emptyView) Get(EntityID) (*EntityData, bool) { return nil, false }
func (emptyView) EntitiesOfKind(Kind) iter.Seq[*EntityData] {
	return func(func(*EntityData) bool) {}
}
func (emptyView) Count(Kind) int                                { return 0 }
func (emptyView) ResolveSymbolic(SymbolicID) (*EntityData, bool) { return nil, false }
func (emptyView) SoftLinksTo(SymbolicID) []EntityID             { return nil }
func (emptyView) EntitiesBySource(EntitySource) []EntityID      { return nil }
