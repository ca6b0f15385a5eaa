package engine

import (
	"context"
	"errors"
	"testing"
)

func noopAction(target string) Action {
	return Action{
		Operation: Operation{Verb: VerbInstall, Target: target, Subsystem: "test"},
		Run:       func(ctx context.Context) error { return nil },
	}
}

func failingAction(target string) Action {
	return Action{
		Operation: Operation{Verb: VerbInstall, Target: target, Subsystem: "test"},
		Run:       func(ctx context.Context) error { return errors.New("exit status 1") },
	}
}

// brokenPlan fails as a whole during Execute.
type brokenPlan struct {
	executed bool
}

func (b *brokenPlan) Describe() PlanSummary {
	return NewPlanSummary("Broken", []Operation{{Verb: VerbInstall, Target: "x", Subsystem: "broken"}}, nil)
}

func (b *brokenPlan) IsEmpty() bool { return false }

func (b *brokenPlan) Execute(ctx context.Context, ectx *ExecuteContext) (*ExecutionReport, error) {
	b.executed = true
	return nil, errors.New("backend unavailable")
}

func TestCompositePlan_Aggregation(t *testing.T) {
	empty := NewActionPlan("Empty", nil, nil)
	two := NewActionPlan("Two", []Action{noopAction("a"), noopAction("b")}, nil)

	composite := NewCompositePlan(empty, two)

	if composite.IsEmpty() {
		t.Error("Expected composite to be non-empty")
	}
	summary := composite.Describe()
	if summary.ActionCount() != 2 {
		t.Errorf("Expected action count 2, got %d", summary.ActionCount())
	}
	if len(summary.Sections) != 2 || summary.Sections[0].Name != "Empty" || summary.Sections[1].Name != "Two" {
		t.Errorf("Expected sections in addition order, got %+v", summary.Sections)
	}
}

func TestCompositePlan_AllEmpty(t *testing.T) {
	composite := NewCompositePlan(NewActionPlan("A", nil, nil), NewActionPlan("B", nil, []Warning{{Message: "heads up"}}))

	if !composite.IsEmpty() {
		t.Error("Expected composite of empty plans to be empty")
	}
	if len(composite.Describe().Warnings()) != 1 {
		t.Error("Expected warnings to be preserved")
	}
}

func TestCompositePlan_PartialFailure(t *testing.T) {
	var order []string
	track := func(a Action) Action {
		run := a.Run
		a.Run = func(ctx context.Context) error {
			order = append(order, a.Operation.Target)
			return run(ctx)
		}
		return a
	}

	first := NewActionPlan("First", []Action{track(noopAction("one")), track(failingAction("two"))}, nil)
	second := NewActionPlan("Second", []Action{track(noopAction("three"))}, nil)
	composite := NewCompositePlan(first, second)

	var progress []OperationProgress
	ectx := NewExecuteContext(ExecutionOptions{}, func(p OperationProgress) {
		progress = append(progress, p)
	})

	report, err := composite.Execute(context.Background(), ectx)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	if report.FailureCount() != 1 {
		t.Errorf("Expected 1 failure, got %d", report.FailureCount())
	}
	if report.SuccessCount() != 2 {
		t.Errorf("Expected 2 successes, got %d", report.SuccessCount())
	}
	if got := report.Failures()[0].Operation.Target; got != "two" {
		t.Errorf("Expected second operation to fail, got %s", got)
	}
	if report.Failures()[0].Message != "exit status 1" {
		t.Errorf("Expected failure message, got %q", report.Failures()[0].Message)
	}
	if report.Status() != RunStatusPartial {
		t.Errorf("Expected partial status, got %s", report.Status())
	}
	if len(order) != 3 || order[2] != "three" {
		t.Errorf("Expected all three operations to run in order, got %v", order)
	}

	if len(progress) != 3 {
		t.Fatalf("Expected 3 progress callbacks, got %d", len(progress))
	}
	for i, p := range progress {
		if p.Index != i+1 || p.Total != 3 {
			t.Errorf("Progress %d: expected %d/3, got %d/%d", i, i+1, p.Index, p.Total)
		}
	}
	if progress[1].Success {
		t.Error("Expected second progress event to report failure")
	}
}

func TestCompositePlan_ChildErrorContinues(t *testing.T) {
	broken := &brokenPlan{}
	after := NewActionPlan("After", []Action{noopAction("after")}, nil)
	composite := NewCompositePlan(broken, after)

	report, err := composite.Execute(context.Background(), NewExecuteContext(ExecutionOptions{}, nil))
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if !broken.executed {
		t.Error("Expected broken plan to be executed")
	}
	if report.SuccessCount() != 1 || report.FailureCount() != 1 {
		t.Fatalf("Expected 1 success and 1 failure, got %+v", report.Results)
	}
	failure := report.Failures()[0]
	if failure.Operation.Target != "Broken" || failure.Operation.Subsystem != "broken" {
		t.Errorf("Expected failure attributed to Broken, got %+v", failure.Operation)
	}
}

func TestCompositePlan_NilExecuteContext(t *testing.T) {
	composite := NewCompositePlan(NewActionPlan("A", []Action{noopAction("a")}, nil))

	if _, err := composite.Execute(context.Background(), nil); !errors.Is(err, ErrNilExecuteContext) {
		t.Errorf("Expected ErrNilExecuteContext, got %v", err)
	}
}

func TestCompositePlan_AddNil(t *testing.T) {
	composite := NewCompositePlan()
	composite.Add(nil)

	if composite.Len() != 0 {
		t.Errorf("Expected nil plan to be ignored, got %d children", composite.Len())
	}
	if !composite.IsEmpty() {
		t.Error("Expected empty composite")
	}
}
