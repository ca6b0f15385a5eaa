package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Action pairs a planned operation with the function that performs it.
// Run is only called during Execute.
type Action struct {
	Operation Operation
	Run       func(ctx context.Context) error
}

// ActionPlan is a Plan made of a list of actions executed in order.
type ActionPlan struct {
	summary PlanSummary
	actions []Action
}

// NewActionPlan builds a single-section plan from actions and warnings.
func NewActionPlan(name string, actions []Action, warnings []Warning) *ActionPlan {
	ops := make([]Operation, 0, len(actions))
	for _, a := range actions {
		ops = append(ops, a.Operation)
	}
	return &ActionPlan{
		summary: NewPlanSummary(name, ops, warnings),
		actions: append([]Action(nil), actions...),
	}
}

// Describe returns the planned operations.
func (p *ActionPlan) Describe() PlanSummary {
	return p.summary.Clone()
}

// IsEmpty returns true if the plan has no actions.
func (p *ActionPlan) IsEmpty() bool {
	return len(p.actions) == 0
}

// Execute runs every action in order. A failed action is recorded and the
// next action still runs.
func (p *ActionPlan) Execute(ctx context.Context, ectx *ExecuteContext) (*ExecutionReport, error) {
	if ectx == nil {
		return nil, ErrNilExecuteContext
	}
	ectx.expect(len(p.actions))

	report := &ExecutionReport{Results: make([]OperationResult, 0, len(p.actions))}
	for _, action := range p.actions {
		res := runAction(ctx, action)
		report.Record(res)
		ectx.complete(res)
	}
	return report, nil
}

func runAction(ctx context.Context, action Action) (res OperationResult) {
	op := action.Operation
	start := time.Now()
	res = OperationResult{Operation: op}

	defer func() {
		if r := recover(); r != nil {
			res.Success = false
			res.Message = fmt.Sprintf("panic: %v", r)
		}
		res.Duration = time.Since(start)
		if !res.Success {
			log.Warn().
				Str("subsystem", op.Subsystem).
				Str("verb", string(op.Verb)).
				Str("target", op.Target).
				Str("error", res.Message).
				Msg("Operation failed")
		}
	}()

	log.Debug().
		Str("subsystem", op.Subsystem).
		Str("verb", string(op.Verb)).
		Str("target", op.Target).
		Msg("Executing operation")

	if action.Run == nil {
		res.Message = "operation has no implementation"
		return res
	}
	if err := action.Run(ctx); err != nil {
		res.Message = err.Error()
		return res
	}
	res.Success = true
	return res
}
