package engine

import "context"

// Planned wraps a plan so that it can only be described and executed once.
// The summary is captured when the plan is sealed.
type Planned struct {
	plan     Plan
	summary  PlanSummary
	executed bool
}

// Seal wraps plan in the Planned state.
func Seal(plan Plan) *Planned {
	if p, ok := plan.(*Planned); ok {
		return p
	}
	return &Planned{
		plan:    plan,
		summary: plan.Describe(),
	}
}

// Describe returns the summary captured at seal time.
func (p *Planned) Describe() PlanSummary {
	return p.summary.Clone()
}

// IsEmpty returns true if the summary has no operations.
func (p *Planned) IsEmpty() bool {
	return p.summary.IsEmpty()
}

// Executed reports whether Execute has been called.
func (p *Planned) Executed() bool {
	return p.executed
}

// Execute runs the wrapped plan. A second call returns ErrAlreadyExecuted.
func (p *Planned) Execute(ctx context.Context, ectx *ExecuteContext) (*ExecutionReport, error) {
	if p.executed {
		return nil, ErrAlreadyExecuted
	}
	if ectx == nil {
		return nil, ErrNilExecuteContext
	}
	p.executed = true
	return p.plan.Execute(ctx, ectx)
}
