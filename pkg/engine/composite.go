package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// CompositePlan aggregates heterogeneous child plans behind one Plan.
// Children are described and executed in the order they were added.
type CompositePlan struct {
	children []Plan
}

// NewCompositePlan creates a composite from the given children.
func NewCompositePlan(children ...Plan) *CompositePlan {
	c := &CompositePlan{}
	for _, child := range children {
		c.Add(child)
	}
	return c
}

// Add appends a child plan. Nil plans are ignored.
func (c *CompositePlan) Add(plan Plan) {
	if plan == nil {
		return
	}
	c.children = append(c.children, plan)
}

// Len returns the number of child plans.
func (c *CompositePlan) Len() int {
	return len(c.children)
}

// IsEmpty returns true if every child is empty.
func (c *CompositePlan) IsEmpty() bool {
	for _, child := range c.children {
		if !child.IsEmpty() {
			return false
		}
	}
	return true
}

// Describe concatenates the child summaries, one or more sections per child.
func (c *CompositePlan) Describe() PlanSummary {
	var summary PlanSummary
	for _, child := range c.children {
		summary.Sections = append(summary.Sections, child.Describe().Sections...)
	}
	return summary
}

// Execute runs each child in order and concatenates their reports.
// A child that returns an error is recorded as one failed result and the
// remaining children still run.
func (c *CompositePlan) Execute(ctx context.Context, ectx *ExecuteContext) (*ExecutionReport, error) {
	if ectx == nil {
		return nil, ErrNilExecuteContext
	}
	ectx.expect(c.Describe().ActionCount())

	report := &ExecutionReport{}
	for _, child := range c.children {
		start := time.Now()
		childReport, err := child.Execute(ctx, ectx)
		if err != nil {
			res := OperationResult{
				Operation: childOperation(child),
				Message:   err.Error(),
				Duration:  time.Since(start),
			}
			log.Error().Err(err).Str("plan", res.Operation.Target).Msg("Child plan failed to execute")
			report.Record(res)
			ectx.complete(res)
			continue
		}
		report.Append(childReport)
	}
	return report, nil
}

// childOperation names a child plan in the report when it fails as a whole.
func childOperation(child Plan) Operation {
	op := Operation{Verb: VerbUpdate, Target: "plan"}
	sections := child.Describe().Sections
	if len(sections) == 0 {
		return op
	}
	op.Target = sections[0].Name
	if ops := sections[0].Operations; len(ops) > 0 {
		op.Subsystem = ops[0].Subsystem
	}
	return op
}
