package policy

import (
	"time"

	"github.com/openfroyo/hostsync/pkg/engine"
)

// Severity represents the severity level of a policy result.
type Severity string

const (
	// SeverityWarning results are attached to the plan as warnings.
	SeverityWarning Severity = "warning"

	// SeverityError results block the plan.
	SeverityError Severity = "error"
)

// Policy represents a policy rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego module. It may define a "deny" and a "warn" set.
	Rego string `json:"rego"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Source is the file the policy was loaded from, empty for built-ins.
	Source string `json:"source,omitempty"`
}

// Violation is one message produced by a policy.
type Violation struct {
	// Policy is the name of the policy that produced the message.
	Policy string `json:"policy"`

	// Subsystem is the subsystem the message is about, if the policy names one.
	Subsystem string `json:"subsystem,omitempty"`

	// Message is a human-readable message.
	Message string `json:"message"`

	// Severity is warning for "warn" results and error for "deny" results.
	Severity Severity `json:"severity"`
}

// String renders the violation as "policy: message".
func (v Violation) String() string {
	return v.Policy + ": " + v.Message
}

// Result represents the result of evaluating every enabled policy.
type Result struct {
	// Allowed is false when at least one policy denied the plan.
	Allowed bool `json:"allowed"`

	// Violations lists the deny results.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings lists the warn results.
	Warnings []Violation `json:"warnings,omitempty"`

	// EvaluatedPolicies lists the names of policies that were evaluated.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	// Duration is how long the evaluation took.
	Duration time.Duration `json:"duration"`
}

// Input is the document policies see as "input".
type Input struct {
	// Direction is "apply" or "capture".
	Direction string `json:"direction"`

	// Mode is the context mode of the invocation.
	Mode engine.ContextMode `json:"mode"`

	// Prune is set when apply removes untracked items.
	Prune bool `json:"prune"`

	// DryRun is set when the plan will only be previewed.
	DryRun bool `json:"dry_run"`

	// Operations are the planned operations in summary order.
	Operations []InputOperation `json:"operations"`

	// ProtectedUnits are systemd units that must never be masked.
	ProtectedUnits []string `json:"protected_units"`

	// Timestamp is when the evaluation started.
	Timestamp time.Time `json:"timestamp"`
}

// InputOperation is the policy view of an engine.Operation.
type InputOperation struct {
	Verb        string `json:"verb"`
	Target      string `json:"target"`
	Subsystem   string `json:"subsystem"`
	Destructive bool   `json:"destructive"`
}

// NewInput builds the policy input for a plan summary.
func NewInput(direction string, summary engine.PlanSummary, opts engine.ExecutionOptions) *Input {
	ops := summary.Operations()
	in := &Input{
		Direction:  direction,
		Mode:       opts.Mode,
		Prune:      opts.Prune,
		DryRun:     opts.DryRun,
		Operations: make([]InputOperation, 0, len(ops)),
		Timestamp:  time.Now(),
	}
	for _, op := range ops {
		in.Operations = append(in.Operations, InputOperation{
			Verb:        string(op.Verb),
			Target:      op.Target,
			Subsystem:   op.Subsystem,
			Destructive: op.Verb.IsDestructive(),
		})
	}
	return in
}
