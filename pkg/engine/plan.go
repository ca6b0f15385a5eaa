package engine

import (
	"fmt"
	"os"
)

// ContextMode selects whether operations target the whole host or the
// invoking user.
type ContextMode string

const (
	// ContextModeHost targets system-wide state and elevates with sudo.
	ContextModeHost ContextMode = "host"

	// ContextModeUser targets per-user state.
	ContextModeUser ContextMode = "user"
)

// Validate checks if the mode is valid.
func (m ContextMode) Validate() error {
	switch m {
	case ContextModeHost, ContextModeUser:
		return nil
	default:
		return fmt.Errorf("invalid context mode: %s", m)
	}
}

// ExecutionOptions are the process-wide options of one invocation.
type ExecutionOptions struct {
	// DryRun stops the command after the preview.
	DryRun bool `json:"dry_run"`

	// Mode selects host or user scope.
	Mode ContextMode `json:"mode"`

	// Prune removes untracked items during apply.
	Prune bool `json:"prune"`
}

// PlanContext holds the read-only inputs of planning.
type PlanContext struct {
	// WorkDir is the directory the command was invoked from.
	WorkDir string

	// ManifestDir is the writable manifest directory.
	ManifestDir string

	// Options are the execution options of the invocation.
	Options ExecutionOptions
}

// NewPlanContext creates a plan context rooted at the current directory.
func NewPlanContext(manifestDir string, opts ExecutionOptions) (*PlanContext, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, NewPlanningError("failed to determine working directory", err)
	}
	if opts.Mode == "" {
		opts.Mode = ContextModeUser
	}
	if err := opts.Mode.Validate(); err != nil {
		return nil, NewValidationError("invalid execution options", err)
	}
	return &PlanContext{
		WorkDir:     wd,
		ManifestDir: manifestDir,
		Options:     opts,
	}, nil
}

// ExecuteContext holds the inputs of one execution. Create a fresh context
// for every call to Execute.
type ExecuteContext struct {
	// Options are the execution options of the invocation.
	Options ExecutionOptions

	// Total is the number of operations expected, used for progress display.
	Total int

	// OnProgress is invoked once per completed operation, if set.
	OnProgress func(OperationProgress)

	completed int
}

// NewExecuteContext creates an execution context.
func NewExecuteContext(opts ExecutionOptions, onProgress func(OperationProgress)) *ExecuteContext {
	return &ExecuteContext{
		Options:    opts,
		OnProgress: onProgress,
	}
}

// Completed returns the number of operations completed so far.
func (c *ExecuteContext) Completed() int {
	return c.completed
}

// expect raises Total so that n more operations fit.
func (c *ExecuteContext) expect(n int) {
	if want := c.completed + n; c.Total < want {
		c.Total = want
	}
}

// complete counts a finished operation and notifies the progress callback.
func (c *ExecuteContext) complete(res OperationResult) {
	c.completed++
	if c.Total < c.completed {
		c.Total = c.completed
	}
	if c.OnProgress == nil {
		return
	}
	c.OnProgress(OperationProgress{
		Index:     c.completed,
		Total:     c.Total,
		Operation: res.Operation,
		Success:   res.Success,
		Message:   res.Message,
	})
}
