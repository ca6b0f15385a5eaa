package engine

import (
	"fmt"
	"time"
)

// RunStatus represents the overall outcome of a plan execution.
type RunStatus string

const (
	// RunStatusSucceeded indicates every operation succeeded.
	RunStatusSucceeded RunStatus = "succeeded"

	// RunStatusFailed indicates every operation failed.
	RunStatusFailed RunStatus = "failed"

	// RunStatusPartial indicates some operations failed.
	RunStatusPartial RunStatus = "partial"

	// RunStatusNoop indicates there was nothing to execute.
	RunStatusNoop RunStatus = "noop"
)

// Validate checks if the run status is valid.
func (s RunStatus) Validate() error {
	switch s {
	case RunStatusSucceeded, RunStatusFailed, RunStatusPartial, RunStatusNoop:
		return nil
	default:
		return fmt.Errorf("invalid run status: %s", s)
	}
}

// OperationProgress is passed to the progress callback once per completed operation.
type OperationProgress struct {
	// Index is the 1-based position of the operation within the execution.
	Index int `json:"index"`

	// Total is the number of operations expected in the execution.
	Total int `json:"total"`

	// Operation is the operation that completed.
	Operation Operation `json:"operation"`

	// Success reports whether the operation succeeded.
	Success bool `json:"success"`

	// Message holds the error message when the operation failed.
	Message string `json:"message,omitempty"`
}

// OperationResult records the outcome of one operation.
type OperationResult struct {
	Operation Operation     `json:"operation"`
	Success   bool          `json:"success"`
	Message   string        `json:"message,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// ExecutionReport is the ordered list of operation results produced by Execute.
type ExecutionReport struct {
	Results []OperationResult `json:"results"`
}

// Append adds the results of other to the report, preserving order.
func (r *ExecutionReport) Append(other *ExecutionReport) {
	if other == nil {
		return
	}
	r.Results = append(r.Results, other.Results...)
}

// Record adds a single result to the report.
func (r *ExecutionReport) Record(result OperationResult) {
	r.Results = append(r.Results, result)
}

// SuccessCount returns the number of successful operations.
func (r *ExecutionReport) SuccessCount() int {
	n := 0
	for _, res := range r.Results {
		if res.Success {
			n++
		}
	}
	return n
}

// FailureCount returns the number of failed operations.
func (r *ExecutionReport) FailureCount() int {
	return len(r.Results) - r.SuccessCount()
}

// Failures returns the failed results in execution order.
func (r *ExecutionReport) Failures() []OperationResult {
	var failed []OperationResult
	for _, res := range r.Results {
		if !res.Success {
			failed = append(failed, res)
		}
	}
	return failed
}

// Status derives the overall run status from the results.
func (r *ExecutionReport) Status() RunStatus {
	switch failures := r.FailureCount(); {
	case len(r.Results) == 0:
		return RunStatusNoop
	case failures == 0:
		return RunStatusSucceeded
	case failures == len(r.Results):
		return RunStatusFailed
	default:
		return RunStatusPartial
	}
}

// Duration returns the summed duration of all operations.
func (r *ExecutionReport) Duration() time.Duration {
	var total time.Duration
	for _, res := range r.Results {
		total += res.Duration
	}
	return total
}
