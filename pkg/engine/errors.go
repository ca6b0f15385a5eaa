package engine

import (
	"errors"
	"fmt"
)

// ErrorClass classifies an error by the phase in which it occurred and how
// the command layer must react to it.
type ErrorClass string

const (
	// ErrorClassPlanning indicates that desired or live state could not be determined.
	// Examples: unreadable manifest, unreachable external tool, parse failure.
	// Fatal: the command aborts before any mutation.
	ErrorClassPlanning ErrorClass = "planning"

	// ErrorClassValidation indicates invalid user input detected before planning.
	// Examples: unknown subsystem id passed to --only or --exclude.
	ErrorClassValidation ErrorClass = "validation"

	// ErrorClassOperation indicates a single planned action failed during execution.
	// Operation errors are recorded in the ExecutionReport and never propagated.
	ErrorClassOperation ErrorClass = "operation"
)

// ErrAlreadyExecuted is returned when Execute is called on a plan that was
// already executed.
var ErrAlreadyExecuted = errors.New("plan already executed")

// ErrNilExecuteContext is returned when a plan is executed without an ExecuteContext.
var ErrNilExecuteContext = errors.New("execute context is nil")

// EngineError represents a classified error with context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Subsystem is the subsystem id that caused the error, if applicable.
	Subsystem string `json:"subsystem,omitempty"`

	// Operation is the operation being performed when the error occurred.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Class, e.Message)
	switch {
	case e.Subsystem != "" && e.Operation != "":
		msg = fmt.Sprintf("%s (subsystem=%s, operation=%s)", msg, e.Subsystem, e.Operation)
	case e.Subsystem != "":
		msg = fmt.Sprintf("%s (subsystem=%s)", msg, e.Subsystem)
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewPlanningError creates a new planning error.
func NewPlanningError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassPlanning,
		Message: message,
		Err:     err,
	}
}

// NewValidationError creates a new validation error.
func NewValidationError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassValidation,
		Message: message,
		Err:     err,
		Code:    ErrCodeValidation,
	}
}

// NewOperationError creates a new operation error.
func NewOperationError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassOperation,
		Message: message,
		Err:     err,
	}
}

// WithSubsystem adds subsystem context to an error.
func (e *EngineError) WithSubsystem(id string) *EngineError {
	e.Subsystem = id
	return e
}

// WithOperation adds operation context to an error.
func (e *EngineError) WithOperation(operation string) *EngineError {
	e.Operation = operation
	return e
}

// WithCode adds an error code to an error.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsPlanning returns true if the error is classified as a planning error.
func IsPlanning(err error) bool {
	return classOf(err) == ErrorClassPlanning
}

// IsValidation returns true if the error is classified as a validation error.
func IsValidation(err error) bool {
	return classOf(err) == ErrorClassValidation
}

// IsOperation returns true if the error is classified as an operation error.
func IsOperation(err error) bool {
	return classOf(err) == ErrorClassOperation
}

// IsFatal reports whether the error must abort the command.
func IsFatal(err error) bool {
	return IsPlanning(err) || IsValidation(err)
}

func classOf(err error) ErrorClass {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class
	}
	return ""
}

// Common error codes.
const (
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeUnknownSubsystem   = "UNKNOWN_SUBSYSTEM"
	ErrCodeScanFailed         = "SCAN_FAILED"
	ErrCodeManifestLoad       = "MANIFEST_LOAD_FAILED"
	ErrCodeManifestInvalid    = "MANIFEST_INVALID"
	ErrCodeCaptureFailed      = "CAPTURE_FAILED"
	ErrCodeCaptureUnsupported = "CAPTURE_UNSUPPORTED"
	ErrCodePolicyDenied       = "POLICY_DENIED"
	ErrCodeCommandFailed      = "COMMAND_FAILED"
	ErrCodeInternal           = "INTERNAL_ERROR"
)
