package flowengine

import (
	"errors"
	"fmt"
	"time"
)

// Error codes
const (
	ErrCodeWorkflowNotFound   = "WORKFLOW_NOT_FOUND"
	ErrCodeMissingEntryPoint  = "MISSING_ENTRY_POINT"
	ErrCodeActionNotFound     = "ACTION_NOT_FOUND"
	ErrCodeConditionNotFound  = "CONDITION_NOT_FOUND"
	ErrCodeStepExecution      = "STEP_EXECUTION_FAILED"
	ErrCodeUnknownStepType    = "UNKNOWN_STEP_TYPE"
	ErrCodeLoopTargetNotArray = "LOOP_TARGET_NOT_ARRAY"
	ErrCodeRetryExhausted     = "RETRY_EXHAUSTED"
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeCancelled          = "CANCELLED"
	ErrCodePanic              = "PANIC"
	ErrCodeInternalError      = "INTERNAL_ERROR"
)

// WorkflowError represents an error during workflow execution
type WorkflowError struct {
	Message   string         `json:"message" dynamodbav:"message"`
	Code      string         `json:"code" dynamodbav:"code"`
	Step      string         `json:"step,omitempty" dynamodbav:"step,omitempty"`
	Timestamp time.Time      `json:"timestamp" dynamodbav:"timestamp"`
	Details   map[string]any `json:"details,omitempty" dynamodbav:"details,omitempty"`
	cause     error
}

// Error implements the error interface
func (e *WorkflowError) Error() string {
	if e.Step != "" {
		return fmt.Sprintf("[%s] %s (step: %s)", e.Code, e.Message, e.Step)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause, if any
func (e *WorkflowError) Unwrap() error {
	return e.cause
}

// WithStep attaches step context to the error
func (e *WorkflowError) WithStep(stepID string) *WorkflowError {
	e.Step = stepID
	return e
}

// WithCause records the underlying error
func (e *WorkflowError) WithCause(err error) *WorkflowError {
	e.cause = err
	return e
}

// WithDetails adds details to the error
func (e *WorkflowError) WithDetails(details map[string]any) *WorkflowError {
	e.Details = details
	return e
}

// NewWorkflowError creates a new workflow error
func NewWorkflowError(code, message string) *WorkflowError {
	return &WorkflowError{
		Message:   message,
		Code:      code,
		Timestamp: time.Now(),
	}
}

// NewWorkflowErrorf creates a new workflow error with a formatted message
func NewWorkflowErrorf(code, format string, args ...any) *WorkflowError {
	return NewWorkflowError(code, fmt.Sprintf(format, args...))
}

// ErrWorkflowNotFound reports an invoke against an unregistered workflow id
func ErrWorkflowNotFound(workflowID string) *WorkflowError {
	return NewWorkflowErrorf(ErrCodeWorkflowNotFound, "workflow %s not found", workflowID)
}

// ErrMissingEntryPoint reports a workflow whose graph has no entry steps
func ErrMissingEntryPoint(workflowID string) *WorkflowError {
	return NewWorkflowErrorf(ErrCodeMissingEntryPoint, "workflow %s has no entry steps", workflowID)
}

// ErrActionNotFound reports a step referencing an unregistered action template
func ErrActionNotFound(actionID string) *WorkflowError {
	return NewWorkflowErrorf(ErrCodeActionNotFound, "action %s not found", actionID)
}

// ErrConditionNotFound reports a step referencing an unregistered condition template
func ErrConditionNotFound(conditionID string) *WorkflowError {
	return NewWorkflowErrorf(ErrCodeConditionNotFound, "condition %s not found", conditionID)
}

// ErrUnknownStepType reports a step whose type the executor cannot dispatch
func ErrUnknownStepType(stepID string, stepType StepType) *WorkflowError {
	return NewWorkflowErrorf(ErrCodeUnknownStepType, "unknown step type %q", stepType).WithStep(stepID)
}

// ErrLoopTargetNotArray reports a loop step whose resolved field path is not an array
func ErrLoopTargetNotArray(stepID, path string) *WorkflowError {
	return NewWorkflowErrorf(ErrCodeLoopTargetNotArray, "loop target %q did not resolve to an array", path).WithStep(stepID)
}

// ErrStepExecution wraps a delegate failure at the step boundary
func ErrStepExecution(stepID string, cause error) *WorkflowError {
	return NewWorkflowErrorf(ErrCodeStepExecution, "step execution failed: %v", cause).
		WithStep(stepID).
		WithCause(cause)
}

// ErrRetryExhausted reports a retry policy that ran out of attempts
func ErrRetryExhausted(stepID string, attempts int, cause error) *WorkflowError {
	return NewWorkflowErrorf(ErrCodeRetryExhausted, "step failed after %d attempts: %v", attempts, cause).
		WithStep(stepID).
		WithCause(cause)
}

// Code extracts the workflow error code from err, or ErrCodeInternalError
// for errors that did not originate in this module.
func Code(err error) string {
	var we *WorkflowError
	if errors.As(err, &we) {
		return we.Code
	}
	return ErrCodeInternalError
}

// IsCode reports whether err carries the given workflow error code
func IsCode(err error, code string) bool {
	var we *WorkflowError
	if errors.As(err, &we) {
		return we.Code == code
	}
	return false
}

// AsWorkflowError coerces err into a *WorkflowError, wrapping foreign errors
func AsWorkflowError(err error) *WorkflowError {
	if err == nil {
		return nil
	}
	var we *WorkflowError
	if errors.As(err, &we) {
		return we
	}
	return NewWorkflowError(ErrCodeInternalError, err.Error()).WithCause(err)
}
