package flowengine

import (
	"time"
)

// ExecutionStatus represents the current state of a workflow execution
type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// IsTerminal returns true if the status is a final state
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed || s == ExecutionStatusCancelled
}

// String returns the string representation
func (s ExecutionStatus) String() string {
	return string(s)
}

// StepStatus represents the current state of a step execution
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

// IsTerminal returns true if the status is a final state
func (s StepStatus) IsTerminal() bool {
	return s == StepStatusCompleted || s == StepStatusFailed || s == StepStatusSkipped
}

// String returns the string representation
func (s StepStatus) String() string {
	return string(s)
}

// StepType identifies how a workflow step is executed
type StepType string

const (
	StepTypeAction    StepType = "action"
	StepTypeCondition StepType = "condition"
	StepTypeLoop      StepType = "loop"
	StepTypeParallel  StepType = "parallel"
	StepTypeDelay     StepType = "delay"
)

// String returns the string representation
func (t StepType) String() string {
	return string(t)
}

// TriggerType identifies what kind of channel fires a trigger.
// Only schedule triggers are interpreted by this module; the remaining
// types are fired by their owning external channel.
type TriggerType string

const (
	TriggerTypeWebhook  TriggerType = "webhook"
	TriggerTypeSchedule TriggerType = "schedule"
	TriggerTypeEvent    TriggerType = "event"
	TriggerTypeFile     TriggerType = "file"
	TriggerTypeAPI      TriggerType = "api"
)

// Priority hints how urgently an execution should be treated by callers
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// ErrorStrategy selects the continuation behavior for a failed step
type ErrorStrategy string

const (
	StrategyStop     ErrorStrategy = "stop"
	StrategyContinue ErrorStrategy = "continue"
	StrategyRetry    ErrorStrategy = "retry"
	StrategyFallback ErrorStrategy = "fallback"
)

// ErrorHandlingConfig controls what happens when a step fails.
// Zero retry fields fall back to the engine-level RetryPolicy defaults.
type ErrorHandlingConfig struct {
	Strategy          ErrorStrategy `json:"strategy"`
	MaxRetries        int           `json:"maxRetries,omitempty"`
	BackoffMultiplier float64       `json:"backoffMultiplier,omitempty"`
	InitialDelayMs    int           `json:"initialDelayMs,omitempty"`
	FallbackStep      string        `json:"fallbackStep,omitempty"`
}

// WorkflowStep is one typed unit of work within a workflow graph.
// Config is interpreted by the step executor according to Type.
// An empty NextSteps list marks a terminal step.
type WorkflowStep struct {
	ID        string               `json:"id"`
	Name      string               `json:"name,omitempty"`
	Type      StepType             `json:"type"`
	Config    map[string]any       `json:"config,omitempty"`
	NextSteps []string             `json:"nextSteps,omitempty"`
	OnError   *ErrorHandlingConfig `json:"onError,omitempty"`
}

// WorkflowDefinition is the immutable blueprint of a workflow.
// Once registered it is shared read-only across concurrent executions.
type WorkflowDefinition struct {
	ID            string               `json:"id"`
	Name          string               `json:"name"`
	Description   string               `json:"description,omitempty"`
	Triggers      []string             `json:"triggers,omitempty"`
	Steps         []*WorkflowStep      `json:"steps"`
	ErrorHandling *ErrorHandlingConfig `json:"errorHandling,omitempty"`
	Metadata      map[string]any       `json:"metadata,omitempty"`
}

// Step returns the step with the given id, or nil if absent
func (d *WorkflowDefinition) Step(id string) *WorkflowStep {
	for _, s := range d.Steps {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// TriggerConfig describes one inbound trigger channel
type TriggerConfig struct {
	ID      string         `json:"id"`
	Type    TriggerType    `json:"type"`
	Config  map[string]any `json:"config,omitempty"`
	Enabled bool           `json:"enabled"`
}

// ActionConfig is a named, reusable action template referenced by id
// from step config. Multiple steps may share one template with
// different per-step parameters.
type ActionConfig struct {
	ID     string         `json:"id"`
	Name   string         `json:"name,omitempty"`
	Type   string         `json:"type"`
	Config map[string]any `json:"config,omitempty"`
}

// Action types understood by the dispatch contract
const (
	ActionTypeAPICall       = "api_call"
	ActionTypeEmail         = "email"
	ActionTypeSlack         = "slack"
	ActionTypeDatabase      = "database"
	ActionTypeFileOperation = "file_operation"
	ActionTypeTransform     = "transform"
)

// ConditionType selects the evaluation mode of a condition template
type ConditionType string

const (
	ConditionComparison ConditionType = "comparison"
	ConditionExists     ConditionType = "exists"
	ConditionRegex      ConditionType = "regex"
	ConditionCustom     ConditionType = "custom"
)

// ConditionConfig is a named, reusable condition template
type ConditionConfig struct {
	ID         string        `json:"id"`
	Name       string        `json:"name,omitempty"`
	Type       ConditionType `json:"type"`
	Field      string        `json:"field,omitempty"`
	Operator   string        `json:"operator,omitempty"`
	Value      any           `json:"value,omitempty"`
	Pattern    string        `json:"pattern,omitempty"`
	Expression string        `json:"expression,omitempty"`
}

// TriggerInfo captures what initiated an execution
type TriggerInfo struct {
	Type      string    `json:"type" dynamodbav:"type"`
	Source    string    `json:"source,omitempty" dynamodbav:"source,omitempty"`
	Timestamp time.Time `json:"timestamp" dynamodbav:"timestamp"`
}

// StepExecutionResult tracks one step execution within an execution.
// Owned by its parent Execution, never shared across executions.
// A retried step keeps a single result whose Retries counter grows;
// there is no result-per-attempt fan-out.
type StepExecutionResult struct {
	StepID    string         `json:"stepId" dynamodbav:"step_id"`
	Status    StepStatus     `json:"status" dynamodbav:"status"`
	StartTime time.Time      `json:"startTime" dynamodbav:"start_time"`
	EndTime   *time.Time     `json:"endTime,omitempty" dynamodbav:"end_time,omitempty"`
	Input     map[string]any `json:"input,omitempty" dynamodbav:"input,omitempty"`
	Output    map[string]any `json:"output,omitempty" dynamodbav:"output,omitempty"`
	Error     string         `json:"error,omitempty" dynamodbav:"error,omitempty"`
	Retries   int            `json:"retries" dynamodbav:"retries"`
}

// Execution is one run-to-completion instance of a workflow.
// Created with status running at invoke time, mutated only through the
// ExecutionStore by the goroutine driving it, and it reaches a terminal
// status exactly once.
type Execution struct {
	ExecutionID string                 `json:"executionId" dynamodbav:"execution_id"`
	WorkflowID  string                 `json:"workflowId" dynamodbav:"workflow_id"`
	Status      ExecutionStatus        `json:"status" dynamodbav:"status"`
	Priority    Priority               `json:"priority,omitempty" dynamodbav:"priority,omitempty"`
	StartTime   time.Time              `json:"startTime" dynamodbav:"start_time"`
	EndTime     *time.Time             `json:"endTime,omitempty" dynamodbav:"end_time,omitempty"`
	Steps       []*StepExecutionResult `json:"steps" dynamodbav:"steps"`
	Output      map[string]any         `json:"output,omitempty" dynamodbav:"output,omitempty"`
	Error       string                 `json:"error,omitempty" dynamodbav:"error,omitempty"`
	Trigger     *TriggerInfo           `json:"trigger,omitempty" dynamodbav:"trigger,omitempty"`
	Context     map[string]any         `json:"context,omitempty" dynamodbav:"context,omitempty"`
}

// InvokeResult is returned synchronously from an engine invocation
type InvokeResult struct {
	ExecutionID string          `json:"executionId"`
	Status      ExecutionStatus `json:"status"`
}

// Clone returns a copy safe to hand out to readers: the step slice and
// step records are copied, payload maps are shared read-only snapshots.
func (e *Execution) Clone() *Execution {
	cp := *e
	cp.Steps = make([]*StepExecutionResult, len(e.Steps))
	for i, s := range e.Steps {
		sc := *s
		cp.Steps[i] = &sc
	}
	return &cp
}
