package flowengine

import "context"

// ExecutionStore is the concurrency-safe table of in-flight and
// completed executions. Many goroutines read and write it, but each
// execution's step list is written only by the goroutine driving that
// execution; the store serializes the bookkeeping.
//
// Terminal transitions are monotonic: Complete, Fail and Cancel apply
// only while the execution is still running and report false otherwise,
// so a cancelled execution can never flip back to completed.
type ExecutionStore interface {
	Create(ctx context.Context, exec *Execution) error
	Get(ctx context.Context, executionID string) (*Execution, error)
	ListActive(ctx context.Context) ([]*Execution, error)

	// AppendStep adds a step record and returns its index for later
	// in-place updates (retries mutate one record, they do not append).
	AppendStep(ctx context.Context, executionID string, result *StepExecutionResult) (int, error)
	UpdateStep(ctx context.Context, executionID string, index int, result *StepExecutionResult) error

	Complete(ctx context.Context, executionID string, output map[string]any) (bool, error)
	Fail(ctx context.Context, executionID string, execErr *WorkflowError) (bool, error)
	Cancel(ctx context.Context, executionID string) (bool, error)

	// Status is the cheap cancellation probe used between steps
	Status(ctx context.Context, executionID string) (ExecutionStatus, error)
}

// ActionDispatcher is the outbound collaborator contract for action
// steps. Implementations may cache, rate-limit or retry internally;
// that is opaque to the engine and composes with step-level policies.
type ActionDispatcher interface {
	Execute(ctx context.Context, actionType string, action *ActionConfig, stepConfig, data, execCtx map[string]any) (any, error)
}
