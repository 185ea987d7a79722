package engine

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	flowengine "github.com/kumarswaresh/flowengine"
)

// Engine orchestrates workflow executions: it owns the traversal of
// step graphs, delegates side effects to the ActionDispatcher and
// records progress in the ExecutionStore.
type Engine struct {
	registry   *flowengine.Registry
	store      flowengine.ExecutionStore
	dispatcher flowengine.ActionDispatcher
	conditions *conditionEvaluator
	logger     zerolog.Logger

	retry    flowengine.RetryPolicy
	maxLoops int
}

// Option configures the workflow engine
type Option func(*Engine)

// WithLogger sets a custom logger for the engine
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New creates a workflow engine over a registry, an execution store and
// an action dispatcher. If no logger is provided, a default stdout
// console logger at Info level is used.
func New(registry *flowengine.Registry, store flowengine.ExecutionStore, dispatcher flowengine.ActionDispatcher, opts ...Option) *Engine {
	defaultLogger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().
		Timestamp().
		Logger().
		Level(zerolog.InfoLevel)

	cfg := registry.Config()
	eng := &Engine{
		registry:   registry,
		store:      store,
		dispatcher: dispatcher,
		conditions: newConditionEvaluator(),
		logger:     defaultLogger,
		retry:      cfg.RetryPolicy,
		maxLoops:   cfg.MaxLoopIterations,
	}

	for _, opt := range opts {
		opt(eng)
	}
	return eng
}

// Invoke starts one execution of the given workflow. Unknown workflow
// ids and workflows without entry steps fail synchronously, before any
// background work starts; everything else is reported through the
// execution record. The caller observes progress by polling
// GetExecution; enforcement of a wall-clock limit is the caller's
// deadline, the engine never preempts an execution on its own.
func (e *Engine) Invoke(ctx context.Context, workflowID string, input map[string]any, opts ...flowengine.InvokeOption) (*flowengine.InvokeResult, error) {
	def, ok := e.registry.Workflow(workflowID)
	if !ok {
		return nil, flowengine.ErrWorkflowNotFound(workflowID)
	}

	entries := e.registry.EntrySteps(workflowID)
	if len(entries) == 0 {
		return nil, flowengine.ErrMissingEntryPoint(workflowID)
	}

	options := &flowengine.InvokeOptions{Priority: flowengine.PriorityNormal}
	for _, opt := range opts {
		opt(options)
	}

	executionID := uuid.New().String()
	exec := &flowengine.Execution{
		ExecutionID: executionID,
		WorkflowID:  workflowID,
		Status:      flowengine.ExecutionStatusRunning,
		Priority:    options.Priority,
		StartTime:   time.Now(),
		Context:     options.Context,
	}
	if options.TriggerType != "" {
		exec.Trigger = &flowengine.TriggerInfo{
			Type:      options.TriggerType,
			Source:    options.TriggerSource,
			Timestamp: exec.StartTime,
		}
	}

	if err := e.store.Create(ctx, exec); err != nil {
		return nil, flowengine.NewWorkflowError(flowengine.ErrCodeInternalError, "failed to record execution").WithCause(err)
	}

	logger := flowengine.ExecutionLogger(e.logger, executionID, workflowID)
	flowengine.LogExecutionStarted(logger, executionID, workflowID)

	// Traversal is detached from the caller's context: the caller
	// returns immediately and cancellation goes through Cancel.
	go e.run(context.Background(), def, executionID, entries, input, options.Context, logger)

	return &flowengine.InvokeResult{
		ExecutionID: executionID,
		Status:      flowengine.ExecutionStatusRunning,
	}, nil
}

// run drives one execution to a terminal status. No error may escape:
// step failures are routed through error policies and panics mark the
// execution failed.
func (e *Engine) run(ctx context.Context, def *flowengine.WorkflowDefinition, executionID string, entries []string, input, execCtx map[string]any, logger zerolog.Logger) {
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("Execution panicked")
			_, _ = e.store.Fail(ctx, executionID,
				flowengine.NewWorkflowErrorf(flowengine.ErrCodePanic, "execution panicked: %v", r))
		}
	}()

	t := &traversal{
		engine:      e,
		def:         def,
		executionID: executionID,
		execCtx:     execCtx,
		logger:      logger,
	}

	data := input
	if data == nil {
		data = map[string]any{}
	}

	// Entry steps execute in sequence, each with the original input.
	output := data
	for _, entryID := range entries {
		if t.halted(ctx) {
			break
		}
		if out, ok := t.walk(ctx, def.Step(entryID), data); ok {
			output = out
		}
	}

	completed, err := e.store.Complete(ctx, executionID, output)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to finish execution record")
		return
	}
	if completed {
		flowengine.LogExecutionCompleted(logger, executionID, time.Since(started))
		return
	}

	// Already terminal: a stop policy failed it or a caller cancelled.
	if status, err := e.store.Status(ctx, executionID); err == nil && status == flowengine.ExecutionStatusCancelled {
		flowengine.LogExecutionCancelled(logger, executionID)
	}
}

// GetExecution returns the execution record, or nil when unknown
func (e *Engine) GetExecution(ctx context.Context, executionID string) (*flowengine.Execution, error) {
	return e.store.Get(ctx, executionID)
}

// ListActive returns all executions still running
func (e *Engine) ListActive(ctx context.Context) ([]*flowengine.Execution, error) {
	return e.store.ListActive(ctx)
}

// Cancel flips a running execution to cancelled. Cancellation is
// cooperative: an in-flight step completes or fails on its own, but no
// further steps are scheduled once the traversal observes the status.
// Returns true iff the execution was still running.
func (e *Engine) Cancel(ctx context.Context, executionID string) bool {
	cancelled, err := e.store.Cancel(ctx, executionID)
	if err != nil {
		e.logger.Error().Err(err).Str("execution_id", executionID).Msg("Failed to cancel execution")
		return false
	}
	if cancelled {
		flowengine.LogExecutionCancelled(e.logger, executionID)
	}
	return cancelled
}
