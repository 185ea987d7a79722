package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	flowengine "github.com/kumarswaresh/flowengine"
)

// traversal carries the per-execution state of one graph walk. It is
// owned by the execution's goroutine; parallel steps spawn child
// goroutines that only touch it through the mutex-guarded store.
type traversal struct {
	engine      *Engine
	def         *flowengine.WorkflowDefinition
	executionID string
	execCtx     map[string]any
	logger      zerolog.Logger
}

// withContext derives a traversal with extra execution-context entries
// (loop iterations see {loopItem, loopIndex} this way).
func (t *traversal) withContext(extra map[string]any) *traversal {
	child := *t
	child.execCtx = flowengine.MergeMaps(t.execCtx, extra)
	return &child
}

// halted reports whether traversal must stop scheduling steps: the
// execution left the running state (cancelled or failed by a sibling
// branch) or the store is gone.
func (t *traversal) halted(ctx context.Context) bool {
	status, err := t.engine.store.Status(ctx, t.executionID)
	if err != nil {
		return true
	}
	return status != flowengine.ExecutionStatusRunning
}

// walk executes a step and recurses depth-first into its nextSteps,
// feeding each the step's output. Returns the output of the deepest
// step reached and whether the branch produced one. A step reachable
// from two incoming edges is walked once per edge; that at-least-once
// semantic is flagged at registration, never deduplicated here.
func (t *traversal) walk(ctx context.Context, step *flowengine.WorkflowStep, data map[string]any) (map[string]any, bool) {
	if step == nil || t.halted(ctx) {
		return nil, false
	}

	outcome := t.runStep(ctx, step, data)

	switch {
	case outcome.skipped:
		// Condition evaluated false: prune this branch.
		return nil, false

	case outcome.err != nil:
		switch outcome.policy.Strategy {
		case flowengine.StrategyContinue:
			// Swallow the error; downstream runs with the pre-failure input.
			return t.walkNext(ctx, step, data)
		case flowengine.StrategyFallback:
			if fb := t.def.Step(outcome.policy.FallbackStep); fb != nil {
				// The fallback step replaces the failed step's own chain.
				return t.walk(ctx, fb, data)
			}
			// No fallback step configured behaves like continue.
			return t.walkNext(ctx, step, data)
		case flowengine.StrategyRetry:
			// Exhaustion re-raises: a configured fallback step catches
			// it, otherwise the failure stops the execution.
			if fb := t.def.Step(outcome.policy.FallbackStep); fb != nil {
				return t.walk(ctx, fb, data)
			}
			_, _ = t.engine.store.Fail(ctx, t.executionID, outcome.err)
			flowengine.LogExecutionFailed(t.logger, t.executionID, outcome.err)
			return nil, false
		default:
			// stop: the error propagates and the execution fails.
			_, _ = t.engine.store.Fail(ctx, t.executionID, outcome.err)
			flowengine.LogExecutionFailed(t.logger, t.executionID, outcome.err)
			return nil, false
		}
	}

	return t.walkNext(ctx, step, outcome.output)
}

// walkNext recurses into each nextStep in order, fanning out at branch
// points. The last branch's output is reported upward.
func (t *traversal) walkNext(ctx context.Context, step *flowengine.WorkflowStep, data map[string]any) (map[string]any, bool) {
	output, produced := data, true
	for _, nextID := range step.NextSteps {
		if t.halted(ctx) {
			break
		}
		if out, ok := t.walk(ctx, t.def.Step(nextID), data); ok {
			output, produced = out, true
		}
	}
	return output, produced
}

// stepOutcome is the policy-resolved result of one step
type stepOutcome struct {
	output  map[string]any
	skipped bool
	err     *flowengine.WorkflowError
	policy  flowengine.ErrorHandlingConfig
}

// runStep executes one step under its resolved error policy, recording
// a single StepExecutionResult that retries update in place.
func (t *traversal) runStep(ctx context.Context, step *flowengine.WorkflowStep, data map[string]any) stepOutcome {
	policy := t.resolvePolicy(step)

	maxAttempts := 1
	if policy.Strategy == flowengine.StrategyRetry {
		maxAttempts = 1 + policy.MaxRetries
	}

	record := &flowengine.StepExecutionResult{
		StepID:    step.ID,
		Status:    flowengine.StepStatusRunning,
		StartTime: time.Now(),
		Input:     data,
	}
	index, err := t.engine.store.AppendStep(ctx, t.executionID, record)
	if err != nil {
		t.logger.Error().Err(err).Str("step_id", step.ID).Msg("Failed to record step")
	}
	flowengine.LogStepStarted(t.logger, t.executionID, step.ID, step.Type)

	var (
		output   map[string]any
		skipped  bool
		stepErr  error
		attempts int
	)

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := flowengine.BackoffDelay(
				time.Duration(policy.InitialDelayMs)*time.Millisecond,
				policy.BackoffMultiplier,
				attempt,
			)
			flowengine.LogStepRetrying(t.logger, t.executionID, step.ID, attempt, delay)
			record.Retries = attempt
			t.updateStep(ctx, index, record)

			// Backoff suspends only this execution's goroutine.
			if !sleep(ctx, delay) {
				break
			}
			if t.halted(ctx) {
				break
			}
		}

		attempts = attempt + 1
		output, skipped, stepErr = t.executeStep(ctx, step, data)
		if stepErr == nil {
			break
		}
	}

	now := time.Now()
	record.EndTime = &now

	outcome := stepOutcome{policy: policy}
	switch {
	case stepErr == nil && skipped:
		record.Status = flowengine.StepStatusSkipped
		outcome.skipped = true
		flowengine.LogStepSkipped(t.logger, t.executionID, step.ID)

	case stepErr == nil:
		record.Status = flowengine.StepStatusCompleted
		record.Output = output
		outcome.output = output
		flowengine.LogStepCompleted(t.logger, t.executionID, step.ID, now.Sub(record.StartTime))

	default:
		failure := flowengine.AsWorkflowError(stepErr)
		if policy.Strategy == flowengine.StrategyRetry && attempts == maxAttempts {
			failure = flowengine.ErrRetryExhausted(step.ID, attempts, stepErr)
		}
		record.Status = flowengine.StepStatusFailed
		record.Error = failure.Error()
		outcome.err = failure
		flowengine.LogStepFailed(t.logger, t.executionID, step.ID, failure, record.Retries)
	}

	t.updateStep(ctx, index, record)
	return outcome
}

// resolvePolicy applies the resolution order: step-level override, then
// workflow-level default, then stop. Retry parameters left unset fall
// back to the engine-wide RetryPolicy.
func (t *traversal) resolvePolicy(step *flowengine.WorkflowStep) flowengine.ErrorHandlingConfig {
	policy := flowengine.ErrorHandlingConfig{Strategy: flowengine.StrategyStop}
	if t.def.ErrorHandling != nil {
		policy = *t.def.ErrorHandling
	}
	if step.OnError != nil {
		policy = *step.OnError
	}

	defaults := t.engine.retry
	if policy.MaxRetries <= 0 {
		policy.MaxRetries = defaults.MaxRetries
	}
	if policy.BackoffMultiplier <= 0 {
		policy.BackoffMultiplier = defaults.BackoffMultiplier
	}
	if policy.InitialDelayMs <= 0 {
		policy.InitialDelayMs = int(defaults.InitialDelay / time.Millisecond)
	}
	return policy
}

func (t *traversal) updateStep(ctx context.Context, index int, record *flowengine.StepExecutionResult) {
	if err := t.engine.store.UpdateStep(ctx, t.executionID, index, record); err != nil {
		t.logger.Error().Err(err).Str("step_id", record.StepID).Msg("Failed to update step record")
	}
}

// sleep waits for d or until ctx is done; false means interrupted
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
