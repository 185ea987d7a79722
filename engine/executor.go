package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	flowengine "github.com/kumarswaresh/flowengine"
)

// executeStep dispatches a step by type. All failures, panics included,
// surface as an error here and are routed through the step's policy by
// the caller; nothing crosses the execution goroutine unhandled.
func (t *traversal) executeStep(ctx context.Context, step *flowengine.WorkflowStep, data map[string]any) (output map[string]any, skipped bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = flowengine.NewWorkflowErrorf(flowengine.ErrCodePanic, "step panicked: %v", r).WithStep(step.ID)
		}
	}()

	switch step.Type {
	case flowengine.StepTypeAction:
		output, err = t.execAction(ctx, step, data)
	case flowengine.StepTypeCondition:
		skipped, err = t.execCondition(ctx, step, data)
		output = data
	case flowengine.StepTypeLoop:
		output, err = t.execLoop(ctx, step, data)
	case flowengine.StepTypeParallel:
		output, err = t.execParallel(ctx, step, data)
	case flowengine.StepTypeDelay:
		output, err = t.execDelay(ctx, step, data)
	default:
		err = flowengine.ErrUnknownStepType(step.ID, step.Type)
	}
	return output, skipped, err
}

// execAction resolves the step's action template, merges per-step
// parameters and hands off to the dispatcher collaborator. Map outputs
// merge into the flowing data so upstream fields stay visible; scalar
// outputs land under "result".
func (t *traversal) execAction(ctx context.Context, step *flowengine.WorkflowStep, data map[string]any) (map[string]any, error) {
	actionID := configString(step.Config, "actionId")
	if actionID == "" {
		return nil, flowengine.NewWorkflowError(flowengine.ErrCodeValidation, "action step has no actionId").WithStep(step.ID)
	}

	action, ok := t.engine.registry.Action(actionID)
	if !ok {
		return nil, flowengine.ErrActionNotFound(actionID).WithStep(step.ID)
	}

	out, err := t.engine.dispatcher.Execute(ctx, action.Type, action, step.Config, data, t.execCtx)
	if err != nil {
		return nil, flowengine.ErrStepExecution(step.ID, err)
	}

	if m, ok := out.(map[string]any); ok {
		return flowengine.MergeMaps(data, m), nil
	}
	if out == nil {
		return data, nil
	}
	return flowengine.MergeMaps(data, map[string]any{"result": out}), nil
}

// execCondition resolves the step's condition template and evaluates
// it; false means the step is skipped and its branch pruned.
func (t *traversal) execCondition(ctx context.Context, step *flowengine.WorkflowStep, data map[string]any) (bool, error) {
	conditionID := configString(step.Config, "conditionId")
	if conditionID == "" {
		return false, flowengine.NewWorkflowError(flowengine.ErrCodeValidation, "condition step has no conditionId").WithStep(step.ID)
	}

	condition, ok := t.engine.registry.Condition(conditionID)
	if !ok {
		return false, flowengine.ErrConditionNotFound(conditionID).WithStep(step.ID)
	}

	matched, err := t.engine.conditions.Evaluate(ctx, condition, data, t.execCtx)
	if err != nil {
		return false, flowengine.ErrStepExecution(step.ID, err)
	}
	return !matched, nil
}

// execLoop iterates an array resolved from a dotted field path, running
// the configured inner step once per item with {loopItem, loopIndex} in
// the execution context, bounded by maxIterations. Outputs aggregate
// into an ordered loopResults array merged back into the outer data.
func (t *traversal) execLoop(ctx context.Context, step *flowengine.WorkflowStep, data map[string]any) (map[string]any, error) {
	path := configString(step.Config, "items")
	value, ok := resolveField(path, data, t.execCtx)
	if !ok {
		return nil, flowengine.ErrLoopTargetNotArray(step.ID, path)
	}
	items, ok := flowengine.AsSlice(value)
	if !ok {
		return nil, flowengine.ErrLoopTargetNotArray(step.ID, path)
	}

	maxIterations := configInt(step.Config, "maxIterations", t.engine.maxLoops)
	if len(items) > maxIterations {
		items = items[:maxIterations]
	}

	innerID := configString(step.Config, "step")
	inner := t.def.Step(innerID)
	if inner == nil {
		return nil, flowengine.NewWorkflowErrorf(flowengine.ErrCodeValidation, "loop step references unknown inner step %q", innerID).WithStep(step.ID)
	}

	results := make([]any, 0, len(items))
	for i, item := range items {
		if t.halted(ctx) {
			break
		}
		iteration := t.withContext(map[string]any{
			"loopItem":  item,
			"loopIndex": i,
		})
		result, err := iteration.runChild(ctx, inner, data)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}

	return flowengine.MergeMaps(data, map[string]any{"loopResults": results}), nil
}

// execParallel runs a fixed named set of inner steps concurrently
// against the same input and joins on completion of all of them.
// parallelResults keeps declaration order regardless of completion
// order, and one child's failure never corrupts sibling outputs.
func (t *traversal) execParallel(ctx context.Context, step *flowengine.WorkflowStep, data map[string]any) (map[string]any, error) {
	ids := configStringSlice(step.Config, "steps")
	if len(ids) == 0 {
		return nil, flowengine.NewWorkflowError(flowengine.ErrCodeValidation, "parallel step has no steps").WithStep(step.ID)
	}

	children := make([]*flowengine.WorkflowStep, len(ids))
	for i, id := range ids {
		child := t.def.Step(id)
		if child == nil {
			return nil, flowengine.NewWorkflowErrorf(flowengine.ErrCodeValidation, "parallel step references unknown step %q", id).WithStep(step.ID)
		}
		children[i] = child
	}

	results := make([]any, len(children))
	errs := make([]error, len(children))

	var wg sync.WaitGroup
	for i, child := range children {
		wg.Add(1)
		go func(i int, child *flowengine.WorkflowStep) {
			defer wg.Done()
			results[i], errs[i] = t.runChild(ctx, child, data)
		}(i, child)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	return flowengine.MergeMaps(data, map[string]any{"parallelResults": results}), nil
}

// runChild executes an inner step (loop iteration or parallel branch)
// under that step's own error policy. The child's chain is not
// followed; fan-in is defined by the owning composite step.
func (t *traversal) runChild(ctx context.Context, child *flowengine.WorkflowStep, data map[string]any) (any, error) {
	outcome := t.runStep(ctx, child, data)

	switch {
	case outcome.skipped:
		return nil, nil
	case outcome.err != nil:
		switch outcome.policy.Strategy {
		case flowengine.StrategyContinue:
			return nil, nil
		case flowengine.StrategyFallback, flowengine.StrategyRetry:
			if fb := t.def.Step(outcome.policy.FallbackStep); fb != nil {
				return t.runChild(ctx, fb, data)
			}
			if outcome.policy.Strategy == flowengine.StrategyFallback {
				return nil, nil
			}
			return nil, outcome.err
		default:
			return nil, outcome.err
		}
	}
	return outcome.output, nil
}

// execDelay suspends only this execution's goroutine for the configured
// duration, then completes with the input unchanged.
func (t *traversal) execDelay(ctx context.Context, step *flowengine.WorkflowStep, data map[string]any) (map[string]any, error) {
	duration := time.Duration(configInt(step.Config, "duration", 0)) * time.Millisecond
	if !sleep(ctx, duration) {
		return nil, flowengine.NewWorkflowError(flowengine.ErrCodeCancelled, "delay interrupted").WithStep(step.ID)
	}
	return data, nil
}

// Step config accessors. Values come from decoded JSON, so numbers may
// arrive as float64.

func configString(config map[string]any, key string) string {
	if s, ok := config[key].(string); ok {
		return s
	}
	return ""
}

func configInt(config map[string]any, key string, fallback int) int {
	switch v := config[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}

func configStringSlice(config map[string]any, key string) []string {
	switch v := config[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return out
	default:
		return nil
	}
}
