package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	flowengine "github.com/kumarswaresh/flowengine"
	"github.com/kumarswaresh/flowengine/store"
)

// dispatchCall records one dispatcher invocation
type dispatchCall struct {
	ActionType string
	StepConfig map[string]any
	Data       map[string]any
	ExecCtx    map[string]any
}

// Tag returns the step's identifying tag from its config
func (c dispatchCall) Tag() string {
	tag, _ := c.StepConfig["tag"].(string)
	return tag
}

// fakeDispatcher records calls and delegates behavior to fn
type fakeDispatcher struct {
	mu    sync.Mutex
	calls []dispatchCall
	fn    func(call dispatchCall) (any, error)
}

func (d *fakeDispatcher) Execute(ctx context.Context, actionType string, action *flowengine.ActionConfig, stepConfig, data, execCtx map[string]any) (any, error) {
	call := dispatchCall{ActionType: actionType, StepConfig: stepConfig, Data: data, ExecCtx: execCtx}
	d.mu.Lock()
	d.calls = append(d.calls, call)
	d.mu.Unlock()
	if d.fn != nil {
		return d.fn(call)
	}
	return nil, nil
}

func (d *fakeDispatcher) callsFor(tag string) []dispatchCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []dispatchCall
	for _, c := range d.calls {
		if c.Tag() == tag {
			out = append(out, c)
		}
	}
	return out
}

// actionStep builds an action step tagged for the fake dispatcher
func actionStep(id string, next []string, extra map[string]any) *flowengine.WorkflowStep {
	config := map[string]any{"actionId": "act", "tag": id}
	for k, v := range extra {
		config[k] = v
	}
	return &flowengine.WorkflowStep{
		ID:        id,
		Type:      flowengine.StepTypeAction,
		Config:    config,
		NextSteps: next,
	}
}

func newTestEngine(t *testing.T, defs []*flowengine.WorkflowDefinition, conditions []*flowengine.ConditionConfig, fn func(dispatchCall) (any, error)) (*Engine, *fakeDispatcher) {
	t.Helper()

	cfg := flowengine.Config{
		Workflows:  defs,
		Actions:    []*flowengine.ActionConfig{{ID: "act", Type: flowengine.ActionTypeAPICall}},
		Conditions: conditions,
	}
	registry, err := flowengine.NewRegistry(cfg)
	require.NoError(t, err)

	dispatcher := &fakeDispatcher{fn: fn}
	eng := New(registry, store.NewMemoryStore(), dispatcher, WithLogger(zerolog.Nop()))
	return eng, dispatcher
}

// waitForTerminal polls until the execution reaches a terminal status
func waitForTerminal(t *testing.T, eng *Engine, executionID string, timeout time.Duration) *flowengine.Execution {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.Fatal("Timeout waiting for execution to finish")
			return nil
		case <-ticker.C:
			exec, err := eng.GetExecution(context.Background(), executionID)
			require.NoError(t, err)
			require.NotNil(t, exec)
			if exec.Status.IsTerminal() {
				return exec
			}
		}
	}
}

func TestLinearChainDataFlow(t *testing.T) {
	def := &flowengine.WorkflowDefinition{
		ID:   "linear",
		Name: "Linear",
		Steps: []*flowengine.WorkflowStep{
			actionStep("a", []string{"b"}, nil),
			actionStep("b", []string{"c"}, nil),
			actionStep("c", nil, nil),
		},
	}

	eng, dispatcher := newTestEngine(t, []*flowengine.WorkflowDefinition{def}, nil,
		func(call dispatchCall) (any, error) {
			return map[string]any{call.Tag(): true}, nil
		})

	receipt, err := eng.Invoke(context.Background(), "linear", map[string]any{"seed": 1})
	require.NoError(t, err)
	assert.Equal(t, flowengine.ExecutionStatusRunning, receipt.Status)

	exec := waitForTerminal(t, eng, receipt.ExecutionID, 2*time.Second)
	assert.Equal(t, flowengine.ExecutionStatusCompleted, exec.Status)
	require.NotNil(t, exec.EndTime)

	// Each step's output merges over its input, so the final output
	// carries the seed and all three markers.
	assert.Equal(t, 1, exec.Output["seed"])
	assert.Equal(t, true, exec.Output["a"])
	assert.Equal(t, true, exec.Output["b"])
	assert.Equal(t, true, exec.Output["c"])

	require.Len(t, exec.Steps, 3)
	for i, id := range []string{"a", "b", "c"} {
		assert.Equal(t, id, exec.Steps[i].StepID)
		assert.Equal(t, flowengine.StepStatusCompleted, exec.Steps[i].Status)
	}

	// b saw a's output as input
	bCalls := dispatcher.callsFor("b")
	require.Len(t, bCalls, 1)
	assert.Equal(t, true, bCalls[0].Data["a"])
}

func TestConditionFalsePrunesBranch(t *testing.T) {
	def := &flowengine.WorkflowDefinition{
		ID:   "gated",
		Name: "Gated",
		Steps: []*flowengine.WorkflowStep{
			actionStep("a", []string{"gate"}, nil),
			{
				ID:        "gate",
				Type:      flowengine.StepTypeCondition,
				Config:    map[string]any{"conditionId": "amount-high"},
				NextSteps: []string{"c"},
			},
			actionStep("c", nil, nil),
		},
	}
	conditions := []*flowengine.ConditionConfig{{
		ID:       "amount-high",
		Type:     flowengine.ConditionComparison,
		Field:    "amount",
		Operator: "gt",
		Value:    100.0,
	}}

	eng, dispatcher := newTestEngine(t, []*flowengine.WorkflowDefinition{def}, conditions, nil)

	receipt, err := eng.Invoke(context.Background(), "gated", map[string]any{"amount": 50.0})
	require.NoError(t, err)

	exec := waitForTerminal(t, eng, receipt.ExecutionID, 2*time.Second)

	// A false condition skips the step and prunes its branch; the
	// execution still completes.
	assert.Equal(t, flowengine.ExecutionStatusCompleted, exec.Status)
	require.Len(t, exec.Steps, 2)
	assert.Equal(t, flowengine.StepStatusSkipped, exec.Steps[1].Status)
	assert.Empty(t, dispatcher.callsFor("c"))

	// Output falls back to the last produced branch output, a's.
	assert.Equal(t, 50.0, exec.Output["amount"])
}

func TestConditionTrueContinues(t *testing.T) {
	def := &flowengine.WorkflowDefinition{
		ID:   "gated",
		Name: "Gated",
		Steps: []*flowengine.WorkflowStep{
			{
				ID:        "gate",
				Type:      flowengine.StepTypeCondition,
				Config:    map[string]any{"conditionId": "amount-high"},
				NextSteps: []string{"c"},
			},
			actionStep("c", nil, nil),
		},
	}
	conditions := []*flowengine.ConditionConfig{{
		ID:       "amount-high",
		Type:     flowengine.ConditionComparison,
		Field:    "amount",
		Operator: "gt",
		Value:    100.0,
	}}

	eng, dispatcher := newTestEngine(t, []*flowengine.WorkflowDefinition{def}, conditions, nil)

	receipt, err := eng.Invoke(context.Background(), "gated", map[string]any{"amount": 500.0})
	require.NoError(t, err)

	exec := waitForTerminal(t, eng, receipt.ExecutionID, 2*time.Second)
	assert.Equal(t, flowengine.ExecutionStatusCompleted, exec.Status)
	require.Len(t, dispatcher.callsFor("c"), 1)
	// The condition step passes its input through unchanged.
	assert.Equal(t, 500.0, dispatcher.callsFor("c")[0].Data["amount"])
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	def := &flowengine.WorkflowDefinition{
		ID:   "flaky",
		Name: "Flaky",
		Steps: []*flowengine.WorkflowStep{
			{
				ID:     "a",
				Type:   flowengine.StepTypeAction,
				Config: map[string]any{"actionId": "act", "tag": "a"},
				OnError: &flowengine.ErrorHandlingConfig{
					Strategy:          flowengine.StrategyRetry,
					MaxRetries:        3,
					BackoffMultiplier: 2.0,
					InitialDelayMs:    1,
				},
			},
		},
	}

	var attempts int
	var mu sync.Mutex
	eng, _ := newTestEngine(t, []*flowengine.WorkflowDefinition{def}, nil,
		func(call dispatchCall) (any, error) {
			mu.Lock()
			defer mu.Unlock()
			attempts++
			if attempts < 3 {
				return nil, fmt.Errorf("transient failure %d", attempts)
			}
			return map[string]any{"done": true}, nil
		})

	receipt, err := eng.Invoke(context.Background(), "flaky", nil)
	require.NoError(t, err)

	exec := waitForTerminal(t, eng, receipt.ExecutionID, 2*time.Second)
	assert.Equal(t, flowengine.ExecutionStatusCompleted, exec.Status)

	// A retried step keeps one record whose Retries counter grows.
	require.Len(t, exec.Steps, 1)
	assert.Equal(t, flowengine.StepStatusCompleted, exec.Steps[0].Status)
	assert.Equal(t, 2, exec.Steps[0].Retries)
}

func TestRetryExhaustedFailsExecution(t *testing.T) {
	def := &flowengine.WorkflowDefinition{
		ID:   "doomed",
		Name: "Doomed",
		Steps: []*flowengine.WorkflowStep{
			{
				ID:     "a",
				Type:   flowengine.StepTypeAction,
				Config: map[string]any{"actionId": "act", "tag": "a"},
				OnError: &flowengine.ErrorHandlingConfig{
					Strategy:          flowengine.StrategyRetry,
					MaxRetries:        2,
					BackoffMultiplier: 2.0,
					InitialDelayMs:    1,
				},
			},
		},
	}

	eng, dispatcher := newTestEngine(t, []*flowengine.WorkflowDefinition{def}, nil,
		func(call dispatchCall) (any, error) {
			return nil, fmt.Errorf("permanent failure")
		})

	receipt, err := eng.Invoke(context.Background(), "doomed", nil)
	require.NoError(t, err)

	exec := waitForTerminal(t, eng, receipt.ExecutionID, 2*time.Second)
	assert.Equal(t, flowengine.ExecutionStatusFailed, exec.Status)
	assert.Contains(t, exec.Error, flowengine.ErrCodeRetryExhausted)

	require.Len(t, exec.Steps, 1)
	assert.Equal(t, flowengine.StepStatusFailed, exec.Steps[0].Status)
	assert.Equal(t, 2, exec.Steps[0].Retries)
	assert.Len(t, dispatcher.callsFor("a"), 3)
}

func TestRetryExhaustedRoutesToFallback(t *testing.T) {
	def := &flowengine.WorkflowDefinition{
		ID:   "recoverable",
		Name: "Recoverable",
		Steps: []*flowengine.WorkflowStep{
			{
				ID:     "a",
				Type:   flowengine.StepTypeAction,
				Config: map[string]any{"actionId": "act", "tag": "a"},
				OnError: &flowengine.ErrorHandlingConfig{
					Strategy:          flowengine.StrategyRetry,
					MaxRetries:        1,
					BackoffMultiplier: 2.0,
					InitialDelayMs:    1,
					FallbackStep:      "recover",
				},
			},
			actionStep("recover", nil, nil),
		},
	}

	eng, dispatcher := newTestEngine(t, []*flowengine.WorkflowDefinition{def}, nil,
		func(call dispatchCall) (any, error) {
			if call.Tag() == "a" {
				return nil, fmt.Errorf("permanent failure")
			}
			return map[string]any{"recovered": true}, nil
		})

	receipt, err := eng.Invoke(context.Background(), "recoverable", nil)
	require.NoError(t, err)

	exec := waitForTerminal(t, eng, receipt.ExecutionID, 2*time.Second)
	assert.Equal(t, flowengine.ExecutionStatusCompleted, exec.Status)
	assert.Len(t, dispatcher.callsFor("recover"), 1)
	assert.Equal(t, true, exec.Output["recovered"])
}

func TestContinuePolicyUsesPreFailureInput(t *testing.T) {
	def := &flowengine.WorkflowDefinition{
		ID:   "tolerant",
		Name: "Tolerant",
		Steps: []*flowengine.WorkflowStep{
			{
				ID:        "a",
				Type:      flowengine.StepTypeAction,
				Config:    map[string]any{"actionId": "act", "tag": "a"},
				NextSteps: []string{"b"},
				OnError:   &flowengine.ErrorHandlingConfig{Strategy: flowengine.StrategyContinue},
			},
			actionStep("b", nil, nil),
		},
	}

	eng, dispatcher := newTestEngine(t, []*flowengine.WorkflowDefinition{def}, nil,
		func(call dispatchCall) (any, error) {
			if call.Tag() == "a" {
				return nil, fmt.Errorf("ignored failure")
			}
			return nil, nil
		})

	receipt, err := eng.Invoke(context.Background(), "tolerant", map[string]any{"seed": 1})
	require.NoError(t, err)

	exec := waitForTerminal(t, eng, receipt.ExecutionID, 2*time.Second)
	assert.Equal(t, flowengine.ExecutionStatusCompleted, exec.Status)

	require.Len(t, exec.Steps, 2)
	assert.Equal(t, flowengine.StepStatusFailed, exec.Steps[0].Status)
	assert.Equal(t, flowengine.StepStatusCompleted, exec.Steps[1].Status)

	// b ran with a's input, not a's (nonexistent) output
	bCalls := dispatcher.callsFor("b")
	require.Len(t, bCalls, 1)
	assert.Equal(t, 1, bCalls[0].Data["seed"])
}

func TestFallbackReplacesChain(t *testing.T) {
	def := &flowengine.WorkflowDefinition{
		ID:   "fallback",
		Name: "Fallback",
		Steps: []*flowengine.WorkflowStep{
			{
				ID:        "a",
				Type:      flowengine.StepTypeAction,
				Config:    map[string]any{"actionId": "act", "tag": "a"},
				NextSteps: []string{"b"},
				OnError: &flowengine.ErrorHandlingConfig{
					Strategy:     flowengine.StrategyFallback,
					FallbackStep: "plan-b",
				},
			},
			actionStep("b", nil, nil),
			actionStep("plan-b", nil, nil),
		},
	}

	eng, dispatcher := newTestEngine(t, []*flowengine.WorkflowDefinition{def}, nil,
		func(call dispatchCall) (any, error) {
			if call.Tag() == "a" {
				return nil, fmt.Errorf("primary failed")
			}
			return map[string]any{call.Tag(): true}, nil
		})

	receipt, err := eng.Invoke(context.Background(), "fallback", nil)
	require.NoError(t, err)

	exec := waitForTerminal(t, eng, receipt.ExecutionID, 2*time.Second)
	assert.Equal(t, flowengine.ExecutionStatusCompleted, exec.Status)

	// The fallback step replaces the failed step's chain: b never runs.
	assert.Len(t, dispatcher.callsFor("plan-b"), 1)
	assert.Empty(t, dispatcher.callsFor("b"))
}

func TestLoopIteratesItems(t *testing.T) {
	def := &flowengine.WorkflowDefinition{
		ID:   "batch",
		Name: "Batch",
		Steps: []*flowengine.WorkflowStep{
			{
				ID:   "each",
				Type: flowengine.StepTypeLoop,
				Config: map[string]any{
					"items": "items",
					"step":  "handle",
				},
			},
			actionStep("handle", nil, nil),
		},
	}

	eng, dispatcher := newTestEngine(t, []*flowengine.WorkflowDefinition{def}, nil,
		func(call dispatchCall) (any, error) {
			return map[string]any{"item": call.ExecCtx["loopItem"]}, nil
		})

	input := map[string]any{"items": []any{"x", "y", "z"}}
	receipt, err := eng.Invoke(context.Background(), "batch", input)
	require.NoError(t, err)

	exec := waitForTerminal(t, eng, receipt.ExecutionID, 2*time.Second)
	assert.Equal(t, flowengine.ExecutionStatusCompleted, exec.Status)

	results, ok := exec.Output["loopResults"].([]any)
	require.True(t, ok)
	require.Len(t, results, 3)

	// Each iteration saw its own item and index.
	calls := dispatcher.callsFor("handle")
	require.Len(t, calls, 3)
	for i, want := range []string{"x", "y", "z"} {
		assert.Equal(t, want, calls[i].ExecCtx["loopItem"])
		assert.Equal(t, i, calls[i].ExecCtx["loopIndex"])
	}
}

func TestLoopMaxIterationsCap(t *testing.T) {
	def := &flowengine.WorkflowDefinition{
		ID:   "capped",
		Name: "Capped",
		Steps: []*flowengine.WorkflowStep{
			{
				ID:   "each",
				Type: flowengine.StepTypeLoop,
				Config: map[string]any{
					"items":         "items",
					"step":          "handle",
					"maxIterations": 2,
				},
			},
			actionStep("handle", nil, nil),
		},
	}

	eng, dispatcher := newTestEngine(t, []*flowengine.WorkflowDefinition{def}, nil, nil)

	input := map[string]any{"items": []any{1, 2, 3, 4, 5}}
	receipt, err := eng.Invoke(context.Background(), "capped", input)
	require.NoError(t, err)

	exec := waitForTerminal(t, eng, receipt.ExecutionID, 2*time.Second)
	assert.Equal(t, flowengine.ExecutionStatusCompleted, exec.Status)
	assert.Len(t, dispatcher.callsFor("handle"), 2)
}

func TestLoopTargetNotArray(t *testing.T) {
	def := &flowengine.WorkflowDefinition{
		ID:   "badloop",
		Name: "BadLoop",
		Steps: []*flowengine.WorkflowStep{
			{
				ID:   "each",
				Type: flowengine.StepTypeLoop,
				Config: map[string]any{
					"items": "notAnArray",
					"step":  "handle",
				},
			},
			actionStep("handle", nil, nil),
		},
	}

	eng, _ := newTestEngine(t, []*flowengine.WorkflowDefinition{def}, nil, nil)

	receipt, err := eng.Invoke(context.Background(), "badloop", map[string]any{"notAnArray": "oops"})
	require.NoError(t, err)

	exec := waitForTerminal(t, eng, receipt.ExecutionID, 2*time.Second)
	assert.Equal(t, flowengine.ExecutionStatusFailed, exec.Status)
	assert.Contains(t, exec.Error, flowengine.ErrCodeLoopTargetNotArray)
}

func TestParallelKeepsDeclarationOrder(t *testing.T) {
	def := &flowengine.WorkflowDefinition{
		ID:   "fan",
		Name: "Fan",
		Steps: []*flowengine.WorkflowStep{
			{
				ID:   "split",
				Type: flowengine.StepTypeParallel,
				Config: map[string]any{
					"steps": []any{"slow", "fast"},
				},
			},
			actionStep("slow", nil, nil),
			actionStep("fast", nil, nil),
		},
	}

	eng, _ := newTestEngine(t, []*flowengine.WorkflowDefinition{def}, nil,
		func(call dispatchCall) (any, error) {
			if call.Tag() == "slow" {
				time.Sleep(100 * time.Millisecond)
			}
			return map[string]any{"who": call.Tag()}, nil
		})

	receipt, err := eng.Invoke(context.Background(), "fan", nil)
	require.NoError(t, err)

	exec := waitForTerminal(t, eng, receipt.ExecutionID, 2*time.Second)
	assert.Equal(t, flowengine.ExecutionStatusCompleted, exec.Status)

	// Results hold declaration order even though fast finished first.
	results, ok := exec.Output["parallelResults"].([]any)
	require.True(t, ok)
	require.Len(t, results, 2)
	first, _ := results[0].(map[string]any)
	second, _ := results[1].(map[string]any)
	assert.Equal(t, "slow", first["who"])
	assert.Equal(t, "fast", second["who"])
}

func TestParallelChildFailureFailsStep(t *testing.T) {
	def := &flowengine.WorkflowDefinition{
		ID:   "fanfail",
		Name: "FanFail",
		Steps: []*flowengine.WorkflowStep{
			{
				ID:   "split",
				Type: flowengine.StepTypeParallel,
				Config: map[string]any{
					"steps": []any{"ok", "broken"},
				},
			},
			actionStep("ok", nil, nil),
			actionStep("broken", nil, nil),
		},
	}

	eng, _ := newTestEngine(t, []*flowengine.WorkflowDefinition{def}, nil,
		func(call dispatchCall) (any, error) {
			if call.Tag() == "broken" {
				return nil, fmt.Errorf("child failed")
			}
			return nil, nil
		})

	receipt, err := eng.Invoke(context.Background(), "fanfail", nil)
	require.NoError(t, err)

	exec := waitForTerminal(t, eng, receipt.ExecutionID, 2*time.Second)
	assert.Equal(t, flowengine.ExecutionStatusFailed, exec.Status)
}

func TestDelayPausesBranch(t *testing.T) {
	def := &flowengine.WorkflowDefinition{
		ID:   "slow",
		Name: "Slow",
		Steps: []*flowengine.WorkflowStep{
			{
				ID:     "wait",
				Type:   flowengine.StepTypeDelay,
				Config: map[string]any{"duration": 80},
			},
		},
	}

	eng, _ := newTestEngine(t, []*flowengine.WorkflowDefinition{def}, nil, nil)

	start := time.Now()
	receipt, err := eng.Invoke(context.Background(), "slow", map[string]any{"k": "v"})
	require.NoError(t, err)

	exec := waitForTerminal(t, eng, receipt.ExecutionID, 2*time.Second)
	assert.Equal(t, flowengine.ExecutionStatusCompleted, exec.Status)
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
	// Delay passes its input through unchanged.
	assert.Equal(t, "v", exec.Output["k"])
}

func TestCancelNeverReverts(t *testing.T) {
	def := &flowengine.WorkflowDefinition{
		ID:   "cancellable",
		Name: "Cancellable",
		Steps: []*flowengine.WorkflowStep{
			{
				ID:        "wait",
				Type:      flowengine.StepTypeDelay,
				Config:    map[string]any{"duration": 150},
				NextSteps: []string{"after"},
			},
			actionStep("after", nil, nil),
		},
	}

	eng, dispatcher := newTestEngine(t, []*flowengine.WorkflowDefinition{def}, nil, nil)

	receipt, err := eng.Invoke(context.Background(), "cancellable", nil)
	require.NoError(t, err)

	// Cancel while the delay step is in flight.
	time.Sleep(20 * time.Millisecond)
	assert.True(t, eng.Cancel(context.Background(), receipt.ExecutionID))

	// Second cancel is a no-op.
	assert.False(t, eng.Cancel(context.Background(), receipt.ExecutionID))

	// Once the delay drains, the traversal observes the cancelled status
	// and schedules nothing further; the status never reverts.
	time.Sleep(250 * time.Millisecond)
	exec, err := eng.GetExecution(context.Background(), receipt.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, flowengine.ExecutionStatusCancelled, exec.Status)
	assert.Empty(t, dispatcher.callsFor("after"))
}

func TestInvokeUnknownWorkflow(t *testing.T) {
	eng, _ := newTestEngine(t, nil, nil, nil)

	_, err := eng.Invoke(context.Background(), "nope", nil)
	require.Error(t, err)
	assert.Equal(t, flowengine.ErrCodeWorkflowNotFound, flowengine.Code(err))
}

func TestInvokeMissingEntryPoint(t *testing.T) {
	// A pure cycle leaves no step without incoming edges.
	def := &flowengine.WorkflowDefinition{
		ID:   "cycle",
		Name: "Cycle",
		Steps: []*flowengine.WorkflowStep{
			actionStep("a", []string{"b"}, nil),
			actionStep("b", []string{"a"}, nil),
		},
	}

	eng, _ := newTestEngine(t, []*flowengine.WorkflowDefinition{def}, nil, nil)

	_, err := eng.Invoke(context.Background(), "cycle", nil)
	require.Error(t, err)
	assert.Equal(t, flowengine.ErrCodeMissingEntryPoint, flowengine.Code(err))
}

func TestUnknownStepTypeFailsExecution(t *testing.T) {
	def := &flowengine.WorkflowDefinition{
		ID:   "mystery",
		Name: "Mystery",
		Steps: []*flowengine.WorkflowStep{
			{ID: "a", Type: flowengine.StepType("teleport")},
		},
	}

	eng, _ := newTestEngine(t, []*flowengine.WorkflowDefinition{def}, nil, nil)

	receipt, err := eng.Invoke(context.Background(), "mystery", nil)
	require.NoError(t, err)

	exec := waitForTerminal(t, eng, receipt.ExecutionID, 2*time.Second)
	assert.Equal(t, flowengine.ExecutionStatusFailed, exec.Status)
	assert.Contains(t, exec.Error, flowengine.ErrCodeUnknownStepType)
}

func TestPanicInActionFailsExecution(t *testing.T) {
	def := &flowengine.WorkflowDefinition{
		ID:   "boom",
		Name: "Boom",
		Steps: []*flowengine.WorkflowStep{
			actionStep("a", nil, nil),
		},
	}

	eng, _ := newTestEngine(t, []*flowengine.WorkflowDefinition{def}, nil,
		func(call dispatchCall) (any, error) {
			panic("kaboom")
		})

	receipt, err := eng.Invoke(context.Background(), "boom", nil)
	require.NoError(t, err)

	exec := waitForTerminal(t, eng, receipt.ExecutionID, 2*time.Second)
	assert.Equal(t, flowengine.ExecutionStatusFailed, exec.Status)
	assert.Contains(t, exec.Error, flowengine.ErrCodePanic)
}

func TestConvergentStepRunsOncePerEdge(t *testing.T) {
	def := &flowengine.WorkflowDefinition{
		ID:   "diamond",
		Name: "Diamond",
		Steps: []*flowengine.WorkflowStep{
			actionStep("a", []string{"b", "c"}, nil),
			actionStep("b", []string{"d"}, nil),
			actionStep("c", []string{"d"}, nil),
			actionStep("d", nil, nil),
		},
	}

	eng, dispatcher := newTestEngine(t, []*flowengine.WorkflowDefinition{def}, nil, nil)

	receipt, err := eng.Invoke(context.Background(), "diamond", nil)
	require.NoError(t, err)

	exec := waitForTerminal(t, eng, receipt.ExecutionID, 2*time.Second)
	assert.Equal(t, flowengine.ExecutionStatusCompleted, exec.Status)
	// d is convergent and executes once per incoming edge.
	assert.Len(t, dispatcher.callsFor("d"), 2)
}

func TestExecutionContextVisibleToConditions(t *testing.T) {
	def := &flowengine.WorkflowDefinition{
		ID:   "ctx",
		Name: "Ctx",
		Steps: []*flowengine.WorkflowStep{
			{
				ID:        "gate",
				Type:      flowengine.StepTypeCondition,
				Config:    map[string]any{"conditionId": "tenant-check"},
				NextSteps: []string{"c"},
			},
			actionStep("c", nil, nil),
		},
	}
	conditions := []*flowengine.ConditionConfig{{
		ID:         "tenant-check",
		Type:       flowengine.ConditionCustom,
		Expression: `context.tenant == "acme"`,
	}}

	eng, dispatcher := newTestEngine(t, []*flowengine.WorkflowDefinition{def}, conditions, nil)

	receipt, err := eng.Invoke(context.Background(), "ctx", nil,
		flowengine.WithExecutionContext(map[string]any{"tenant": "acme"}))
	require.NoError(t, err)

	exec := waitForTerminal(t, eng, receipt.ExecutionID, 2*time.Second)
	assert.Equal(t, flowengine.ExecutionStatusCompleted, exec.Status)
	assert.Len(t, dispatcher.callsFor("c"), 1)
}

func TestTriggerInfoRecorded(t *testing.T) {
	def := &flowengine.WorkflowDefinition{
		ID:    "traced",
		Name:  "Traced",
		Steps: []*flowengine.WorkflowStep{actionStep("a", nil, nil)},
	}

	eng, _ := newTestEngine(t, []*flowengine.WorkflowDefinition{def}, nil, nil)

	receipt, err := eng.Invoke(context.Background(), "traced", nil,
		flowengine.WithTrigger("webhook", "github"),
		flowengine.WithPriority(flowengine.PriorityHigh))
	require.NoError(t, err)

	exec := waitForTerminal(t, eng, receipt.ExecutionID, 2*time.Second)
	require.NotNil(t, exec.Trigger)
	assert.Equal(t, "webhook", exec.Trigger.Type)
	assert.Equal(t, "github", exec.Trigger.Source)
	assert.Equal(t, flowengine.PriorityHigh, exec.Priority)
}
