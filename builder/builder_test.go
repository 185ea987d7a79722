package builder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	flowengine "github.com/kumarswaresh/flowengine"
)

func TestLinearChain(t *testing.T) {
	def, err := NewWorkflow("orders", "Orders").
		WithDescription("Order intake").
		WithTriggers("order-webhook").
		Then(ActionStep("validate", "validator")).
		Then(ActionStep("notify", "slack-notify")).
		Build()
	require.NoError(t, err)

	assert.Equal(t, "orders", def.ID)
	assert.Equal(t, "Order intake", def.Description)
	assert.Equal(t, []string{"order-webhook"}, def.Triggers)
	require.Len(t, def.Steps, 2)
	assert.Equal(t, []string{"notify"}, def.Step("validate").NextSteps)
	assert.Empty(t, def.Step("notify").NextSteps)
	assert.Equal(t, "validator", def.Step("validate").Config["actionId"])
}

func TestBranchAndJoin(t *testing.T) {
	def, err := NewWorkflow("fanout", "Fanout").
		Then(ActionStep("start", "a")).
		Branch(
			ActionStep("left", "a"),
			ActionStep("right", "a"),
		).
		Join(ActionStep("merge", "a")).
		Build()
	require.NoError(t, err)

	assert.Equal(t, []string{"left", "right"}, def.Step("start").NextSteps)
	assert.Equal(t, []string{"merge"}, def.Step("left").NextSteps)
	assert.Equal(t, []string{"merge"}, def.Step("right").NextSteps)
}

func TestStepConstructors(t *testing.T) {
	cond := ConditionStep("gate", "is-high-value", WithName("Gate"))
	assert.Equal(t, flowengine.StepTypeCondition, cond.Type)
	assert.Equal(t, "is-high-value", cond.Config["conditionId"])
	assert.Equal(t, "Gate", cond.Name)

	loop := LoopStep("each", "order.items", "handle", WithConfig("maxIterations", 10))
	assert.Equal(t, flowengine.StepTypeLoop, loop.Type)
	assert.Equal(t, "order.items", loop.Config["items"])
	assert.Equal(t, "handle", loop.Config["step"])
	assert.Equal(t, 10, loop.Config["maxIterations"])

	par := ParallelStep("split", []string{"p1", "p2"})
	assert.Equal(t, flowengine.StepTypeParallel, par.Type)
	assert.Equal(t, []string{"p1", "p2"}, par.Config["steps"])

	delay := DelayStep("wait", 500)
	assert.Equal(t, flowengine.StepTypeDelay, delay.Type)
	assert.Equal(t, 500, delay.Config["duration"])
}

func TestErrorPolicyOptions(t *testing.T) {
	retry := ActionStep("flaky", "a", WithRetry(3, 2.0, 100))
	require.NotNil(t, retry.OnError)
	assert.Equal(t, flowengine.StrategyRetry, retry.OnError.Strategy)
	assert.Equal(t, 3, retry.OnError.MaxRetries)
	assert.Equal(t, 2.0, retry.OnError.BackoffMultiplier)
	assert.Equal(t, 100, retry.OnError.InitialDelayMs)

	fb := ActionStep("primary", "a", WithFallback("plan-b"))
	require.NotNil(t, fb.OnError)
	assert.Equal(t, flowengine.StrategyFallback, fb.OnError.Strategy)
	assert.Equal(t, "plan-b", fb.OnError.FallbackStep)

	cont := ActionStep("optional", "a", WithContinueOnError())
	require.NotNil(t, cont.OnError)
	assert.Equal(t, flowengine.StrategyContinue, cont.OnError.Strategy)
}

func TestWorkflowLevelErrorPolicy(t *testing.T) {
	def, err := NewWorkflow("wf", "WF").
		OnError(&flowengine.ErrorHandlingConfig{Strategy: flowengine.StrategyContinue}).
		Then(ActionStep("a", "act")).
		Build()
	require.NoError(t, err)
	require.NotNil(t, def.ErrorHandling)
	assert.Equal(t, flowengine.StrategyContinue, def.ErrorHandling.Strategy)
}

func TestDetachedStepForLoopChild(t *testing.T) {
	def, err := NewWorkflow("batch", "Batch").
		Then(LoopStep("each", "items", "handle")).
		Step(ActionStep("handle", "act")).
		Build()
	require.NoError(t, err)

	require.Len(t, def.Steps, 2)
	assert.Empty(t, def.Step("each").NextSteps)
}

func TestBuildRejectsInvalidDefinitions(t *testing.T) {
	_, err := NewWorkflow("empty", "Empty").Build()
	require.Error(t, err)

	_, err = NewWorkflow("wf", "WF").
		Then(ActionStep("a", "act", WithNextSteps("ghost"))).
		Build()
	require.Error(t, err)

	_, err = NewWorkflow("wf", "WF").
		Then(ActionStep("a", "act", WithFallback("ghost"))).
		Build()
	require.Error(t, err)

	_, err = NewWorkflow("wf", "WF").
		Then(&flowengine.WorkflowStep{Type: flowengine.StepTypeAction}).
		Build()
	require.Error(t, err)
}

func TestMustBuildPanics(t *testing.T) {
	assert.Panics(t, func() {
		NewWorkflow("empty", "Empty").MustBuild()
	})
}

func TestSequenceChains(t *testing.T) {
	def, err := NewWorkflow("seq", "Seq").
		Sequence(
			ActionStep("a", "act"),
			ActionStep("b", "act"),
			ActionStep("c", "act"),
		).
		Build()
	require.NoError(t, err)

	assert.Equal(t, []string{"b"}, def.Step("a").NextSteps)
	assert.Equal(t, []string{"c"}, def.Step("b").NextSteps)
}
