package builder

import (
	flowengine "github.com/kumarswaresh/flowengine"
)

// StepOption mutates a step under construction
type StepOption func(*flowengine.WorkflowStep)

// WithName sets the step's display name
func WithName(name string) StepOption {
	return func(s *flowengine.WorkflowStep) { s.Name = name }
}

// WithConfig sets one config entry on the step
func WithConfig(key string, value any) StepOption {
	return func(s *flowengine.WorkflowStep) {
		if s.Config == nil {
			s.Config = map[string]any{}
		}
		s.Config[key] = value
	}
}

// WithNextSteps sets explicit successors, overriding builder chaining
func WithNextSteps(ids ...string) StepOption {
	return func(s *flowengine.WorkflowStep) { s.NextSteps = ids }
}

// WithOnError sets the step-level error policy
func WithOnError(cfg *flowengine.ErrorHandlingConfig) StepOption {
	return func(s *flowengine.WorkflowStep) { s.OnError = cfg }
}

// WithRetry sets a retry policy on the step
func WithRetry(maxRetries int, multiplier float64, initialDelayMs int) StepOption {
	return func(s *flowengine.WorkflowStep) {
		s.OnError = &flowengine.ErrorHandlingConfig{
			Strategy:          flowengine.StrategyRetry,
			MaxRetries:        maxRetries,
			BackoffMultiplier: multiplier,
			InitialDelayMs:    initialDelayMs,
		}
	}
}

// WithFallback routes step failures to a fallback step
func WithFallback(fallbackStepID string) StepOption {
	return func(s *flowengine.WorkflowStep) {
		s.OnError = &flowengine.ErrorHandlingConfig{
			Strategy:     flowengine.StrategyFallback,
			FallbackStep: fallbackStepID,
		}
	}
}

// WithContinueOnError lets the chain proceed past step failures
func WithContinueOnError() StepOption {
	return func(s *flowengine.WorkflowStep) {
		s.OnError = &flowengine.ErrorHandlingConfig{Strategy: flowengine.StrategyContinue}
	}
}

func newStep(id string, stepType flowengine.StepType, opts []StepOption) *flowengine.WorkflowStep {
	s := &flowengine.WorkflowStep{ID: id, Type: stepType}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ActionStep creates an action step referencing a registered action
// template.
func ActionStep(id, actionID string, opts ...StepOption) *flowengine.WorkflowStep {
	s := newStep(id, flowengine.StepTypeAction, opts)
	if s.Config == nil {
		s.Config = map[string]any{}
	}
	s.Config["actionId"] = actionID
	return s
}

// ConditionStep creates a condition step referencing a registered
// condition template. On false the step is skipped and its branch is
// pruned.
func ConditionStep(id, conditionID string, opts ...StepOption) *flowengine.WorkflowStep {
	s := newStep(id, flowengine.StepTypeCondition, opts)
	if s.Config == nil {
		s.Config = map[string]any{}
	}
	s.Config["conditionId"] = conditionID
	return s
}

// LoopStep creates a loop step iterating the array at itemsPath,
// running innerStepID once per item.
func LoopStep(id, itemsPath, innerStepID string, opts ...StepOption) *flowengine.WorkflowStep {
	s := newStep(id, flowengine.StepTypeLoop, opts)
	if s.Config == nil {
		s.Config = map[string]any{}
	}
	s.Config["items"] = itemsPath
	s.Config["step"] = innerStepID
	return s
}

// ParallelStep creates a parallel step running the given steps
// concurrently and waiting for all of them.
func ParallelStep(id string, stepIDs []string, opts ...StepOption) *flowengine.WorkflowStep {
	s := newStep(id, flowengine.StepTypeParallel, opts)
	if s.Config == nil {
		s.Config = map[string]any{}
	}
	s.Config["steps"] = stepIDs
	return s
}

// DelayStep creates a delay step pausing its branch for the given
// number of milliseconds.
func DelayStep(id string, durationMs int, opts ...StepOption) *flowengine.WorkflowStep {
	s := newStep(id, flowengine.StepTypeDelay, opts)
	if s.Config == nil {
		s.Config = map[string]any{}
	}
	s.Config["duration"] = durationMs
	return s
}
