// Package builder provides a fluent API for assembling workflow
// definitions in code, as an alternative to loading JSON documents.
package builder

import (
	"fmt"

	flowengine "github.com/kumarswaresh/flowengine"
)

// WorkflowBuilder accumulates steps and edges for one workflow
// definition. Not safe for concurrent use; build the definition once
// and register it.
type WorkflowBuilder struct {
	def         *flowengine.WorkflowDefinition
	lastStepIDs []string
	errs        []error
}

// NewWorkflow creates a new workflow builder
func NewWorkflow(id, name string) *WorkflowBuilder {
	return &WorkflowBuilder{
		def: &flowengine.WorkflowDefinition{
			ID:   id,
			Name: name,
		},
	}
}

// WithDescription sets the workflow description
func (b *WorkflowBuilder) WithDescription(description string) *WorkflowBuilder {
	b.def.Description = description
	return b
}

// WithTriggers binds the workflow to the given trigger ids
func (b *WorkflowBuilder) WithTriggers(triggerIDs ...string) *WorkflowBuilder {
	b.def.Triggers = append(b.def.Triggers, triggerIDs...)
	return b
}

// WithMetadata sets a metadata entry on the workflow
func (b *WorkflowBuilder) WithMetadata(key string, value any) *WorkflowBuilder {
	if b.def.Metadata == nil {
		b.def.Metadata = map[string]any{}
	}
	b.def.Metadata[key] = value
	return b
}

// OnError sets the workflow-level error policy, used by steps without
// their own.
func (b *WorkflowBuilder) OnError(cfg *flowengine.ErrorHandlingConfig) *WorkflowBuilder {
	b.def.ErrorHandling = cfg
	return b
}

// Then appends a step and chains it after the previously added step(s).
// The first Then call adds the workflow's entry step.
func (b *WorkflowBuilder) Then(step *flowengine.WorkflowStep) *WorkflowBuilder {
	b.add(step)
	for _, lastID := range b.lastStepIDs {
		b.link(lastID, step.ID)
	}
	b.lastStepIDs = []string{step.ID}
	return b
}

// Branch fans out from the last step(s) to several successors. Each
// branch continues independently; use Join to converge them.
func (b *WorkflowBuilder) Branch(steps ...*flowengine.WorkflowStep) *WorkflowBuilder {
	var newLast []string
	for _, step := range steps {
		b.add(step)
		for _, lastID := range b.lastStepIDs {
			b.link(lastID, step.ID)
		}
		newLast = append(newLast, step.ID)
	}
	b.lastStepIDs = newLast
	return b
}

// Join converges all current branch tails onto one step. The step
// becomes convergent and executes once per inbound edge.
func (b *WorkflowBuilder) Join(step *flowengine.WorkflowStep) *WorkflowBuilder {
	return b.Then(step)
}

// Sequence appends steps and chains them in order
func (b *WorkflowBuilder) Sequence(steps ...*flowengine.WorkflowStep) *WorkflowBuilder {
	for _, step := range steps {
		b.Then(step)
	}
	return b
}

// Step appends a step without chaining it; its edges come from the
// NextSteps already set on it or on other steps. Detached steps become
// additional entry steps.
func (b *WorkflowBuilder) Step(step *flowengine.WorkflowStep) *WorkflowBuilder {
	b.add(step)
	return b
}

// Build finalizes the definition. It fails on accumulated builder
// errors and on dangling NextSteps references.
func (b *WorkflowBuilder) Build() (*flowengine.WorkflowDefinition, error) {
	if len(b.errs) > 0 {
		return nil, b.errs[0]
	}
	if len(b.def.Steps) == 0 {
		return nil, fmt.Errorf("workflow %q has no steps", b.def.ID)
	}
	for _, step := range b.def.Steps {
		for _, next := range step.NextSteps {
			if b.def.Step(next) == nil {
				return nil, fmt.Errorf("step %q references unknown step %q", step.ID, next)
			}
		}
		if step.OnError != nil && step.OnError.FallbackStep != "" && b.def.Step(step.OnError.FallbackStep) == nil {
			return nil, fmt.Errorf("step %q references unknown fallback step %q", step.ID, step.OnError.FallbackStep)
		}
	}
	return b.def, nil
}

// MustBuild is Build that panics on error, for static wiring in main
func (b *WorkflowBuilder) MustBuild() *flowengine.WorkflowDefinition {
	def, err := b.Build()
	if err != nil {
		panic(err)
	}
	return def
}

func (b *WorkflowBuilder) add(step *flowengine.WorkflowStep) {
	if step.ID == "" {
		b.errs = append(b.errs, fmt.Errorf("workflow %q: step with empty id", b.def.ID))
		return
	}
	if b.def.Step(step.ID) != nil {
		return
	}
	b.def.Steps = append(b.def.Steps, step)
}

func (b *WorkflowBuilder) link(fromID, toID string) {
	from := b.def.Step(fromID)
	if from == nil {
		b.errs = append(b.errs, fmt.Errorf("workflow %q: unknown step %q", b.def.ID, fromID))
		return
	}
	for _, next := range from.NextSteps {
		if next == toID {
			return
		}
	}
	from.NextSteps = append(from.NextSteps, toID)
}
