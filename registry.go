package flowengine

import (
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Registry holds the workflow, trigger, action and condition collections.
// It is loaded once at construction and safe for concurrent reads; late
// registration is rare and takes the coarse write lock.
type Registry struct {
	mu         sync.RWMutex
	config     Config
	workflows  map[string]*WorkflowDefinition
	triggers   map[string]*TriggerConfig
	actions    map[string]*ActionConfig
	conditions map[string]*ConditionConfig

	// precomputed per workflow at registration
	entrySteps map[string][]string
	// triggerID -> workflow ids bound to it
	byTrigger map[string][]string

	logger zerolog.Logger
}

// RegistryOption configures the registry
type RegistryOption func(*Registry)

// WithRegistryLogger sets a custom logger for registration warnings
func WithRegistryLogger(logger zerolog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry builds a registry from the construction configuration.
// Every workflow definition is validated and analyzed: duplicate step
// ids and dangling nextStep references are rejected, convergent steps
// and cycles are flagged with a warning but accepted.
func NewRegistry(cfg Config, opts ...RegistryOption) (*Registry, error) {
	r := &Registry{
		config:     cfg.withDefaults(),
		workflows:  make(map[string]*WorkflowDefinition),
		triggers:   make(map[string]*TriggerConfig),
		actions:    make(map[string]*ActionConfig),
		conditions: make(map[string]*ConditionConfig),
		entrySteps: make(map[string][]string),
		byTrigger:  make(map[string][]string),
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}

	for _, trigger := range cfg.Triggers {
		r.triggers[trigger.ID] = trigger
	}
	for _, action := range cfg.Actions {
		r.actions[action.ID] = action
	}
	for _, condition := range cfg.Conditions {
		r.conditions[condition.ID] = condition
	}
	for _, def := range cfg.Workflows {
		if err := r.register(def); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Config returns the effective construction configuration
func (r *Registry) Config() Config {
	return r.config
}

// RegisterWorkflow adds a workflow definition after construction
func (r *Registry) RegisterWorkflow(def *WorkflowDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.register(def)
}

// register validates and indexes a definition; callers hold the lock
// (or are still single-threaded in NewRegistry).
func (r *Registry) register(def *WorkflowDefinition) error {
	if def == nil || def.ID == "" {
		return NewWorkflowError(ErrCodeValidation, "workflow definition has no id")
	}
	if _, exists := r.workflows[def.ID]; exists {
		return NewWorkflowErrorf(ErrCodeValidation, "workflow %s already registered", def.ID)
	}

	seen := make(map[string]bool, len(def.Steps))
	for _, step := range def.Steps {
		if step.ID == "" {
			return NewWorkflowErrorf(ErrCodeValidation, "workflow %s has a step with no id", def.ID)
		}
		if seen[step.ID] {
			return NewWorkflowErrorf(ErrCodeValidation, "workflow %s has duplicate step id %q", def.ID, step.ID)
		}
		seen[step.ID] = true
	}

	graph := newStepGraph(def)
	if dangling := graph.DanglingRefs(); len(dangling) > 0 {
		return NewWorkflowErrorf(ErrCodeValidation,
			"workflow %s references unknown steps: %s", def.ID, strings.Join(dangling, ", "))
	}

	// Convergence and cycles are observed behavior, not rejected.
	// A convergent step executes once per incoming edge.
	if convergent := graph.ConvergentSteps(); len(convergent) > 0 {
		r.logger.Warn().
			Str("workflow_id", def.ID).
			Strs("steps", convergent).
			Msg("Convergent steps execute once per incoming edge")
	}
	if graph.HasCycle() {
		r.logger.Warn().
			Str("workflow_id", def.ID).
			Msg("Workflow graph contains a cycle")
	}

	r.workflows[def.ID] = def
	r.entrySteps[def.ID] = graph.EntrySteps()
	for _, triggerID := range def.Triggers {
		r.byTrigger[triggerID] = append(r.byTrigger[triggerID], def.ID)
	}
	return nil
}

// Workflow returns the definition for the given id
func (r *Registry) Workflow(id string) (*WorkflowDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.workflows[id]
	return def, ok
}

// EntrySteps returns the precomputed entry step ids of a workflow:
// steps that appear in no other step's nextSteps.
func (r *Registry) EntrySteps(workflowID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entrySteps[workflowID]
}

// Action returns the action template for the given id
func (r *Registry) Action(id string) (*ActionConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	action, ok := r.actions[id]
	return action, ok
}

// Condition returns the condition template for the given id
func (r *Registry) Condition(id string) (*ConditionConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	condition, ok := r.conditions[id]
	return condition, ok
}

// Trigger returns the trigger config for the given id
func (r *Registry) Trigger(id string) (*TriggerConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	trigger, ok := r.triggers[id]
	return trigger, ok
}

// ScheduleTriggers returns all enabled schedule-type triggers
func (r *Registry) ScheduleTriggers() []*TriggerConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*TriggerConfig
	for _, trigger := range r.triggers {
		if trigger.Type == TriggerTypeSchedule && trigger.Enabled {
			out = append(out, trigger)
		}
	}
	return out
}

// WorkflowsForTrigger returns the workflow ids bound to a trigger
func (r *Registry) WorkflowsForTrigger(triggerID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byTrigger[triggerID]
}
