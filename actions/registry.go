package actions

import (
	"context"
	"fmt"
	"sync"

	flowengine "github.com/kumarswaresh/flowengine"
)

// Registry maps action types to their delegates and implements the
// engine's ActionDispatcher contract. Thread-safe.
type Registry struct {
	mu      sync.RWMutex
	byType  map[string]Action
	aliases map[string]string
}

var _ flowengine.ActionDispatcher = (*Registry)(nil)

// NewRegistry creates a registry preloaded with the built-in transform
// action.
func NewRegistry() *Registry {
	r := &Registry{
		byType:  make(map[string]Action),
		aliases: make(map[string]string),
	}
	r.Register(NewTransformAction())
	return r
}

// Register installs a delegate for its action type, replacing any
// previous delegate of the same type.
func (r *Registry) Register(action Action) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byType[action.Type()] = action
}

// Alias makes requests for one action type resolve to another. Useful
// for wiring legacy type names onto a shared connector.
func (r *Registry) Alias(from, to string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[from] = to
}

// Lookup returns the delegate for an action type, following one level
// of aliasing.
func (r *Registry) Lookup(actionType string) (Action, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if target, ok := r.aliases[actionType]; ok {
		actionType = target
	}
	a, ok := r.byType[actionType]
	return a, ok
}

// Types returns the registered action types, unordered
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.byType))
	for t := range r.byType {
		types = append(types, t)
	}
	return types
}

// Execute dispatches to the delegate registered for the action's type
func (r *Registry) Execute(ctx context.Context, actionType string, action *flowengine.ActionConfig, stepConfig, data, execCtx map[string]any) (any, error) {
	delegate, ok := r.Lookup(actionType)
	if !ok {
		return nil, fmt.Errorf("no delegate registered for action type %q", actionType)
	}
	return delegate.Execute(ctx, action, stepConfig, data, execCtx)
}

// Func adapts a plain function into an Action
type Func struct {
	ActionType string
	Run        func(ctx context.Context, action *flowengine.ActionConfig, stepConfig, data, execCtx map[string]any) (any, error)
}

func (f Func) Type() string { return f.ActionType }

func (f Func) Execute(ctx context.Context, action *flowengine.ActionConfig, stepConfig, data, execCtx map[string]any) (any, error) {
	return f.Run(ctx, action, stepConfig, data, execCtx)
}
