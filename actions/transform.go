package actions

import (
	"context"
	"fmt"
	"sync"

	"github.com/itchyny/gojq"

	flowengine "github.com/kumarswaresh/flowengine"
)

// TransformAction reshapes the flowing data with a jq expression. It is
// the one built-in, side-effect-free action type. The query comes from
// the step config under "query" (falling back to the action template's
// config), runs against the step's input data, and the execution
// context is in scope as $context.
type TransformAction struct {
	mu    sync.RWMutex
	codes map[string]*gojq.Code
}

// NewTransformAction creates a transform delegate with an empty
// compiled-query cache.
func NewTransformAction() *TransformAction {
	return &TransformAction{codes: make(map[string]*gojq.Code)}
}

// Type implements Action
func (t *TransformAction) Type() string { return flowengine.ActionTypeTransform }

// Execute implements Action. A query yielding one value returns that
// value; multiple values return a slice.
func (t *TransformAction) Execute(ctx context.Context, action *flowengine.ActionConfig, stepConfig, data, execCtx map[string]any) (any, error) {
	query := queryFrom(stepConfig)
	if query == "" && action != nil {
		query = queryFrom(action.Config)
	}
	if query == "" {
		return nil, fmt.Errorf("transform action requires a query")
	}

	code, err := t.getOrCompile(query)
	if err != nil {
		return nil, err
	}

	var input any = data
	if data == nil {
		input = map[string]any{}
	}
	var contextArg any = execCtx
	if execCtx == nil {
		contextArg = map[string]any{}
	}

	var results []any
	iter := code.RunWithContext(ctx, input, contextArg)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			return nil, fmt.Errorf("transform query %q failed: %w", query, err)
		}
		results = append(results, v)
	}

	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}

// getOrCompile returns a cached compiled query, compiling on first use
func (t *TransformAction) getOrCompile(query string) (*gojq.Code, error) {
	t.mu.RLock()
	code, ok := t.codes[query]
	t.mu.RUnlock()
	if ok {
		return code, nil
	}

	parsed, err := gojq.Parse(query)
	if err != nil {
		return nil, fmt.Errorf("invalid transform query %q: %w", query, err)
	}
	code, err = gojq.Compile(parsed, gojq.WithVariables([]string{"$context"}))
	if err != nil {
		return nil, fmt.Errorf("invalid transform query %q: %w", query, err)
	}

	t.mu.Lock()
	t.codes[query] = code
	t.mu.Unlock()
	return code, nil
}

func queryFrom(config map[string]any) string {
	if config == nil {
		return ""
	}
	if q, ok := config["query"].(string); ok {
		return q
	}
	if q, ok := config["expression"].(string); ok {
		return q
	}
	return ""
}
