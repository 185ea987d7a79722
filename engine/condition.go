package engine

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	flowengine "github.com/kumarswaresh/flowengine"
)

// conditionEvaluator evaluates condition templates against step data
// and execution context. Custom conditions compile to a restricted
// expr-lang program once and are cached; there is no general-purpose
// code evaluator. Thread-safe across concurrent executions.
type conditionEvaluator struct {
	mu       sync.RWMutex
	programs map[string]*vm.Program
	patterns map[string]*regexp.Regexp
}

func newConditionEvaluator() *conditionEvaluator {
	return &conditionEvaluator{
		programs: make(map[string]*vm.Program),
		patterns: make(map[string]*regexp.Regexp),
	}
}

// Evaluate returns whether the condition holds for the given data
func (ev *conditionEvaluator) Evaluate(ctx context.Context, cond *flowengine.ConditionConfig, data, execCtx map[string]any) (bool, error) {
	switch cond.Type {
	case flowengine.ConditionComparison:
		value, _ := resolveField(cond.Field, data, execCtx)
		return compare(cond.Operator, value, cond.Value)

	case flowengine.ConditionExists:
		value, ok := resolveField(cond.Field, data, execCtx)
		return ok && value != nil, nil

	case flowengine.ConditionRegex:
		value, ok := resolveField(cond.Field, data, execCtx)
		if !ok {
			return false, nil
		}
		re, err := ev.pattern(cond.Pattern)
		if err != nil {
			return false, err
		}
		return re.MatchString(fmt.Sprint(value)), nil

	case flowengine.ConditionCustom:
		return ev.evalExpression(cond.Expression, data, execCtx)

	default:
		return false, fmt.Errorf("unknown condition type %q", cond.Type)
	}
}

// pattern returns a cached compiled regexp
func (ev *conditionEvaluator) pattern(pattern string) (*regexp.Regexp, error) {
	ev.mu.RLock()
	re, ok := ev.patterns[pattern]
	ev.mu.RUnlock()
	if ok {
		return re, nil
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid condition pattern %q: %w", pattern, err)
	}

	ev.mu.Lock()
	ev.patterns[pattern] = re
	ev.mu.Unlock()
	return re, nil
}

// evalExpression compiles (or retrieves from cache) a custom condition
// expression and evaluates it with {data, context} in scope. The result
// must be a boolean.
func (ev *conditionEvaluator) evalExpression(expression string, data, execCtx map[string]any) (bool, error) {
	if expression == "" {
		return false, fmt.Errorf("empty condition expression")
	}

	program, err := ev.getOrCompile(expression)
	if err != nil {
		return false, err
	}

	env := map[string]any{
		"data":    data,
		"context": execCtx,
	}
	out, err := vm.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("condition expression %q failed: %w", expression, err)
	}
	return out == true, nil
}

func (ev *conditionEvaluator) getOrCompile(expression string) (*vm.Program, error) {
	ev.mu.RLock()
	program, ok := ev.programs[expression]
	ev.mu.RUnlock()
	if ok {
		return program, nil
	}

	program, err := expr.Compile(expression,
		expr.Env(map[string]any{}),
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid condition expression %q: %w", expression, err)
	}

	ev.mu.Lock()
	ev.programs[expression] = program
	ev.mu.Unlock()
	return program, nil
}

// resolveField resolves a dotted field path against step data and
// execution context. A "data." prefix addresses the flowing data, a
// "context." prefix the execution context; bare paths address data.
func resolveField(path string, data, execCtx map[string]any) (any, bool) {
	switch {
	case path == "":
		return nil, false
	case path == "data":
		return data, true
	case path == "context":
		return execCtx, true
	case strings.HasPrefix(path, "data."):
		return flowengine.LookupPath(data, strings.TrimPrefix(path, "data."))
	case strings.HasPrefix(path, "context."):
		return flowengine.LookupPath(execCtx, strings.TrimPrefix(path, "context."))
	default:
		return flowengine.LookupPath(data, path)
	}
}

// compare applies a comparison operator. Numeric operands compare
// numerically (decoded JSON numbers arrive as float64); eq/ne fall back
// to string-form equality for everything else.
func compare(operator string, left, right any) (bool, error) {
	lf, lok := toFloat(left)
	rf, rok := toFloat(right)
	numeric := lok && rok

	switch operator {
	case "eq":
		if numeric {
			return lf == rf, nil
		}
		return fmt.Sprint(left) == fmt.Sprint(right), nil
	case "ne":
		if numeric {
			return lf != rf, nil
		}
		return fmt.Sprint(left) != fmt.Sprint(right), nil
	case "gt", "gte", "lt", "lte":
		if !numeric {
			return false, fmt.Errorf("operator %q requires numeric operands", operator)
		}
		switch operator {
		case "gt":
			return lf > rf, nil
		case "gte":
			return lf >= rf, nil
		case "lt":
			return lf < rf, nil
		default:
			return lf <= rf, nil
		}
	default:
		return false, fmt.Errorf("unknown comparison operator %q", operator)
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	default:
		return 0, false
	}
}
