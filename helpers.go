package flowengine

import (
	"math"
	"strings"
	"time"
)

// ToPtr returns a pointer to the given value
func ToPtr[T any](v T) *T {
	return &v
}

// BackoffDelay calculates the delay before retry attempt n (1-based):
// initialDelay * multiplier^(attempt-1). Attempt 0 is the first try and
// gets no delay.
func BackoffDelay(initialDelay time.Duration, multiplier float64, attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	if multiplier <= 0 {
		multiplier = 1
	}
	return time.Duration(float64(initialDelay) * math.Pow(multiplier, float64(attempt-1)))
}

// LookupPath resolves a dotted field path ("user.address.city") inside
// nested map[string]any data. The second return is false when any
// segment is missing or a non-map value is traversed into.
func LookupPath(data map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	var current any = data
	for _, seg := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// MergeMaps returns a new map with overlay entries written over base.
// Neither input is mutated; nil inputs are treated as empty.
func MergeMaps(base, overlay map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(overlay))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overlay {
		merged[k] = v
	}
	return merged
}

// AsSlice coerces a value resolved from step data into []any.
// Only genuine arrays qualify; maps, strings and scalars do not.
func AsSlice(v any) ([]any, bool) {
	switch arr := v.(type) {
	case []any:
		return arr, true
	case []map[string]any:
		out := make([]any, len(arr))
		for i, m := range arr {
			out[i] = m
		}
		return out, true
	case []string:
		out := make([]any, len(arr))
		for i, s := range arr {
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}
