package actions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	flowengine "github.com/kumarswaresh/flowengine"
)

func runTransform(t *testing.T, stepConfig, data, execCtx map[string]any) (any, error) {
	t.Helper()
	tr := NewTransformAction()
	return tr.Execute(context.Background(), nil, stepConfig, data, execCtx)
}

func TestTransformReshapesData(t *testing.T) {
	out, err := runTransform(t,
		map[string]any{"query": `{orderId: .id, total: (.items | length)}`},
		map[string]any{"id": "o-1", "items": []any{1, 2, 3}},
		nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"orderId": "o-1", "total": 3}, out)
}

func TestTransformScalarResult(t *testing.T) {
	out, err := runTransform(t,
		map[string]any{"query": `.items | length`},
		map[string]any{"items": []any{1, 2}},
		nil)
	require.NoError(t, err)
	assert.Equal(t, 2, out)
}

func TestTransformMultipleResults(t *testing.T) {
	out, err := runTransform(t,
		map[string]any{"query": `.items[]`},
		map[string]any{"items": []any{"a", "b"}},
		nil)
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, out)
}

func TestTransformContextVariable(t *testing.T) {
	out, err := runTransform(t,
		map[string]any{"query": `{tenant: $context.tenant, id: .id}`},
		map[string]any{"id": "o-1"},
		map[string]any{"tenant": "acme"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"tenant": "acme", "id": "o-1"}, out)
}

func TestTransformQueryFromActionTemplate(t *testing.T) {
	tr := NewTransformAction()
	action := &flowengine.ActionConfig{
		ID:     "summary",
		Type:   flowengine.ActionTypeTransform,
		Config: map[string]any{"query": `.n + 1`},
	}

	out, err := tr.Execute(context.Background(), action, nil, map[string]any{"n": 1}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, out)
}

func TestTransformErrors(t *testing.T) {
	_, err := runTransform(t, nil, map[string]any{}, nil)
	require.Error(t, err)

	_, err = runTransform(t, map[string]any{"query": `.[`}, map[string]any{}, nil)
	require.Error(t, err)

	// Runtime errors surface, not panic.
	_, err = runTransform(t, map[string]any{"query": `.a / 0`},
		map[string]any{"a": 1}, nil)
	require.Error(t, err)
}

func TestTransformCachesCompiledQueries(t *testing.T) {
	tr := NewTransformAction()
	config := map[string]any{"query": `.n`}

	for i := 0; i < 3; i++ {
		_, err := tr.Execute(context.Background(), nil, config, map[string]any{"n": i}, nil)
		require.NoError(t, err)
	}

	tr.mu.RLock()
	defer tr.mu.RUnlock()
	assert.Len(t, tr.codes, 1)
}
