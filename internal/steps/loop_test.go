package steps

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calder-io/flowgate/pkg/schema"
)

func runLoop(t *testing.T, config, ctx map[string]any) map[string]any {
	t.Helper()
	h := NewLoopHandler()
	res, err := h.Execute(context.Background(), Request{
		Step:    schema.Step{ID: "l1", Type: schema.StepTypeLoop, Config: config},
		Context: ctx,
	})
	require.NoError(t, err)
	return res.Output.(map[string]any)
}

func TestLoopIteratesCollection(t *testing.T) {
	ctx := map[string]any{"items": []any{float64(1), float64(2), float64(3)}}
	out := runLoop(t, map[string]any{"collection": "items"}, ctx)

	assert.Equal(t, 3, out["iterations"])
	assert.Equal(t, false, out["truncated"])
	assert.Equal(t, []any{float64(1), float64(2), float64(3)}, out["results"])
}

func TestLoopTruncation(t *testing.T) {
	ctx := map[string]any{"items": []any{float64(1), float64(2), float64(3), float64(4), float64(5)}}
	out := runLoop(t, map[string]any{"collection": "items", "maxIterations": float64(3)}, ctx)

	assert.Equal(t, 3, out["iterations"])
	assert.Equal(t, true, out["truncated"])
	assert.Len(t, out["results"], 3)
}

func TestLoopNonArrayCollection(t *testing.T) {
	ctx := map[string]any{"items": "not-a-list"}
	out := runLoop(t, map[string]any{"collection": "items"}, ctx)

	assert.Equal(t, 0, out["iterations"])
	assert.Equal(t, "collection is not an array", out["error"])
}

func TestLoopMissingCollection(t *testing.T) {
	out := runLoop(t, map[string]any{"collection": "nope"}, map[string]any{})
	assert.Equal(t, 0, out["iterations"])
}

func TestLoopBodyTemplates(t *testing.T) {
	ctx := map[string]any{
		"tag":   "v1",
		"items": []any{"a", "b"},
	}
	out := runLoop(t, map[string]any{
		"collection": "items",
		"body": map[string]any{
			"current": "{{item}}",
			"index":   "{{__index}}",
			"total":   "{{__length}}",
			"tag":     "{{tag}}",
		},
	}, ctx)

	results := out["results"].([]any)
	require.Len(t, results, 2)

	first := results[0].(map[string]any)
	assert.Equal(t, "a", first["current"])
	assert.Equal(t, 0, first["index"])
	assert.Equal(t, 2, first["total"])
	assert.Equal(t, "v1", first["tag"])

	second := results[1].(map[string]any)
	assert.Equal(t, "b", second["current"])
	assert.Equal(t, 1, second["index"])
}

func TestLoopCustomItemVariable(t *testing.T) {
	ctx := map[string]any{"users": []any{map[string]any{"name": "ada"}}}
	out := runLoop(t, map[string]any{
		"collection":   "users",
		"itemVariable": "user",
		"body":         map[string]any{"who": "{{user.name}}"},
	}, ctx)

	results := out["results"].([]any)
	require.Len(t, results, 1)
	assert.Equal(t, "ada", results[0].(map[string]any)["who"])
}

func TestLoopDoesNotLeakIterationVariables(t *testing.T) {
	ctx := map[string]any{"items": []any{"a"}}
	runLoop(t, map[string]any{"collection": "items"}, ctx)

	_, hasItem := ctx["item"]
	_, hasIndex := ctx["__index"]
	assert.False(t, hasItem)
	assert.False(t, hasIndex)
}
