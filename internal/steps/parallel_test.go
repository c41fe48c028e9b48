package steps

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calder-io/flowgate/pkg/schema"
)

// syncPool runs submitted work in a fresh goroutine without bounds.
type syncPool struct {
	submitted atomic.Int64
}

func (p *syncPool) Submit(ctx context.Context, fn func(ctx context.Context) error) error {
	p.submitted.Add(1)
	go func() {
		defer func() { _ = recover() }()
		_ = fn(ctx)
	}()
	return nil
}

func runParallel(t *testing.T, config, ctx map[string]any) map[string]any {
	t.Helper()
	h := NewParallelHandler(&syncPool{})
	res, err := h.Execute(context.Background(), Request{
		Step:    schema.Step{ID: "p1", Type: schema.StepTypeParallel, Config: config},
		Context: ctx,
	})
	require.NoError(t, err)
	return res.Output.(map[string]any)
}

func TestParallelAllBranchesSucceed(t *testing.T) {
	out := runParallel(t, map[string]any{
		"branches": []any{
			map[string]any{"name": "b1", "action": map[string]any{"action": "log", "message": "one"}},
			map[string]any{"name": "b2", "action": map[string]any{"action": "log", "message": "two"}},
		},
	}, nil)

	assert.Equal(t, true, out["allSucceeded"])
	branches := out["branches"].([]any)
	require.Len(t, branches, 2)
	for _, b := range branches {
		assert.Equal(t, "success", b.(map[string]any)["status"])
	}
	// Declared order is preserved in the result.
	assert.Equal(t, "b1", branches[0].(map[string]any)["name"])
	assert.Equal(t, "b2", branches[1].(map[string]any)["name"])
}

func TestParallelSettleAll(t *testing.T) {
	// One failing branch must not prevent siblings from completing.
	out := runParallel(t, map[string]any{
		"branches": []any{
			map[string]any{"name": "ok", "action": map[string]any{"action": "log", "message": "fine"}},
			map[string]any{"name": "bad", "action": map[string]any{"action": "transform", "transform": "rot13"}},
			map[string]any{"name": "also-ok", "action": map[string]any{"action": "set_variable", "name": "v", "value": float64(1)}},
		},
	}, nil)

	assert.Equal(t, false, out["allSucceeded"])
	branches := out["branches"].([]any)
	require.Len(t, branches, 3)

	byName := map[string]map[string]any{}
	for _, b := range branches {
		m := b.(map[string]any)
		byName[m["name"].(string)] = m
	}
	assert.Equal(t, "success", byName["ok"]["status"])
	assert.Equal(t, "failed", byName["bad"]["status"])
	assert.NotEmpty(t, byName["bad"]["error"])
	assert.Equal(t, "success", byName["also-ok"]["status"])
}

func TestParallelNoBranches(t *testing.T) {
	out := runParallel(t, map[string]any{}, nil)
	assert.Equal(t, "no branches defined", out["error"])
}

func TestParallelBranchWithoutAction(t *testing.T) {
	out := runParallel(t, map[string]any{
		"branches": []any{map[string]any{"name": "empty"}},
	}, nil)

	assert.Equal(t, false, out["allSucceeded"])
	branch := out["branches"].([]any)[0].(map[string]any)
	assert.Equal(t, "failed", branch["status"])
}

func TestParallelBranchTemplatesResolveIndependently(t *testing.T) {
	ctx := map[string]any{"input": map[string]any{"a": "left", "b": "right"}}
	out := runParallel(t, map[string]any{
		"branches": []any{
			map[string]any{"name": "b1", "action": map[string]any{"action": "log", "message": "{{input.a}}"}},
			map[string]any{"name": "b2", "action": map[string]any{"action": "log", "message": "{{input.b}}"}},
		},
	}, ctx)

	branches := out["branches"].([]any)
	first := branches[0].(map[string]any)["output"].(map[string]any)
	second := branches[1].(map[string]any)["output"].(map[string]any)
	assert.Equal(t, "left", first["message"])
	assert.Equal(t, "right", second["message"])
}

// recordingNotifier captures notify calls across branch goroutines.
type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) Notify(_ context.Context, _, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
	return nil
}

func TestParallelBranchesUseWiredActionHandler(t *testing.T) {
	notifier := &recordingNotifier{}
	h := NewParallelHandlerWith(&syncPool{}, NewActionHandler(NopTransport{}, notifier))

	res, err := h.Execute(context.Background(), Request{
		Step: schema.Step{ID: "p1", Type: schema.StepTypeParallel, Config: map[string]any{
			"branches": []any{
				map[string]any{"name": "n1", "action": map[string]any{"action": "notify", "message": "ping"}},
			},
		}},
	})
	require.NoError(t, err)

	out := res.Output.(map[string]any)
	assert.Equal(t, true, out["allSucceeded"])

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	require.Len(t, notifier.messages, 1)
	assert.Equal(t, "ping", notifier.messages[0])
}

func TestParallelDefaultBranchNames(t *testing.T) {
	out := runParallel(t, map[string]any{
		"branches": []any{
			map[string]any{"action": map[string]any{"action": "log"}},
		},
	}, nil)

	branch := out["branches"].([]any)[0].(map[string]any)
	assert.Equal(t, "branch-0", branch["name"])
}
