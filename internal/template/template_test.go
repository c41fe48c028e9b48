package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	ctx := map[string]any{
		"input": map[string]any{
			"user": map[string]any{"name": "ada", "age": float64(36)},
			"tags": []any{"a", "b"},
		},
		"fetch": map[string]any{"status": float64(200)},
		"dotted.key": "direct",
	}

	tests := []struct {
		name  string
		path  string
		want  any
		found bool
	}{
		{"nested map", "input.user.name", "ada", true},
		{"numeric leaf", "fetch.status", float64(200), true},
		{"whole subtree", "input.user", map[string]any{"name": "ada", "age": float64(36)}, true},
		{"direct dotted key", "dotted.key", "direct", true},
		{"missing leaf", "input.user.email", nil, false},
		{"missing root", "nope.x", nil, false},
		{"traverse into scalar", "input.user.name.x", nil, false},
		{"traverse into array", "input.tags.0", nil, false},
		{"empty path", "", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Resolve(ctx, tt.path)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve_NilContext(t *testing.T) {
	got, ok := Resolve(nil, "a.b")
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestIsTemplate(t *testing.T) {
	assert.True(t, IsTemplate("{{input.name}}"))
	assert.True(t, IsTemplate("{{ input.name }}"))
	assert.True(t, IsTemplate("  {{input.name}}  "))
	assert.False(t, IsTemplate("hello {{input.name}}"))
	assert.False(t, IsTemplate("{{input.name}} world"))
	assert.False(t, IsTemplate("plain"))
	assert.False(t, IsTemplate(""))
}

func TestResolveTemplates(t *testing.T) {
	ctx := map[string]any{
		"input": map[string]any{"city": "Lima", "count": float64(3)},
		"step1": map[string]any{"result": map[string]any{"ok": true}},
	}
	cfg := map[string]any{
		"message": "{{ input.city }}",
		"count":   "{{input.count}}",
		"whole":   "{{step1.result}}",
		"partial": "hello {{input.city}}",
		"missing": "{{ nope.path }}",
		"nested": map[string]any{
			"inner": "{{input.city}}",
		},
		"list":   []any{"{{input.city}}", "literal"},
		"number": float64(7),
	}

	out := ResolveTemplates(cfg, ctx)

	assert.Equal(t, "Lima", out["message"])
	assert.Equal(t, float64(3), out["count"])
	assert.Equal(t, map[string]any{"ok": true}, out["whole"])
	// Embedded templates are not interpolated.
	assert.Equal(t, "hello {{input.city}}", out["partial"])
	// Unresolvable paths stay as the literal token.
	assert.Equal(t, "{{ nope.path }}", out["missing"])
	assert.Equal(t, "Lima", out["nested"].(map[string]any)["inner"])
	// Array elements are never substitution points.
	assert.Equal(t, []any{"{{input.city}}", "literal"}, out["list"])
	assert.Equal(t, float64(7), out["number"])
}

func TestResolveTemplates_DoesNotMutateInput(t *testing.T) {
	ctx := map[string]any{"input": map[string]any{"v": "resolved"}}
	cfg := map[string]any{
		"top":    "{{input.v}}",
		"nested": map[string]any{"inner": "{{input.v}}"},
	}

	out := ResolveTemplates(cfg, ctx)
	require.Equal(t, "resolved", out["top"])

	assert.Equal(t, "{{input.v}}", cfg["top"])
	assert.Equal(t, "{{input.v}}", cfg["nested"].(map[string]any)["inner"])
}

func TestResolveTemplates_Nil(t *testing.T) {
	assert.Nil(t, ResolveTemplates(nil, map[string]any{}))
}
