// Package template resolves {{path}} references in step configs against
// the execution context. The template language is deliberately restricted:
// a string value must be exactly one "{{ dotted.path }}" token to be
// substituted; anything else passes through untouched.
package template

import "strings"

// Resolve walks a dot-delimited path into nested maps. A missing key or
// a non-map intermediate yields (nil, false). It never panics.
func Resolve(ctx map[string]any, path string) (any, bool) {
	if ctx == nil || path == "" {
		return nil, false
	}

	// Direct key lookup first (supports keys with dots).
	if val, ok := ctx[path]; ok {
		return val, true
	}

	var current any = ctx
	for _, seg := range strings.Split(path, ".") {
		if seg == "" {
			return nil, false
		}
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

// IsTemplate reports whether s is a single template token, i.e. the
// whole string is "{{...}}" with no trailing content.
func IsTemplate(s string) bool {
	trimmed := strings.TrimSpace(s)
	return strings.HasPrefix(trimmed, "{{") && strings.HasSuffix(trimmed, "}}") &&
		strings.Index(trimmed, "}}") == len(trimmed)-2
}

// ResolveTemplates returns a deep copy of cfg with template string values
// substituted from ctx. Nested maps are recursed; arrays and non-template
// scalars pass through unchanged. Unresolvable paths leave the original
// string in place. The input map is never mutated.
func ResolveTemplates(cfg map[string]any, ctx map[string]any) map[string]any {
	if cfg == nil {
		return nil
	}
	out := make(map[string]any, len(cfg))
	for k, v := range cfg {
		out[k] = resolveValue(v, ctx)
	}
	return out
}

func resolveValue(v any, ctx map[string]any) any {
	switch val := v.(type) {
	case string:
		if !IsTemplate(val) {
			return val
		}
		path := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(val), "{{"), "}}"))
		if resolved, ok := Resolve(ctx, path); ok {
			return resolved
		}
		return val
	case map[string]any:
		return ResolveTemplates(val, ctx)
	case []any:
		// Arrays pass through unchanged; only string leaves and nested
		// maps are substitution points. Copy so the input stays isolated.
		out := make([]any, len(val))
		copy(out, val)
		return out
	default:
		return v
	}
}
