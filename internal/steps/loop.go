package steps

import (
	"context"

	"github.com/calder-io/flowgate/internal/template"
	"github.com/calder-io/flowgate/pkg/schema"
)

const defaultMaxIterations = 1000

// LoopHandler iterates a resolved collection, resolving the body config
// against a per-iteration context copy. A non-array collection is reported
// as data, not as a handler error.
type LoopHandler struct{}

func NewLoopHandler() *LoopHandler { return &LoopHandler{} }

func (h *LoopHandler) Type() schema.StepType { return schema.StepTypeLoop }

func (h *LoopHandler) Execute(_ context.Context, req Request) (*Result, error) {
	cfg := req.Step.Config
	collectionPath, _ := cfg["collection"].(string)

	resolved, _ := template.Resolve(req.Context, collectionPath)
	items, ok := resolved.([]any)
	if !ok {
		return &Result{Output: map[string]any{
			"error":      "collection is not an array",
			"collection": collectionPath,
			"iterations": 0,
		}}, nil
	}

	maxIterations := defaultMaxIterations
	if m, ok := toNumber(cfg["maxIterations"]); ok && int(m) > 0 {
		maxIterations = int(m)
	}

	itemVariable, _ := cfg["itemVariable"].(string)
	if itemVariable == "" {
		itemVariable = "item"
	}

	length := len(items)
	iterations := length
	if iterations > maxIterations {
		iterations = maxIterations
	}

	body, _ := cfg["body"].(map[string]any)
	results := make([]any, 0, iterations)

	for i := 0; i < iterations; i++ {
		iterCtx := make(map[string]any, len(req.Context)+3)
		for k, v := range req.Context {
			iterCtx[k] = v
		}
		iterCtx[itemVariable] = items[i]
		iterCtx["__index"] = i
		iterCtx["__length"] = length

		if body != nil {
			results = append(results, template.ResolveTemplates(body, iterCtx))
		} else {
			results = append(results, items[i])
		}
	}

	return &Result{Output: map[string]any{
		"iterations": iterations,
		"truncated":  length > maxIterations,
		"results":    results,
	}}, nil
}
