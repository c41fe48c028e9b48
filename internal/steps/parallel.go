package steps

import (
	"context"
	"fmt"
	"sync"

	"github.com/calder-io/flowgate/internal/template"
	"github.com/calder-io/flowgate/pkg/schema"
)

// ParallelHandler fans out the step's branches concurrently on the worker
// pool and joins settle-all: every branch runs to completion regardless of
// sibling failures. Branch actions run through the shared action handler,
// so they see the same Transport/Notifier the caller wired.
type ParallelHandler struct {
	pool   Pool
	action *ActionHandler
}

func NewParallelHandler(pool Pool) *ParallelHandler {
	return NewParallelHandlerWith(pool, NewActionHandler(NopTransport{}, NopNotifier{}))
}

func NewParallelHandlerWith(pool Pool, action *ActionHandler) *ParallelHandler {
	return &ParallelHandler{pool: pool, action: action}
}

func (h *ParallelHandler) Type() schema.StepType { return schema.StepTypeParallel }

type branchResult struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Output any    `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

func (h *ParallelHandler) Execute(ctx context.Context, req Request) (*Result, error) {
	rawBranches, _ := req.Step.Config["branches"].([]any)
	if len(rawBranches) == 0 {
		return &Result{Output: map[string]any{
			"error":    "no branches defined",
			"branches": []any{},
		}}, nil
	}

	results := make([]branchResult, len(rawBranches))
	var wg sync.WaitGroup

	for i, raw := range rawBranches {
		branch, _ := raw.(map[string]any)
		name, _ := branch["name"].(string)
		if name == "" {
			name = fmt.Sprintf("branch-%d", i)
		}
		results[i] = branchResult{Name: name}

		i := i
		wg.Add(1)
		submitted := h.pool.Submit(ctx, func(ctx context.Context) error {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					results[i].Status = "failed"
					results[i].Error = fmt.Sprintf("branch panicked: %v", r)
				}
			}()
			out, err := h.runBranch(ctx, branch, req)
			if err != nil {
				results[i].Status = "failed"
				results[i].Error = err.Error()
				return err
			}
			results[i].Status = "success"
			results[i].Output = out
			return nil
		})
		if submitted != nil {
			wg.Done()
			results[i].Status = "failed"
			results[i].Error = submitted.Error()
		}
	}

	wg.Wait()

	allSucceeded := true
	out := make([]any, len(results))
	for i, r := range results {
		if r.Status != "success" {
			allSucceeded = false
		}
		entry := map[string]any{"name": r.Name, "status": r.Status}
		if r.Output != nil {
			entry["output"] = r.Output
		}
		if r.Error != "" {
			entry["error"] = r.Error
		}
		out[i] = entry
	}

	return &Result{Output: map[string]any{
		"branches":     out,
		"allSucceeded": allSucceeded,
	}}, nil
}

// runBranch resolves the branch action's templates independently and runs
// the built-in action dispatch. Each branch sees the same parent context.
func (h *ParallelHandler) runBranch(ctx context.Context, branch map[string]any, req Request) (any, error) {
	action, ok := branch["action"].(map[string]any)
	if !ok {
		return nil, schema.NewError(schema.ErrCodeValidation, "branch has no action config")
	}

	branchStep := req.Step
	branchStep.Config = template.ResolveTemplates(action, req.Context)

	res, err := h.action.Execute(ctx, Request{
		Step:      branchStep,
		Execution: req.Execution,
		Workflow:  req.Workflow,
		Context:   req.Context,
	})
	if err != nil {
		return nil, err
	}
	return res.Output, nil
}
