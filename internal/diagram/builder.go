package diagram

import (
	"github.com/calder-io/flowgate/internal/store"
	"github.com/calder-io/flowgate/pkg/schema"
)

// Build constructs a Model from a workflow definition and an optional
// execution. Steps run in definition order, so the main chain follows
// that order with virtual start and end nodes. Advisory next_steps
// references become labeled extra edges when they point anywhere other
// than the immediate successor.
func Build(wf *store.Workflow, ex *store.Execution) *Model {
	model := &Model{Title: wf.Name}

	start := &Node{ID: "__start__", Label: "Start", Kind: NodeKindStart}
	model.Nodes = append(model.Nodes, start)

	results := make(map[string]*store.StepResult)
	if ex != nil {
		for i := range ex.StepResults {
			results[ex.StepResults[i].StepID] = &ex.StepResults[i]
		}
	}

	defined := make(map[string]bool, len(wf.Steps))
	for _, step := range wf.Steps {
		defined[step.ID] = true
	}

	prev := start.ID
	for i, step := range wf.Steps {
		node := &Node{
			ID:    step.ID,
			Label: stepLabel(step),
			Kind:  stepKind(step.Type),
		}
		if r, ok := results[step.ID]; ok {
			node.Status = &StatusOverlay{
				Status:     string(r.Status),
				Attempts:   r.Attempts,
				Error:      r.Error,
				DurationMs: resultDuration(r),
			}
		}
		model.Nodes = append(model.Nodes, node)
		model.Edges = append(model.Edges, Edge{From: prev, To: step.ID})

		successor := ""
		if i+1 < len(wf.Steps) {
			successor = wf.Steps[i+1].ID
		}
		for _, next := range step.NextSteps {
			if next == successor || !defined[next] {
				continue
			}
			model.Edges = append(model.Edges, Edge{From: step.ID, To: next, Label: "next"})
		}
		prev = step.ID
	}

	end := &Node{ID: "__end__", Label: "End", Kind: NodeKindEnd}
	model.Nodes = append(model.Nodes, end)
	model.Edges = append(model.Edges, Edge{From: prev, To: end.ID})

	return model
}

func stepLabel(step schema.Step) string {
	if step.Name != "" {
		return step.Name
	}
	return step.ID
}

func stepKind(t schema.StepType) NodeKind {
	switch t {
	case schema.StepTypeCondition:
		return NodeKindCondition
	case schema.StepTypeLoop:
		return NodeKindLoop
	case schema.StepTypeParallel:
		return NodeKindParallel
	case schema.StepTypeApproval:
		return NodeKindApproval
	case schema.StepTypeDelay:
		return NodeKindDelay
	case schema.StepTypeWebhook:
		return NodeKindWebhook
	default:
		return NodeKindAction
	}
}

func resultDuration(r *store.StepResult) int64 {
	if r.StartedAt == nil || r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(*r.StartedAt).Milliseconds()
}
