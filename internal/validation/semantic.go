package validation

import (
	"encoding/json"

	"github.com/calder-io/flowgate/internal/store"
	"github.com/calder-io/flowgate/pkg/schema"
)

func marshalJSON(v any) ([]byte, error) { return json.Marshal(v) }

// ValidateWorkflow runs the full validation pipeline on a workflow record:
// JSON Schema first, then the semantic rules the schema cannot express.
func (v *WorkflowValidator) ValidateWorkflow(wf *store.Workflow) error {
	if wf == nil {
		return schema.NewError(schema.ErrCodeValidation, "workflow is nil")
	}

	doc := map[string]any{}
	b, err := json.Marshal(wf)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize workflow").WithCause(err)
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize workflow").WithCause(err)
	}
	if err := v.Validate(doc); err != nil {
		return err
	}

	return checkSemantics(wf)
}

// checkSemantics enforces the rules JSON Schema cannot express.
func checkSemantics(wf *store.Workflow) error {
	result := &schema.ValidationResult{}

	seen := make(map[string]struct{}, len(wf.Steps))
	for _, step := range wf.Steps {
		if _, exists := seen[step.ID]; exists {
			result.AddError("steps", "duplicate_step_id", "duplicate step id "+step.ID)
		}
		seen[step.ID] = struct{}{}
	}

	for _, step := range wf.Steps {
		if step.OnError == schema.ErrorPolicyRetry && step.RetryCount <= 0 {
			result.AddError("steps."+step.ID, "invalid_retry", "retry policy requires retry_count > 0")
		}
		for _, next := range step.NextSteps {
			if _, exists := seen[next]; !exists {
				result.AddWarning("steps."+step.ID, "unknown_next_step", "next_steps references unknown step "+next)
			}
		}
	}

	return result.Err()
}
