package store

import (
	"encoding/json"
	"time"

	"github.com/calder-io/flowgate/pkg/schema"
)

// Workflow is the persisted representation of a workflow definition,
// including the rolling statistics recomputed after each terminal execution.
type Workflow struct {
	ID          string                `json:"id"`
	OrgID       string                `json:"org_id"`
	Name        string                `json:"name"`
	Description string                `json:"description,omitempty"`
	Status      schema.WorkflowStatus `json:"status"`
	Trigger     schema.Trigger        `json:"trigger"`
	Steps       []schema.Step         `json:"steps"`
	Stats       WorkflowStats         `json:"stats"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// StepByID returns the step definition with the given ID, or nil.
func (w *Workflow) StepByID(id string) *schema.Step {
	for i := range w.Steps {
		if w.Steps[i].ID == id {
			return &w.Steps[i]
		}
	}
	return nil
}

// WorkflowStats holds the rolling statistics for a workflow.
type WorkflowStats struct {
	ExecutionCount int     `json:"execution_count"`
	SuccessRate    float64 `json:"success_rate"`
	AvgDurationMs  int64   `json:"avg_duration_ms"`
}

// Execution is one run of a workflow. StepResults is created 1:1 with
// the workflow's steps at creation time and is never resized.
type Execution struct {
	ID          string                 `json:"id"`
	WorkflowID  string                 `json:"workflow_id"`
	OrgID       string                 `json:"org_id"`
	Status      schema.ExecutionStatus `json:"status"`
	TriggeredBy string                 `json:"triggered_by"`
	Input       map[string]any         `json:"input,omitempty"`
	Output      map[string]any         `json:"output,omitempty"`
	Error       string                 `json:"error,omitempty"`
	StepResults []StepResult           `json:"step_results"`
	CreatedAt   time.Time              `json:"created_at"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	DurationMs  int64                  `json:"duration_ms,omitempty"`
}

// StepResult is the per-step execution record, mutated only by the
// orchestrator and its handlers.
type StepResult struct {
	StepID      string            `json:"step_id"`
	Status      schema.StepStatus `json:"status"`
	Output      any               `json:"output,omitempty"`
	Error       string            `json:"error,omitempty"`
	Attempts    int               `json:"attempts,omitempty"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// PendingApproval is the record created when an approval step parks an
// execution. At most one pending approval exists per parked execution.
type PendingApproval struct {
	ID          string                `json:"id"`
	OrgID       string                `json:"org_id"`
	ExecutionID string                `json:"execution_id"`
	WorkflowID  string                `json:"workflow_id"`
	StepID      string                `json:"step_id"`
	Approvers   []string              `json:"approvers"`
	RequestedBy string                `json:"requested_by"`
	Status      schema.ApprovalStatus `json:"status"`
	DecidedBy   string                `json:"decided_by,omitempty"`
	Reason      string                `json:"reason,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
	DecidedAt   *time.Time            `json:"decided_at,omitempty"`
}

// Event is an immutable entry in the execution event log.
type Event struct {
	ID          int64           `json:"id"`
	ExecutionID string          `json:"execution_id"`
	StepID      string          `json:"step_id,omitempty"`
	Type        string          `json:"event_type"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
	Sequence    int64           `json:"sequence"`
}

// --- Filter and update types ---

// WorkflowFilter specifies criteria for listing workflows.
type WorkflowFilter struct {
	OrgID       string                 `json:"org_id,omitempty"`
	Status      *schema.WorkflowStatus `json:"status,omitempty"`
	TriggerType string                 `json:"trigger_type,omitempty"`
	Limit       int                    `json:"limit,omitempty"`
}

// WorkflowUpdate specifies mutable fields of a workflow.
type WorkflowUpdate struct {
	Status *schema.WorkflowStatus `json:"status,omitempty"`
	Stats  *WorkflowStats         `json:"stats,omitempty"`
}

// ExecutionFilter specifies criteria for listing executions.
type ExecutionFilter struct {
	OrgID      string                  `json:"org_id,omitempty"`
	WorkflowID string                  `json:"workflow_id,omitempty"`
	Status     *schema.ExecutionStatus `json:"status,omitempty"`
	Limit      int                     `json:"limit,omitempty"`
}

// ApprovalFilter specifies criteria for listing approvals.
type ApprovalFilter struct {
	OrgID       string                 `json:"org_id,omitempty"`
	ExecutionID string                 `json:"execution_id,omitempty"`
	Status      *schema.ApprovalStatus `json:"status,omitempty"`
	Limit       int                    `json:"limit,omitempty"`
}
