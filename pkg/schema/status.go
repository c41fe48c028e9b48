package schema

// WorkflowStatus represents the lifecycle state of a workflow definition.
type WorkflowStatus string

const (
	WorkflowStatusDraft    WorkflowStatus = "draft"
	WorkflowStatusActive   WorkflowStatus = "active"
	WorkflowStatusPaused   WorkflowStatus = "paused"
	WorkflowStatusArchived WorkflowStatus = "archived"
)

// ExecutionStatus represents the lifecycle state of one workflow run.
type ExecutionStatus string

const (
	ExecutionStatusPending          ExecutionStatus = "pending"
	ExecutionStatusRunning          ExecutionStatus = "running"
	ExecutionStatusSuccess          ExecutionStatus = "success"
	ExecutionStatusFailed           ExecutionStatus = "failed"
	ExecutionStatusCancelled        ExecutionStatus = "cancelled"
	ExecutionStatusAwaitingApproval ExecutionStatus = "awaiting_approval"
)

// Terminal reports whether the execution can no longer make progress.
// awaiting_approval is not terminal: an external decision drives it
// back to running or to cancelled.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionStatusSuccess || s == ExecutionStatusFailed || s == ExecutionStatusCancelled
}

// StepStatus represents the lifecycle state of a single step result.
type StepStatus string

const (
	StepStatusPending StepStatus = "pending"
	StepStatusRunning StepStatus = "running"
	StepStatusSuccess StepStatus = "success"
	StepStatusFailed  StepStatus = "failed"
	StepStatusSkipped StepStatus = "skipped"
)

// Settled reports whether a step result is authoritative for resume
// skip-detection. Only success and skipped are settled; a failed step
// under a continue policy is re-executed on resume.
func (s StepStatus) Settled() bool {
	return s == StepStatusSuccess || s == StepStatusSkipped
}

// ApprovalStatus represents the state of a pending approval record.
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "pending"
	ApprovalStatusApproved ApprovalStatus = "approved"
	ApprovalStatusRejected ApprovalStatus = "rejected"
)

// ValidWorkflowTransitions defines the allowed status changes for workflows.
var ValidWorkflowTransitions = map[WorkflowStatus][]WorkflowStatus{
	WorkflowStatusDraft:    {WorkflowStatusActive, WorkflowStatusArchived},
	WorkflowStatusActive:   {WorkflowStatusPaused, WorkflowStatusArchived},
	WorkflowStatusPaused:   {WorkflowStatusActive, WorkflowStatusArchived},
	WorkflowStatusArchived: {},
}

// ValidExecutionTransitions defines the allowed status changes for executions.
var ValidExecutionTransitions = map[ExecutionStatus][]ExecutionStatus{
	ExecutionStatusPending:          {ExecutionStatusRunning, ExecutionStatusCancelled},
	ExecutionStatusRunning:          {ExecutionStatusSuccess, ExecutionStatusFailed, ExecutionStatusCancelled, ExecutionStatusAwaitingApproval},
	ExecutionStatusAwaitingApproval: {ExecutionStatusRunning, ExecutionStatusCancelled},
	ExecutionStatusSuccess:          {},
	ExecutionStatusFailed:           {},
	ExecutionStatusCancelled:        {},
}

// CanTransitionWorkflow reports whether from -> to is an allowed workflow transition.
func CanTransitionWorkflow(from, to WorkflowStatus) bool {
	for _, a := range ValidWorkflowTransitions[from] {
		if a == to {
			return true
		}
	}
	return false
}

// CanTransitionExecution reports whether from -> to is an allowed execution transition.
func CanTransitionExecution(from, to ExecutionStatus) bool {
	for _, a := range ValidExecutionTransitions[from] {
		if a == to {
			return true
		}
	}
	return false
}
