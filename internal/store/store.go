package store

import "context"

// Store defines the persistence layer contract the engine depends on.
// All implementations must be safe for concurrent use.
type Store interface {
	// Workflows
	CreateWorkflow(ctx context.Context, wf *Workflow) error
	GetWorkflow(ctx context.Context, id string) (*Workflow, error)
	UpdateWorkflow(ctx context.Context, id string, update WorkflowUpdate) error
	ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*Workflow, error)

	// Executions. UpdateExecution persists the full record including the
	// step result array; it is what makes array re-scan resumption durable.
	CreateExecution(ctx context.Context, ex *Execution) error
	GetExecution(ctx context.Context, id string) (*Execution, error)
	UpdateExecution(ctx context.Context, ex *Execution) error
	ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*Execution, error)

	// Approvals
	CreateApproval(ctx context.Context, ap *PendingApproval) error
	GetApproval(ctx context.Context, id string) (*PendingApproval, error)
	UpdateApproval(ctx context.Context, ap *PendingApproval) error
	ListApprovals(ctx context.Context, filter ApprovalFilter) ([]*PendingApproval, error)

	// Event log (append-only)
	AppendEvent(ctx context.Context, event *Event) error
	ListEvents(ctx context.Context, executionID string) ([]*Event, error)

	// Maintenance
	Migrate(ctx context.Context) error

	// Lifecycle
	Close() error
}
