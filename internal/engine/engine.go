// Package engine drives workflow executions: it owns the orchestrator loop,
// the error policy, the approval suspend/resume protocol and the per-workflow
// statistics.
package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/calder-io/flowgate/internal/logging"
	"github.com/calder-io/flowgate/internal/steps"
	"github.com/calder-io/flowgate/internal/store"
	"github.com/calder-io/flowgate/internal/validation"
	"github.com/calder-io/flowgate/pkg/schema"
)

// Config tunes engine behaviour.
type Config struct {
	// RetryBackoffBase is multiplied by the attempt index for retry waits.
	// Zero means the 1s default; tests shrink it.
	RetryBackoffBase time.Duration
	// WorkerPoolSize caps concurrent parallel-step branches. Zero means 10.
	WorkerPoolSize int
	Logger         *slog.Logger
}

// Engine is the workflow execution engine facade.
type Engine struct {
	store     store.Store
	registry  *steps.Registry
	validator *validation.WorkflowValidator
	pool      *WorkerPool
	logger    *slog.Logger
	backoff   time.Duration

	// resumeMu guards resumeLocks; each execution gets its own mutex so
	// resume calls are serialized per execution ID.
	resumeMu    sync.Mutex
	resumeLocks map[string]*sync.Mutex
}

// New creates an Engine. When registry is nil the default handler set is
// wired against the given store and the engine's own worker pool.
func New(st store.Store, registry *steps.Registry, cfg Config) (*Engine, error) {
	validator, err := validation.NewWorkflowValidator()
	if err != nil {
		return nil, err
	}

	backoff := cfg.RetryBackoffBase
	if backoff <= 0 {
		backoff = time.Second
	}
	poolSize := cfg.WorkerPoolSize
	if poolSize <= 0 {
		poolSize = 10
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		store:       st,
		validator:   validator,
		pool:        NewWorkerPool(poolSize),
		logger:      logger,
		backoff:     backoff,
		resumeLocks: make(map[string]*sync.Mutex),
	}
	if registry == nil {
		registry = steps.DefaultRegistry(st, e.pool)
	}
	e.registry = registry
	return e, nil
}

// Shutdown drains the worker pool.
func (e *Engine) Shutdown() {
	e.pool.Shutdown()
}

// Pool exposes the engine's worker pool for handler wiring.
func (e *Engine) Pool() *WorkerPool { return e.pool }

// CreateWorkflow validates and persists a new workflow definition.
// Missing identity and lifecycle fields are filled in.
func (e *Engine) CreateWorkflow(ctx context.Context, wf *store.Workflow) (*store.Workflow, error) {
	if wf == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "workflow is nil")
	}
	if wf.ID == "" {
		wf.ID = uuid.New().String()
	}
	if wf.Status == "" {
		wf.Status = schema.WorkflowStatusDraft
	}
	if wf.Trigger.Type == "" {
		wf.Trigger.Type = "manual"
	}
	now := time.Now().UTC()
	wf.CreatedAt = now
	wf.UpdatedAt = now
	wf.Stats = store.WorkflowStats{SuccessRate: 100}

	if err := e.validator.ValidateWorkflow(wf); err != nil {
		return nil, err
	}
	if err := e.store.CreateWorkflow(ctx, wf); err != nil {
		return nil, err
	}

	e.logger.InfoContext(logging.WithWorkflowID(ctx, wf.ID), "workflow created",
		"name", wf.Name, "steps", len(wf.Steps))
	return wf, nil
}

// SetWorkflowStatus applies a transition-table-checked status change.
func (e *Engine) SetWorkflowStatus(ctx context.Context, id string, status schema.WorkflowStatus) error {
	wf, err := e.store.GetWorkflow(ctx, id)
	if err != nil {
		return schema.NewError(schema.ErrCodeStore, "load workflow").WithCause(err)
	}
	if wf == nil {
		return schema.NewErrorf(schema.ErrCodeWorkflowNotFound, "workflow %s not found", id)
	}
	if !schema.CanTransitionWorkflow(wf.Status, status) {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"cannot transition workflow from %s to %s", wf.Status, status)
	}
	return e.store.UpdateWorkflow(ctx, id, store.WorkflowUpdate{Status: &status})
}

// Execute runs a workflow. The returned execution record reflects the state
// at return time: terminal, or awaiting_approval when an approval step
// parked it. Handler failures never surface as an error here; they are
// visible on the execution's status and error fields.
func (e *Engine) Execute(ctx context.Context, workflowID, triggeredBy string, input map[string]any) (*store.Execution, error) {
	wf, err := e.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "load workflow").WithCause(err)
	}
	if wf == nil {
		return nil, schema.NewErrorf(schema.ErrCodeWorkflowNotFound, "workflow %s not found", workflowID)
	}
	if wf.Status != schema.WorkflowStatusActive {
		return nil, schema.NewErrorf(schema.ErrCodeWorkflowNotActive,
			"workflow %s is %s, not active", workflowID, wf.Status)
	}

	now := time.Now().UTC()
	results := make([]store.StepResult, len(wf.Steps))
	for i, step := range wf.Steps {
		results[i] = store.StepResult{StepID: step.ID, Status: schema.StepStatusPending}
	}

	ex := &store.Execution{
		ID:          uuid.New().String(),
		WorkflowID:  wf.ID,
		OrgID:       wf.OrgID,
		Status:      schema.ExecutionStatusRunning,
		TriggeredBy: triggeredBy,
		Input:       input,
		StepResults: results,
		CreatedAt:   now,
		StartedAt:   &now,
	}
	if err := e.store.CreateExecution(ctx, ex); err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "create execution").WithCause(err)
	}
	e.appendEvent(ctx, ex.ID, "", schema.EventExecutionStarted, map[string]any{
		"workflow_id":  wf.ID,
		"triggered_by": triggeredBy,
	})

	ctx = logging.WithIDs(ctx, wf.ID, ex.ID, "")
	e.run(ctx, wf, ex)
	return ex, nil
}

// GetExecution returns an execution by ID, or ExecutionNotFound.
func (e *Engine) GetExecution(ctx context.Context, id string) (*store.Execution, error) {
	ex, err := e.store.GetExecution(ctx, id)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "load execution").WithCause(err)
	}
	if ex == nil {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "execution %s not found", id)
	}
	return ex, nil
}

// ListExecutions returns the executions for an organization, newest first.
func (e *Engine) ListExecutions(ctx context.Context, orgID string, limit int) ([]*store.Execution, error) {
	return e.store.ListExecutions(ctx, store.ExecutionFilter{OrgID: orgID, Limit: limit})
}

// PendingApprovals returns the undecided approvals for an organization.
func (e *Engine) PendingApprovals(ctx context.Context, orgID string) ([]*store.PendingApproval, error) {
	pending := schema.ApprovalStatusPending
	return e.store.ListApprovals(ctx, store.ApprovalFilter{OrgID: orgID, Status: &pending})
}

// ProcessApproval records an approval decision. Approved resumes the parked
// execution; rejected cancels it. Resume calls are serialized per execution
// so two simultaneous decisions cannot interleave the orchestrator.
func (e *Engine) ProcessApproval(ctx context.Context, approvalID string, approved bool, decidedBy, reason string) (*store.PendingApproval, error) {
	approval, err := e.store.GetApproval(ctx, approvalID)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "load approval").WithCause(err)
	}
	if approval == nil {
		return nil, schema.NewErrorf(schema.ErrCodeApprovalNotFound, "approval %s not found", approvalID)
	}

	lock := e.resumeLock(approval.ExecutionID)
	lock.Lock()
	defer lock.Unlock()

	// Re-read under the lock; a concurrent decision may have landed.
	approval, err = e.store.GetApproval(ctx, approvalID)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "load approval").WithCause(err)
	}
	if approval == nil {
		return nil, schema.NewErrorf(schema.ErrCodeApprovalNotFound, "approval %s not found", approvalID)
	}
	if approval.Status != schema.ApprovalStatusPending {
		return nil, schema.NewErrorf(schema.ErrCodeConflict,
			"approval %s already %s", approvalID, approval.Status)
	}

	now := time.Now().UTC()
	if approved {
		approval.Status = schema.ApprovalStatusApproved
	} else {
		approval.Status = schema.ApprovalStatusRejected
	}
	approval.DecidedBy = decidedBy
	approval.Reason = reason
	approval.DecidedAt = &now
	if err := e.store.UpdateApproval(ctx, approval); err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "update approval").WithCause(err)
	}
	e.appendEvent(ctx, approval.ExecutionID, approval.StepID, schema.EventApprovalDecided, map[string]any{
		"approval_id": approval.ID,
		"approved":    approved,
		"decided_by":  decidedBy,
	})

	ex, err := e.store.GetExecution(ctx, approval.ExecutionID)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "load execution").WithCause(err)
	}
	if ex == nil {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "execution %s not found", approval.ExecutionID)
	}

	ctx = logging.WithIDs(ctx, ex.WorkflowID, ex.ID, approval.StepID)
	if !approved {
		ex.Status = schema.ExecutionStatusCancelled
		ex.Error = "approval rejected: " + reason
		ex.CompletedAt = &now
		if ex.StartedAt != nil {
			ex.DurationMs = now.Sub(*ex.StartedAt).Milliseconds()
		}
		if err := e.store.UpdateExecution(ctx, ex); err != nil {
			return nil, schema.NewError(schema.ErrCodeStore, "update execution").WithCause(err)
		}
		e.appendEvent(ctx, ex.ID, "", schema.EventExecutionCancelled, map[string]any{"reason": reason})
		e.updateStats(ctx, ex.WorkflowID)
		e.logger.InfoContext(ctx, "execution cancelled by rejection", "decided_by", decidedBy)
		return approval, nil
	}

	wf, err := e.store.GetWorkflow(ctx, ex.WorkflowID)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "load workflow").WithCause(err)
	}
	if wf == nil {
		return nil, schema.NewErrorf(schema.ErrCodeWorkflowNotFound, "workflow %s not found", ex.WorkflowID)
	}

	ex.Status = schema.ExecutionStatusRunning
	if err := e.store.UpdateExecution(ctx, ex); err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "update execution").WithCause(err)
	}
	e.appendEvent(ctx, ex.ID, "", schema.EventExecutionResumed, map[string]any{"approval_id": approval.ID})
	e.logger.InfoContext(ctx, "execution resumed after approval", "decided_by", decidedBy)

	e.run(ctx, wf, ex)
	return approval, nil
}

// resumeLock returns the per-execution mutex, creating it on first use.
func (e *Engine) resumeLock(executionID string) *sync.Mutex {
	e.resumeMu.Lock()
	defer e.resumeMu.Unlock()
	lock, ok := e.resumeLocks[executionID]
	if !ok {
		lock = &sync.Mutex{}
		e.resumeLocks[executionID] = lock
	}
	return lock
}

// appendEvent writes an audit event. Event log failures are logged and
// swallowed; the audit trail never blocks execution progress.
func (e *Engine) appendEvent(ctx context.Context, executionID, stepID, eventType string, payload map[string]any) {
	var raw json.RawMessage
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			raw = b
		}
	}
	err := e.store.AppendEvent(ctx, &store.Event{
		ExecutionID: executionID,
		StepID:      stepID,
		Type:        eventType,
		Payload:     raw,
		Timestamp:   time.Now().UTC(),
	})
	if err != nil {
		e.logger.WarnContext(ctx, "append event failed", "event_type", eventType, "error", err)
	}
}
