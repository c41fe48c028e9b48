package steps

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/calder-io/flowgate/internal/store"
	"github.com/calder-io/flowgate/pkg/schema"
)

// ApprovalHandler parks the execution behind a human decision. It is the
// only handler with execution-level side effects: it creates the pending
// approval record and returns the Await sentinel; the orchestrator then
// flips the execution to awaiting_approval.
type ApprovalHandler struct {
	store store.Store
}

func NewApprovalHandler(st store.Store) *ApprovalHandler {
	return &ApprovalHandler{store: st}
}

func (h *ApprovalHandler) Type() schema.StepType { return schema.StepTypeApproval }

func (h *ApprovalHandler) Execute(ctx context.Context, req Request) (*Result, error) {
	if req.Execution == nil {
		return nil, schema.NewError(schema.ErrCodeExecution, "approval step requires an execution record").
			WithStep(req.Step.ID)
	}

	// At most one pending approval per parked execution. If a prior run
	// already created one, reuse it rather than stacking duplicates.
	pending := schema.ApprovalStatusPending
	existing, err := h.store.ListApprovals(ctx, store.ApprovalFilter{
		ExecutionID: req.Execution.ID,
		Status:      &pending,
	})
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "list approvals").WithStep(req.Step.ID).WithCause(err)
	}

	var approval *store.PendingApproval
	if len(existing) > 0 {
		approval = existing[0]
	} else {
		approval = &store.PendingApproval{
			ID:          uuid.New().String(),
			OrgID:       req.Execution.OrgID,
			ExecutionID: req.Execution.ID,
			WorkflowID:  req.Execution.WorkflowID,
			StepID:      req.Step.ID,
			Approvers:   approverList(req.Step.Config),
			RequestedBy: req.Execution.TriggeredBy,
			Status:      schema.ApprovalStatusPending,
			CreatedAt:   time.Now().UTC(),
		}
		if err := h.store.CreateApproval(ctx, approval); err != nil {
			return nil, schema.NewError(schema.ErrCodeStore, "create approval").WithStep(req.Step.ID).WithCause(err)
		}
	}

	return &Result{
		Await: true,
		Output: map[string]any{
			"approvalId": approval.ID,
			"approvers":  approval.Approvers,
			"status":     string(approval.Status),
		},
	}, nil
}

func approverList(cfg map[string]any) []string {
	raw, ok := cfg["approvers"].([]any)
	if !ok || len(raw) == 0 {
		return []string{"admin"}
	}
	approvers := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok && s != "" {
			approvers = append(approvers, s)
		}
	}
	if len(approvers) == 0 {
		return []string{"admin"}
	}
	return approvers
}
