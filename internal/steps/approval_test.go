package steps

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calder-io/flowgate/internal/store"
	"github.com/calder-io/flowgate/pkg/schema"
)

func approvalRequest(execID string) Request {
	return Request{
		Step: schema.Step{ID: "gate", Type: schema.StepTypeApproval, Config: map[string]any{
			"approvers": []any{"lead", "ops"},
		}},
		Execution: &store.Execution{
			ID:          execID,
			WorkflowID:  "wf-1",
			OrgID:       "org-1",
			TriggeredBy: "user-1",
			Status:      schema.ExecutionStatusRunning,
		},
	}
}

func TestApprovalCreatesPendingRecord(t *testing.T) {
	st := store.NewMemoryStore()
	h := NewApprovalHandler(st)
	ctx := context.Background()

	res, err := h.Execute(ctx, approvalRequest("exec-1"))
	require.NoError(t, err)
	assert.True(t, res.Await)

	out := res.Output.(map[string]any)
	assert.NotEmpty(t, out["approvalId"])
	assert.Equal(t, []string{"lead", "ops"}, out["approvers"])

	pending := schema.ApprovalStatusPending
	list, err := st.ListApprovals(ctx, store.ApprovalFilter{ExecutionID: "exec-1", Status: &pending})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "gate", list[0].StepID)
	assert.Equal(t, "user-1", list[0].RequestedBy)
}

func TestApprovalReusesPendingRecord(t *testing.T) {
	st := store.NewMemoryStore()
	h := NewApprovalHandler(st)
	ctx := context.Background()

	first, err := h.Execute(ctx, approvalRequest("exec-1"))
	require.NoError(t, err)
	second, err := h.Execute(ctx, approvalRequest("exec-1"))
	require.NoError(t, err)

	firstID := first.Output.(map[string]any)["approvalId"]
	secondID := second.Output.(map[string]any)["approvalId"]
	assert.Equal(t, firstID, secondID)

	pending := schema.ApprovalStatusPending
	list, err := st.ListApprovals(ctx, store.ApprovalFilter{ExecutionID: "exec-1", Status: &pending})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestApprovalDefaultApprovers(t *testing.T) {
	st := store.NewMemoryStore()
	h := NewApprovalHandler(st)

	req := approvalRequest("exec-1")
	req.Step.Config = map[string]any{}
	res, err := h.Execute(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, []string{"admin"}, res.Output.(map[string]any)["approvers"])
}

func TestApprovalRequiresExecution(t *testing.T) {
	h := NewApprovalHandler(store.NewMemoryStore())
	_, err := h.Execute(context.Background(), Request{
		Step: schema.Step{ID: "gate", Type: schema.StepTypeApproval},
	})
	require.Error(t, err)
}
