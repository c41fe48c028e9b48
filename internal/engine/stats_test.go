package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calder-io/flowgate/internal/store"
	"github.com/calder-io/flowgate/pkg/schema"
)

func TestComputeStatsEmpty(t *testing.T) {
	stats := computeStats(nil)
	assert.Equal(t, 0, stats.ExecutionCount)
	assert.Equal(t, float64(100), stats.SuccessRate)
	assert.Equal(t, int64(0), stats.AvgDurationMs)
}

func TestComputeStatsIgnoresRunning(t *testing.T) {
	stats := computeStats([]*store.Execution{
		{Status: schema.ExecutionStatusSuccess, DurationMs: 100},
		{Status: schema.ExecutionStatusRunning},
		{Status: schema.ExecutionStatusFailed, DurationMs: 300},
	})

	assert.Equal(t, 2, stats.ExecutionCount)
	assert.Equal(t, float64(50), stats.SuccessRate)
	assert.Equal(t, int64(200), stats.AvgDurationMs)
}

func TestComputeStatsAllSucceeded(t *testing.T) {
	stats := computeStats([]*store.Execution{
		{Status: schema.ExecutionStatusSuccess, DurationMs: 10},
		{Status: schema.ExecutionStatusSuccess, DurationMs: 30},
	})

	assert.Equal(t, float64(100), stats.SuccessRate)
	assert.Equal(t, int64(20), stats.AvgDurationMs)
}

func TestStatsUpdatedAfterExecution(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()
	wf := createActiveWorkflow(t, e,
		schema.Step{ID: "s1", Type: schema.StepTypeAction, Config: map[string]any{"action": "log"}},
	)

	_, err := e.Execute(ctx, wf.ID, "user-1", nil)
	require.NoError(t, err)

	stored, err := st.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Stats.ExecutionCount)
	assert.Equal(t, float64(100), stored.Stats.SuccessRate)
}

func TestStatsCountsCancellations(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()
	wf := createActiveWorkflow(t, e,
		schema.Step{ID: "gate", Type: schema.StepTypeApproval, Config: map[string]any{}},
	)

	_, err := e.Execute(ctx, wf.ID, "user-1", nil)
	require.NoError(t, err)

	approvals, err := e.PendingApprovals(ctx, "org-1")
	require.NoError(t, err)
	require.Len(t, approvals, 1)
	_, err = e.ProcessApproval(ctx, approvals[0].ID, false, "admin", "no")
	require.NoError(t, err)

	stored, err := st.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Stats.ExecutionCount)
	assert.Equal(t, float64(0), stored.Stats.SuccessRate)
}
