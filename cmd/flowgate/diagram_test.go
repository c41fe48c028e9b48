package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calder-io/flowgate/internal/store"
	"github.com/calder-io/flowgate/pkg/schema"
)

func seedDiagramFixtures(t *testing.T) *store.MemoryStore {
	t.Helper()
	st := store.NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, st.CreateWorkflow(ctx, &store.Workflow{
		ID:   "wf-1",
		Name: "Fulfillment",
		Steps: []schema.Step{
			{ID: "check", Name: "Check Stock", Type: schema.StepTypeCondition},
			{ID: "ship", Type: schema.StepTypeAction},
		},
	}))
	require.NoError(t, st.CreateExecution(ctx, &store.Execution{
		ID:         "ex-1",
		WorkflowID: "wf-1",
		StepResults: []store.StepResult{
			{StepID: "check", Status: schema.StepStatusSuccess},
			{StepID: "ship", Status: schema.StepStatusFailed, Error: "carrier down"},
		},
	}))
	return st
}

func TestRenderWorkflowDiagramMermaid(t *testing.T) {
	st := seedDiagramFixtures(t)

	out, err := renderWorkflowDiagram(context.Background(), st, "wf-1", "", "mermaid")
	require.NoError(t, err)
	assert.Contains(t, out, "graph TD")
	assert.Contains(t, out, `check{"Check Stock"}`)
}

func TestRenderWorkflowDiagramASCIIWithExecution(t *testing.T) {
	st := seedDiagramFixtures(t)

	out, err := renderWorkflowDiagram(context.Background(), st, "wf-1", "ex-1", "ascii")
	require.NoError(t, err)
	assert.Contains(t, out, "=== Fulfillment ===")
	assert.Contains(t, out, "[OK]")
	assert.Contains(t, out, "[FAIL]")
}

func TestRenderWorkflowDiagramErrors(t *testing.T) {
	st := seedDiagramFixtures(t)
	ctx := context.Background()

	_, err := renderWorkflowDiagram(ctx, st, "nope", "", "ascii")
	assert.ErrorContains(t, err, "workflow nope not found")

	_, err = renderWorkflowDiagram(ctx, st, "wf-1", "nope", "ascii")
	assert.ErrorContains(t, err, "execution nope not found")

	_, err = renderWorkflowDiagram(ctx, st, "wf-1", "", "svg")
	assert.ErrorContains(t, err, "unknown format")
}

func TestRenderWorkflowDiagramRejectsForeignExecution(t *testing.T) {
	st := seedDiagramFixtures(t)
	ctx := context.Background()
	require.NoError(t, st.CreateWorkflow(ctx, &store.Workflow{ID: "wf-2", Name: "Other"}))
	require.NoError(t, st.CreateExecution(ctx, &store.Execution{ID: "ex-2", WorkflowID: "wf-2"}))

	_, err := renderWorkflowDiagram(ctx, st, "wf-1", "ex-2", "ascii")
	assert.ErrorContains(t, err, "does not belong")
}
