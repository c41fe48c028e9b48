package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calder-io/flowgate/internal/store"
	"github.com/calder-io/flowgate/pkg/schema"
)

type fakeRunner struct {
	executions atomic.Int64
	lastID     atomic.Value
}

func (r *fakeRunner) Execute(_ context.Context, workflowID, _ string, _ map[string]any) (*store.Execution, error) {
	r.executions.Add(1)
	r.lastID.Store(workflowID)
	return &store.Execution{ID: "exec", WorkflowID: workflowID}, nil
}

func newTestScheduler(t *testing.T) (*Scheduler, *store.MemoryStore, *fakeRunner) {
	t.Helper()
	st := store.NewMemoryStore()
	runner := &fakeRunner{}
	s := New(st, runner, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return s, st, runner
}

func seedScheduled(t *testing.T, st store.Store, id, cronExpr string, status schema.WorkflowStatus) {
	t.Helper()
	require.NoError(t, st.CreateWorkflow(context.Background(), &store.Workflow{
		ID:     id,
		OrgID:  "org-1",
		Name:   "scheduled-" + id,
		Status: status,
		Trigger: schema.Trigger{
			Type:   schema.TriggerSchedule,
			Config: map[string]any{"cron": cronExpr},
		},
		Steps: []schema.Step{{ID: "s1", Type: schema.StepTypeAction, Config: map[string]any{"action": "log"}}},
	}))
}

func TestNextRun(t *testing.T) {
	s, _, _ := newTestScheduler(t)

	from := time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC)
	next, err := s.NextRun("0 * * * *", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC), next)
}

func TestNextRunBadExpression(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	_, err := s.NextRun("not a cron", time.Now())
	require.Error(t, err)
}

func TestTickSchedulesWithoutFiringOnFirstSighting(t *testing.T) {
	s, st, runner := newTestScheduler(t)
	seedScheduled(t, st, "wf-1", "* * * * *", schema.WorkflowStatusActive)

	s.tick(context.Background())
	assert.Equal(t, int64(0), runner.executions.Load())

	next, known := s.peekNext("wf-1")
	assert.True(t, known)
	assert.True(t, next.After(time.Now().UTC().Add(-time.Second)))
}

func TestTickFiresDueWorkflow(t *testing.T) {
	s, st, runner := newTestScheduler(t)
	seedScheduled(t, st, "wf-1", "* * * * *", schema.WorkflowStatusActive)

	// Force the stored next-run into the past.
	s.setNext("wf-1", time.Now().UTC().Add(-time.Minute))

	s.tick(context.Background())
	assert.Equal(t, int64(1), runner.executions.Load())
	assert.Equal(t, "wf-1", runner.lastID.Load())

	// After firing, the next run moved forward; another tick is a no-op.
	s.tick(context.Background())
	assert.Equal(t, int64(1), runner.executions.Load())
}

func TestTickIgnoresInactiveWorkflows(t *testing.T) {
	s, st, runner := newTestScheduler(t)
	seedScheduled(t, st, "wf-paused", "* * * * *", schema.WorkflowStatusPaused)

	s.setNext("wf-paused", time.Now().UTC().Add(-time.Minute))
	s.tick(context.Background())

	assert.Equal(t, int64(0), runner.executions.Load())
	// State for unlisted workflows is dropped.
	_, known := s.peekNext("wf-paused")
	assert.False(t, known)
}

func TestTickSkipsWorkflowWithoutCron(t *testing.T) {
	s, st, runner := newTestScheduler(t)
	require.NoError(t, st.CreateWorkflow(context.Background(), &store.Workflow{
		ID:     "wf-nocron",
		OrgID:  "org-1",
		Name:   "no-cron",
		Status: schema.WorkflowStatusActive,
		Trigger: schema.Trigger{
			Type:   schema.TriggerSchedule,
			Config: map[string]any{},
		},
		Steps: []schema.Step{{ID: "s1", Type: schema.StepTypeAction}},
	}))

	s.tick(context.Background())
	assert.Equal(t, int64(0), runner.executions.Load())
}

func TestStartStop(t *testing.T) {
	s, _, _ := newTestScheduler(t)

	require.NoError(t, s.Start(context.Background()))
	require.Error(t, s.Start(context.Background()))
	require.NoError(t, s.Stop())
	// Stop is idempotent.
	require.NoError(t, s.Stop())
}
