package engine

import (
	"context"

	"github.com/calder-io/flowgate/internal/store"
	"github.com/calder-io/flowgate/pkg/schema"
)

// updateStats recomputes a workflow's rolling statistics from its
// non-running executions. Called after every terminal execution; failures
// are logged and swallowed because stats are derived data.
func (e *Engine) updateStats(ctx context.Context, workflowID string) {
	executions, err := e.store.ListExecutions(ctx, store.ExecutionFilter{WorkflowID: workflowID})
	if err != nil {
		e.logger.WarnContext(ctx, "stats recompute failed", "error", err)
		return
	}

	stats := computeStats(executions)
	if err := e.store.UpdateWorkflow(ctx, workflowID, store.WorkflowUpdate{Stats: &stats}); err != nil {
		e.logger.WarnContext(ctx, "stats update failed", "error", err)
	}
}

// computeStats derives count, success rate and mean duration over all
// non-running executions. With no settled executions the success rate
// defaults to 100 and the mean duration to 0.
func computeStats(executions []*store.Execution) store.WorkflowStats {
	var count, succeeded int
	var totalDuration int64
	for _, ex := range executions {
		if ex.Status == schema.ExecutionStatusRunning {
			continue
		}
		count++
		if ex.Status == schema.ExecutionStatusSuccess {
			succeeded++
		}
		totalDuration += ex.DurationMs
	}

	stats := store.WorkflowStats{ExecutionCount: count, SuccessRate: 100}
	if count > 0 {
		stats.SuccessRate = float64(succeeded) / float64(count) * 100
		stats.AvgDurationMs = totalDuration / int64(count)
	}
	return stats
}
