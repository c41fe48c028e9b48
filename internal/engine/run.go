package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/calder-io/flowgate/internal/logging"
	"github.com/calder-io/flowgate/internal/steps"
	"github.com/calder-io/flowgate/internal/store"
	"github.com/calder-io/flowgate/pkg/schema"
)

// run drives an execution to a terminal state or a suspension point. It is
// re-entrant: on resume the loop re-scans the step results and skips settled
// entries, so no saved continuation is needed. All handler failures are
// absorbed into the execution record.
func (e *Engine) run(ctx context.Context, wf *store.Workflow, ex *store.Execution) {
	execCtx := seedContext(ex)

	for i := range ex.StepResults {
		result := &ex.StepResults[i]
		if result.Status.Settled() {
			continue
		}

		step := wf.StepByID(result.StepID)
		if step == nil {
			// The definition changed under the execution. Fail this entry
			// but keep the execution going.
			now := time.Now().UTC()
			result.Status = schema.StepStatusFailed
			result.Error = fmt.Sprintf("step definition %s not found", result.StepID)
			result.CompletedAt = &now
			e.logger.WarnContext(ctx, "step definition missing", "step_id", result.StepID)
			continue
		}

		stepCtx := logging.WithStepID(ctx, step.ID)
		outcome := e.runStep(stepCtx, wf, ex, *step, result, execCtx)

		switch outcome {
		case stepAwait:
			// The approval side effects are already applied and this step's
			// result is finalized, so resumption picks up at the next one.
			ex.Status = schema.ExecutionStatusAwaitingApproval
			e.persist(ctx, ex)
			e.appendEvent(ctx, ex.ID, step.ID, schema.EventExecutionSuspended, nil)
			e.logger.InfoContext(stepCtx, "execution suspended for approval")
			return
		case stepStop:
			e.finalize(ctx, ex, schema.ExecutionStatusFailed,
				fmt.Sprintf("step %s failed: %s", step.ID, result.Error), execCtx)
			return
		case stepContinue:
			// Failed under a continue policy, or succeeded; either way the
			// loop proceeds.
			if result.Status == schema.StepStatusSuccess {
				mergeOutput(execCtx, step.ID, result.Output)
			}
		}
	}

	e.finalize(ctx, ex, schema.ExecutionStatusSuccess, "", execCtx)
}

type stepOutcome int

const (
	stepContinue stepOutcome = iota
	stepStop
	stepAwait
)

// runStep executes one step including its retry policy and stamps the
// result. The returned outcome tells the loop how to proceed.
func (e *Engine) runStep(ctx context.Context, wf *store.Workflow, ex *store.Execution, step schema.Step, result *store.StepResult, execCtx map[string]any) stepOutcome {
	started := time.Now().UTC()
	result.Status = schema.StepStatusRunning
	result.StartedAt = &started
	result.Attempts = 1
	e.appendEvent(ctx, ex.ID, step.ID, schema.EventStepStarted, nil)

	res, err := e.invoke(ctx, wf, ex, step, execCtx)

	if err != nil && step.OnError == schema.ErrorPolicyRetry && step.RetryCount > 0 {
		for attempt := 1; attempt <= step.RetryCount; attempt++ {
			e.appendEvent(ctx, ex.ID, step.ID, schema.EventStepRetrying, map[string]any{"attempt": attempt})
			e.logger.WarnContext(ctx, "retrying step", "attempt", attempt, "error", err)
			if waitErr := waitBackoff(ctx, e.backoff*time.Duration(attempt)); waitErr != nil {
				break
			}
			result.Attempts++
			res, err = e.invoke(ctx, wf, ex, step, execCtx)
			if err == nil {
				break
			}
		}
	}

	now := time.Now().UTC()
	if err != nil {
		result.Status = schema.StepStatusFailed
		result.Error = err.Error()
		result.CompletedAt = &now
		e.appendEvent(ctx, ex.ID, step.ID, schema.EventStepFailed, map[string]any{
			"error":    err.Error(),
			"attempts": result.Attempts,
		})
		if step.OnError == schema.ErrorPolicyContinue {
			e.logger.WarnContext(ctx, "step failed, continuing", "error", err)
			return stepContinue
		}
		// stop, unset, or retry exhausted.
		return stepStop
	}

	if res.Await {
		// Finalize the approval step itself before parking so resume
		// skips it instead of re-requesting approval.
		result.Status = schema.StepStatusSuccess
		result.Output = res.Output
		result.Error = ""
		result.CompletedAt = &now
		mergeOutput(execCtx, step.ID, res.Output)
		e.appendEvent(ctx, ex.ID, step.ID, schema.EventApprovalRequested, nil)
		return stepAwait
	}

	if res.Skip {
		result.Status = schema.StepStatusSkipped
		result.CompletedAt = &now
		e.appendEvent(ctx, ex.ID, step.ID, schema.EventStepSkipped, nil)
		return stepContinue
	}

	result.Status = schema.StepStatusSuccess
	result.Output = res.Output
	result.Error = ""
	result.CompletedAt = &now
	e.appendEvent(ctx, ex.ID, step.ID, schema.EventStepFinished, nil)
	return stepContinue
}

// invoke dispatches to the registered handler, converting panics into
// handler errors so one bad handler cannot take the engine down.
func (e *Engine) invoke(ctx context.Context, wf *store.Workflow, ex *store.Execution, step schema.Step, execCtx map[string]any) (res *steps.Result, err error) {
	handler, err := e.registry.Get(step.Type)
	if err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = schema.NewErrorf(schema.ErrCodeExecution, "handler panicked: %v", r).WithStep(step.ID)
		}
	}()

	res, err = handler.Execute(ctx, steps.Request{
		Step:      step,
		Execution: ex,
		Workflow:  wf,
		Context:   execCtx,
	})
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, schema.NewError(schema.ErrCodeExecution, "handler returned no result").WithStep(step.ID)
	}
	return res, nil
}

// finalize stamps the terminal state, persists, recomputes workflow stats
// and emits the terminal event.
func (e *Engine) finalize(ctx context.Context, ex *store.Execution, status schema.ExecutionStatus, errMsg string, execCtx map[string]any) {
	now := time.Now().UTC()
	ex.Status = status
	ex.Error = errMsg
	ex.CompletedAt = &now
	if ex.StartedAt != nil {
		ex.DurationMs = now.Sub(*ex.StartedAt).Milliseconds()
	}
	if status == schema.ExecutionStatusSuccess {
		ex.Output = map[string]any{"completed": true, "context": execCtx}
		e.appendEvent(ctx, ex.ID, "", schema.EventExecutionCompleted, nil)
		e.logger.InfoContext(ctx, "execution completed", "duration_ms", ex.DurationMs)
	} else {
		e.appendEvent(ctx, ex.ID, "", schema.EventExecutionFailed, map[string]any{"error": errMsg})
		e.logger.ErrorContext(ctx, "execution failed", "error", errMsg)
	}
	e.persist(ctx, ex)
	e.updateStats(ctx, ex.WorkflowID)
}

// persist saves the execution; store failures are logged, not propagated,
// because by this point the in-memory record is authoritative for the caller.
func (e *Engine) persist(ctx context.Context, ex *store.Execution) {
	if err := e.store.UpdateExecution(ctx, ex); err != nil {
		e.logger.ErrorContext(ctx, "persist execution failed", "error", err)
	}
}

// seedContext rebuilds the execution context from the input and any step
// outputs already recorded, which makes re-entry after a suspend correct.
func seedContext(ex *store.Execution) map[string]any {
	execCtx := make(map[string]any, len(ex.Input)+len(ex.StepResults))
	for k, v := range ex.Input {
		execCtx[k] = v
	}
	for _, r := range ex.StepResults {
		if r.Status == schema.StepStatusSuccess {
			mergeOutput(execCtx, r.StepID, r.Output)
		}
	}
	return execCtx
}

// mergeOutput records a step's output under its ID when it is an object.
func mergeOutput(execCtx map[string]any, stepID string, output any) {
	if m, ok := output.(map[string]any); ok {
		execCtx[stepID] = m
	}
}

// waitBackoff sleeps for the delay or returns early on context cancellation.
func waitBackoff(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
