package schema

// Event type constants for the execution event log.
const (
	EventExecutionStarted   = "execution_started"
	EventExecutionCompleted = "execution_completed"
	EventExecutionFailed    = "execution_failed"
	EventExecutionCancelled = "execution_cancelled"
	EventExecutionSuspended = "execution_suspended"
	EventExecutionResumed   = "execution_resumed"

	EventStepStarted  = "step_started"
	EventStepFinished = "step_finished"
	EventStepFailed   = "step_failed"
	EventStepSkipped  = "step_skipped"
	EventStepRetrying = "step_retrying"

	EventApprovalRequested = "approval_requested"
	EventApprovalDecided   = "approval_decided"
)
