package schema

// Trigger describes how a workflow is invoked. The engine treats the
// config as opaque except for schedule triggers, which the scheduler
// reads a "cron" expression from.
type Trigger struct {
	Type   string         `json:"type"` // manual, schedule, webhook, event
	Config map[string]any `json:"config,omitempty"`
}

// TriggerSchedule is the trigger type evaluated by the scheduler.
const TriggerSchedule = "schedule"

// Step is one unit of work inside a workflow definition.
type Step struct {
	ID         string         `json:"id"`
	Name       string         `json:"name,omitempty"`
	Type       StepType       `json:"type"`
	Config     map[string]any `json:"config,omitempty"`
	NextSteps  []string       `json:"next_steps,omitempty"` // advisory; execution is linear
	OnError    ErrorPolicy    `json:"on_error,omitempty"`   // stop | continue | retry (default: stop)
	RetryCount int            `json:"retry_count,omitempty"`
}

// StepType enumerates the kinds of steps in a workflow.
type StepType string

const (
	StepTypeAction    StepType = "action"
	StepTypeCondition StepType = "condition"
	StepTypeLoop      StepType = "loop"
	StepTypeParallel  StepType = "parallel"
	StepTypeApproval  StepType = "approval"
	StepTypeDelay     StepType = "delay"
	StepTypeWebhook   StepType = "webhook"
)

// ErrorPolicy controls what the orchestrator does when a step handler fails.
type ErrorPolicy string

const (
	ErrorPolicyStop     ErrorPolicy = "stop"
	ErrorPolicyContinue ErrorPolicy = "continue"
	ErrorPolicyRetry    ErrorPolicy = "retry"
)
