package steps

import (
	"context"
	"time"

	"github.com/calder-io/flowgate/pkg/schema"
)

const (
	defaultDelayMs = 1000
	maxDelayMs     = 300000
)

// DelayHandler sleeps for the configured duration, clamped to a hard
// ceiling. The sleep honours context cancellation.
type DelayHandler struct{}

func NewDelayHandler() *DelayHandler { return &DelayHandler{} }

func (h *DelayHandler) Type() schema.StepType { return schema.StepTypeDelay }

func (h *DelayHandler) Execute(ctx context.Context, req Request) (*Result, error) {
	requested := int64(defaultDelayMs)
	if n, ok := toNumber(req.Step.Config["durationMs"]); ok {
		requested = int64(n)
	}

	actual := requested
	if actual > maxDelayMs {
		actual = maxDelayMs
	}
	if actual < 0 {
		actual = 0
	}

	timer := time.NewTimer(time.Duration(actual) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return nil, schema.NewError(schema.ErrCodeCancelled, "delay interrupted").
			WithStep(req.Step.ID).WithCause(ctx.Err())
	}

	return &Result{Output: map[string]any{
		"delayed":     true,
		"requestedMs": requested,
		"actualMs":    actual,
	}}, nil
}
