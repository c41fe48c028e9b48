package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/calder-io/flowgate/internal/template"
	"github.com/calder-io/flowgate/pkg/schema"
)

// ActionHandler executes action steps. It dispatches on config.action to a
// small set of built-in actions; unknown actions pass through as executed.
type ActionHandler struct {
	transport Transport
	notifier  Notifier
}

// NewActionHandler creates an ActionHandler. Transport and notifier are the
// outbound collaborators; the nop implementations keep everything in-process.
func NewActionHandler(transport Transport, notifier Notifier) *ActionHandler {
	return &ActionHandler{transport: transport, notifier: notifier}
}

func (h *ActionHandler) Type() schema.StepType { return schema.StepTypeAction }

func (h *ActionHandler) Execute(ctx context.Context, req Request) (*Result, error) {
	cfg := template.ResolveTemplates(req.Step.Config, req.Context)
	action, _ := cfg["action"].(string)

	switch action {
	case "log":
		message := stringOr(cfg["message"], "")
		slog.InfoContext(ctx, "workflow log action", "message", message, "step_id", req.Step.ID)
		return &Result{Output: map[string]any{"logged": true, "message": message}}, nil

	case "set_variable":
		name, _ := cfg["name"].(string)
		if name == "" {
			return nil, schema.NewError(schema.ErrCodeValidation, "set_variable requires a name").WithStep(req.Step.ID)
		}
		return &Result{Output: map[string]any{name: cfg["value"]}}, nil

	case "transform":
		out, err := h.transform(cfg)
		if err != nil {
			return nil, err
		}
		return &Result{Output: out}, nil

	case "notify":
		channel := stringOr(cfg["channel"], "default")
		message := stringOr(cfg["message"], "")
		if err := h.notifier.Notify(ctx, channel, message); err != nil {
			return nil, schema.NewError(schema.ErrCodeExecution, "notify failed").WithStep(req.Step.ID).WithCause(err)
		}
		return &Result{Output: map[string]any{"notified": true, "channel": channel, "message": message}}, nil

	case "http_request":
		// Placeholder response. Real network I/O goes through the transport
		// collaborator; the engine itself never dials out.
		method := strings.ToUpper(stringOr(cfg["method"], "GET"))
		url := stringOr(cfg["url"], "")
		return &Result{Output: map[string]any{
			"placeholder": true,
			"method":      method,
			"url":         url,
			"status":      200,
		}}, nil

	default:
		return &Result{Output: map[string]any{"executed": true, "action": action}}, nil
	}
}

// transform applies a data transformation to the resolved input value.
func (h *ActionHandler) transform(cfg map[string]any) (map[string]any, error) {
	kind, _ := cfg["transform"].(string)
	input := cfg["input"]

	switch kind {
	case "uppercase":
		return map[string]any{"result": strings.ToUpper(stringOr(input, ""))}, nil

	case "lowercase":
		return map[string]any{"result": strings.ToLower(stringOr(input, ""))}, nil

	case "parse_json":
		s, ok := input.(string)
		if !ok {
			// Already structured; pass through.
			return map[string]any{"result": input}, nil
		}
		var parsed any
		if err := json.Unmarshal([]byte(s), &parsed); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeExecution, "parse_json: %s", err.Error()).WithCause(err)
		}
		return map[string]any{"result": parsed}, nil

	case "stringify":
		b, err := json.Marshal(input)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeExecution, "stringify: %s", err.Error()).WithCause(err)
		}
		return map[string]any{"result": string(b)}, nil

	case "math":
		op, _ := cfg["operation"].(string)
		left, lok := toNumber(cfg["left"])
		right, rok := toNumber(cfg["right"])
		if !lok || !rok {
			return nil, schema.NewError(schema.ErrCodeValidation, "math requires numeric left and right operands")
		}
		var result float64
		switch op {
		case "add":
			result = left + right
		case "subtract":
			result = left - right
		case "multiply":
			result = left * right
		case "divide":
			// Divide by zero yields 0 rather than an error.
			if right == 0 {
				result = 0
			} else {
				result = left / right
			}
		default:
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "unknown math operation %q", op)
		}
		return map[string]any{"result": result}, nil

	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "unknown transform %q", kind)
	}
}

// stringOr converts a value to its string form, or returns def for nil.
func stringOr(v any, def string) string {
	switch s := v.(type) {
	case nil:
		return def
	case string:
		return s
	default:
		return fmt.Sprintf("%v", v)
	}
}

// toNumber coerces JSON-decoded scalars to float64.
func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
