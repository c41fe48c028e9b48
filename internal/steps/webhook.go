package steps

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/calder-io/flowgate/internal/template"
	"github.com/calder-io/flowgate/pkg/schema"
)

// WebhookHandler resolves the outbound payload and reports a delivery
// descriptor. Actual dispatch goes through the Transport collaborator;
// with the nop transport nothing leaves the process.
type WebhookHandler struct {
	transport Transport
}

func NewWebhookHandler() *WebhookHandler {
	return &WebhookHandler{transport: NopTransport{}}
}

// NewWebhookHandlerWith wires a real transport for outbound delivery.
func NewWebhookHandlerWith(transport Transport) *WebhookHandler {
	return &WebhookHandler{transport: transport}
}

func (h *WebhookHandler) Type() schema.StepType { return schema.StepTypeWebhook }

func (h *WebhookHandler) Execute(ctx context.Context, req Request) (*Result, error) {
	cfg := req.Step.Config
	method := strings.ToUpper(stringOr(cfg["method"], "POST"))
	url := stringOr(cfg["url"], "")

	headers := map[string]string{}
	headerNames := []string{}
	if raw, ok := cfg["headers"].(map[string]any); ok {
		for name, v := range raw {
			headers[name] = stringOr(v, "")
			headerNames = append(headerNames, name)
		}
		sort.Strings(headerNames)
	}

	var body []byte
	if rawBody, ok := cfg["body"].(map[string]any); ok {
		resolved := template.ResolveTemplates(rawBody, req.Context)
		b, err := json.Marshal(resolved)
		if err != nil {
			return nil, schema.NewError(schema.ErrCodeExecution, "marshal webhook body").
				WithStep(req.Step.ID).WithCause(err)
		}
		body = b
	}

	if err := h.transport.Deliver(ctx, method, url, headers, body); err != nil {
		return nil, schema.NewError(schema.ErrCodeExecution, "webhook delivery failed").
			WithStep(req.Step.ID).WithCause(err)
	}

	return &Result{Output: map[string]any{
		"method":   method,
		"url":      url,
		"headers":  headerNames,
		"bodySize": len(body),
	}}, nil
}
