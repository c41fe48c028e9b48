package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/calder-io/flowgate/internal/template"
	"github.com/calder-io/flowgate/pkg/schema"
)

// ConditionHandler evaluates a fixed-operator comparison against the
// execution context. It never branches the execution itself; it only
// reports which branch applies.
type ConditionHandler struct{}

func NewConditionHandler() *ConditionHandler { return &ConditionHandler{} }

func (h *ConditionHandler) Type() schema.StepType { return schema.StepTypeCondition }

func (h *ConditionHandler) Execute(_ context.Context, req Request) (*Result, error) {
	cfg := req.Step.Config
	field, _ := cfg["field"].(string)
	operator, _ := cfg["operator"].(string)
	expected := cfg["value"]

	actual, found := template.Resolve(req.Context, field)
	met := evaluate(operator, actual, found, expected)

	branch := branchLabel(cfg, met)
	return &Result{Output: map[string]any{
		"conditionMet":  met,
		"field":         field,
		"operator":      operator,
		"actualValue":   actual,
		"expectedValue": expected,
		"branch":        branch,
	}}, nil
}

func branchLabel(cfg map[string]any, met bool) any {
	if met {
		if then, ok := cfg["then"]; ok {
			return then
		}
		return "true"
	}
	if els, ok := cfg["else"]; ok {
		return els
	}
	return "false"
}

// evaluate applies the operator. Unknown operators fall back to truthy.
func evaluate(operator string, actual any, found bool, expected any) bool {
	switch operator {
	case "eq", "==":
		return looseEqual(actual, expected)
	case "ne", "!=":
		return !looseEqual(actual, expected)
	case "gt", ">":
		return compareNumeric(actual, expected, func(a, b float64) bool { return a > b })
	case "gte", ">=":
		return compareNumeric(actual, expected, func(a, b float64) bool { return a >= b })
	case "lt", "<":
		return compareNumeric(actual, expected, func(a, b float64) bool { return a < b })
	case "lte", "<=":
		return compareNumeric(actual, expected, func(a, b float64) bool { return a <= b })
	case "contains":
		return contains(actual, expected)
	case "exists":
		return found && actual != nil
	case "in":
		if list, ok := expected.([]any); ok {
			for _, item := range list {
				if looseEqual(actual, item) {
					return true
				}
			}
		}
		return false
	default: // includes "truthy"
		return truthy(actual)
	}
}

// looseEqual compares two values, coercing numerics first so that 5 == 5.0.
func looseEqual(a, b any) bool {
	if an, aok := toNumber(a); aok {
		if bn, bok := toNumber(b); bok {
			return an == bn
		}
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func compareNumeric(a, b any, cmp func(a, b float64) bool) bool {
	an, aok := toNumber(a)
	bn, bok := toNumber(b)
	if !aok || !bok {
		return false
	}
	return cmp(an, bn)
}

func contains(haystack, needle any) bool {
	switch h := haystack.(type) {
	case string:
		return strings.Contains(h, stringOr(needle, ""))
	case []any:
		for _, item := range h {
			if looseEqual(item, needle) {
				return true
			}
		}
		return false
	case map[string]any:
		key, ok := needle.(string)
		if !ok {
			return false
		}
		_, exists := h[key]
		return exists
	default:
		return false
	}
}

func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case float64:
		return val != 0
	case int:
		return val != 0
	case []any:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	default:
		return true
	}
}
