// Package steps contains the per-type step handlers. Handlers are looked up
// by step type in a Registry; the orchestrator never switches on step type
// itself.
package steps

import (
	"context"
	"sort"
	"sync"

	"github.com/calder-io/flowgate/internal/store"
	"github.com/calder-io/flowgate/pkg/schema"
)

// Request is the data provided to a handler for a single step invocation.
type Request struct {
	Step      schema.Step
	Execution *store.Execution
	Workflow  *store.Workflow
	// Context is the accumulated execution context: the execution input
	// plus prior step outputs keyed by step ID.
	Context map[string]any
}

// Result is the outcome of a handler invocation.
type Result struct {
	Output any
	// Await signals that the execution must park and wait for an external
	// decision before continuing. The step itself is considered done.
	Await bool
	// Skip marks the step result skipped instead of success.
	Skip bool
}

// Handler executes one step type.
type Handler interface {
	Type() schema.StepType
	Execute(ctx context.Context, req Request) (*Result, error)
}

// Pool is the bounded concurrency port handlers use for fan-out work.
// Satisfied by the engine worker pool.
type Pool interface {
	Submit(ctx context.Context, fn func(ctx context.Context) error) error
}

// Transport performs outbound HTTP-shaped calls. The default implementation
// is a no-op descriptor echo; callers wire a real transport when deliveries
// should leave the process.
type Transport interface {
	Deliver(ctx context.Context, method, url string, headers map[string]string, body []byte) error
}

// Notifier publishes notification messages to a channel (email, chat, ...).
type Notifier interface {
	Notify(ctx context.Context, channel, message string) error
}

// NopTransport is a Transport that records nothing and always succeeds.
type NopTransport struct{}

func (NopTransport) Deliver(context.Context, string, string, map[string]string, []byte) error {
	return nil
}

// NopNotifier is a Notifier that always succeeds.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, string, string) error { return nil }

// Registry is a thread-safe handler registry keyed by step type.
type Registry struct {
	mu       sync.RWMutex
	handlers map[schema.StepType]Handler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[schema.StepType]Handler),
	}
}

// Register adds a handler. Returns error on duplicate type.
func (r *Registry) Register(h Handler) error {
	if h == nil {
		return schema.NewError(schema.ErrCodeValidation, "handler is nil")
	}
	t := h.Type()
	if t == "" {
		return schema.NewError(schema.ErrCodeValidation, "handler type is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[t]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "handler for step type %q already registered", t)
	}
	r.handlers[t] = h
	return nil
}

// Get retrieves the handler for a step type.
func (r *Registry) Get(t schema.StepType) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[t]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeUnknownStepType, "no handler registered for step type %q", t)
	}
	return h, nil
}

// Has checks if a handler is registered for a step type.
func (r *Registry) Has(t schema.StepType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[t]
	return ok
}

// Types returns the registered step types, sorted.
func (r *Registry) Types() []schema.StepType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]schema.StepType, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// DefaultRegistry builds a registry with all built-in handlers wired.
// The approval handler needs the store; parallel needs the pool.
func DefaultRegistry(st store.Store, pool Pool) *Registry {
	r := NewRegistry()
	action := NewActionHandler(NopTransport{}, NopNotifier{})
	for _, h := range []Handler{
		action,
		NewConditionHandler(),
		NewLoopHandler(),
		NewParallelHandlerWith(pool, action),
		NewDelayHandler(),
		NewWebhookHandler(),
		NewApprovalHandler(st),
	} {
		// Registration of the built-in set cannot collide.
		_ = r.Register(h)
	}
	return r
}
