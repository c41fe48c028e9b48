package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/calder-io/flowgate/pkg/schema"
)

// MemoryStore is an in-memory Store implementation. It backs tests and
// embedded use; production deployments use the libSQL port.
type MemoryStore struct {
	mu         sync.RWMutex
	workflows  map[string]*Workflow
	executions map[string]*Execution
	approvals  map[string]*PendingApproval
	events     map[string][]*Event // execution ID -> ordered events
	nextEvent  int64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		workflows:  make(map[string]*Workflow),
		executions: make(map[string]*Execution),
		approvals:  make(map[string]*PendingApproval),
		events:     make(map[string][]*Event),
	}
}

// clone deep-copies a record via JSON so callers never alias stored state.
func clone[T any](src *T) *T {
	if src == nil {
		return nil
	}
	data, err := json.Marshal(src)
	if err != nil {
		cp := *src
		return &cp
	}
	dst := new(T)
	if err := json.Unmarshal(data, dst); err != nil {
		cp := *src
		return &cp
	}
	return dst
}

// --- Workflows ---

func (m *MemoryStore) CreateWorkflow(_ context.Context, wf *Workflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.workflows[wf.ID]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "workflow %s already exists", wf.ID)
	}
	m.workflows[wf.ID] = clone(wf)
	return nil
}

func (m *MemoryStore) GetWorkflow(_ context.Context, id string) (*Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	wf, ok := m.workflows[id]
	if !ok {
		return nil, nil
	}
	return clone(wf), nil
}

func (m *MemoryStore) UpdateWorkflow(_ context.Context, id string, update WorkflowUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	wf, ok := m.workflows[id]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "workflow %s not found", id)
	}
	if update.Status != nil {
		wf.Status = *update.Status
	}
	if update.Stats != nil {
		wf.Stats = *update.Stats
	}
	wf.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) ListWorkflows(_ context.Context, filter WorkflowFilter) ([]*Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Workflow
	for _, wf := range m.workflows {
		if filter.OrgID != "" && wf.OrgID != filter.OrgID {
			continue
		}
		if filter.Status != nil && wf.Status != *filter.Status {
			continue
		}
		if filter.TriggerType != "" && wf.Trigger.Type != filter.TriggerType {
			continue
		}
		out = append(out, clone(wf))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// --- Executions ---

func (m *MemoryStore) CreateExecution(_ context.Context, ex *Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.executions[ex.ID]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "execution %s already exists", ex.ID)
	}
	m.executions[ex.ID] = clone(ex)
	return nil
}

func (m *MemoryStore) GetExecution(_ context.Context, id string) (*Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ex, ok := m.executions[id]
	if !ok {
		return nil, nil
	}
	return clone(ex), nil
}

func (m *MemoryStore) UpdateExecution(_ context.Context, ex *Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.executions[ex.ID]; !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "execution %s not found", ex.ID)
	}
	m.executions[ex.ID] = clone(ex)
	return nil
}

func (m *MemoryStore) ListExecutions(_ context.Context, filter ExecutionFilter) ([]*Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Execution
	for _, ex := range m.executions {
		if filter.OrgID != "" && ex.OrgID != filter.OrgID {
			continue
		}
		if filter.WorkflowID != "" && ex.WorkflowID != filter.WorkflowID {
			continue
		}
		if filter.Status != nil && ex.Status != *filter.Status {
			continue
		}
		out = append(out, clone(ex))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// --- Approvals ---

func (m *MemoryStore) CreateApproval(_ context.Context, ap *PendingApproval) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.approvals[ap.ID]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "approval %s already exists", ap.ID)
	}
	m.approvals[ap.ID] = clone(ap)
	return nil
}

func (m *MemoryStore) GetApproval(_ context.Context, id string) (*PendingApproval, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ap, ok := m.approvals[id]
	if !ok {
		return nil, nil
	}
	return clone(ap), nil
}

func (m *MemoryStore) UpdateApproval(_ context.Context, ap *PendingApproval) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.approvals[ap.ID]; !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "approval %s not found", ap.ID)
	}
	m.approvals[ap.ID] = clone(ap)
	return nil
}

func (m *MemoryStore) ListApprovals(_ context.Context, filter ApprovalFilter) ([]*PendingApproval, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*PendingApproval
	for _, ap := range m.approvals {
		if filter.OrgID != "" && ap.OrgID != filter.OrgID {
			continue
		}
		if filter.ExecutionID != "" && ap.ExecutionID != filter.ExecutionID {
			continue
		}
		if filter.Status != nil && ap.Status != *filter.Status {
			continue
		}
		out = append(out, clone(ap))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// --- Event log ---

func (m *MemoryStore) AppendEvent(_ context.Context, event *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextEvent++
	event.ID = m.nextEvent
	event.Sequence = int64(len(m.events[event.ExecutionID]) + 1)
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	m.events[event.ExecutionID] = append(m.events[event.ExecutionID], clone(event))
	return nil
}

func (m *MemoryStore) ListEvents(_ context.Context, executionID string) ([]*Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	evs := m.events[executionID]
	out := make([]*Event, 0, len(evs))
	for _, ev := range evs {
		out = append(out, clone(ev))
	}
	return out, nil
}

// Migrate is a no-op for the in-memory store.
func (m *MemoryStore) Migrate(context.Context) error { return nil }

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error { return nil }
