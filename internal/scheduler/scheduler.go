// Package scheduler triggers schedule-type workflows on their cron
// expressions. Next-run times are kept in memory and recomputed on start,
// so a restart never replays missed windows.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/calder-io/flowgate/internal/store"
	"github.com/calder-io/flowgate/pkg/schema"
)

// Runner is the interface the scheduler drives workflows through.
// Satisfied by the engine (kept narrow to avoid an import cycle).
type Runner interface {
	Execute(ctx context.Context, workflowID, triggeredBy string, input map[string]any) (*store.Execution, error)
}

// Scheduler polls active schedule-triggered workflows and executes the due ones.
type Scheduler struct {
	store  store.Store
	runner Runner
	parser cron.Parser
	logger *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	// nextRuns maps workflow ID to its computed next fire time.
	nextMu   sync.Mutex
	nextRuns map[string]time.Time

	inflightMu sync.Mutex
	inflight   map[string]struct{}

	interval time.Duration
}

// New creates a Scheduler polling once per minute.
func New(s store.Store, runner Runner, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:    s,
		runner:   runner,
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		logger:   logger,
		nextRuns: make(map[string]time.Time),
		inflight: make(map[string]struct{}),
		interval: time.Minute,
	}
}

// Start launches the background polling loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(loopCtx)
	s.logger.Info("scheduler started")
	return nil
}

// Stop shuts the polling loop down and waits for it to exit.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil
	s.logger.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick evaluates every active schedule-triggered workflow once.
func (s *Scheduler) tick(ctx context.Context) {
	active := schema.WorkflowStatusActive
	workflows, err := s.store.ListWorkflows(ctx, store.WorkflowFilter{
		Status:      &active,
		TriggerType: schema.TriggerSchedule,
	})
	if err != nil {
		s.logger.Error("list scheduled workflows", slog.String("error", err.Error()))
		return
	}

	now := time.Now().UTC()
	seen := make(map[string]struct{}, len(workflows))
	for _, wf := range workflows {
		seen[wf.ID] = struct{}{}
		expr, _ := wf.Trigger.Config["cron"].(string)
		if expr == "" {
			continue
		}

		next, known := s.peekNext(wf.ID)
		if !known {
			// First sighting: schedule forward from now, don't fire.
			if n, err := s.NextRun(expr, now); err == nil {
				s.setNext(wf.ID, n)
			} else {
				s.logger.Warn("bad cron expression",
					slog.String("workflow_id", wf.ID),
					slog.String("cron", expr),
					slog.String("error", err.Error()))
			}
			continue
		}
		if next.After(now) {
			continue
		}

		if !s.tryAcquire(wf.ID) {
			continue
		}
		s.fire(ctx, wf)
		s.release(wf.ID)

		if n, err := s.NextRun(expr, now); err == nil {
			s.setNext(wf.ID, n)
		}
	}

	// Forget workflows that went inactive or lost their schedule trigger.
	s.nextMu.Lock()
	for id := range s.nextRuns {
		if _, ok := seen[id]; !ok {
			delete(s.nextRuns, id)
		}
	}
	s.nextMu.Unlock()
}

// fire runs one due workflow. Execution failures surface on the execution
// record; only engine-level refusals are logged here.
func (s *Scheduler) fire(ctx context.Context, wf *store.Workflow) {
	s.logger.Info("firing scheduled workflow",
		slog.String("workflow_id", wf.ID),
		slog.String("name", wf.Name))

	input, _ := wf.Trigger.Config["input"].(map[string]any)
	if _, err := s.runner.Execute(ctx, wf.ID, "scheduler", input); err != nil {
		s.logger.Error("scheduled execution refused",
			slog.String("workflow_id", wf.ID),
			slog.String("error", err.Error()))
	}
}

// NextRun computes the next fire time for a cron expression.
func (s *Scheduler) NextRun(expr string, from time.Time) (time.Time, error) {
	schedule, err := s.parser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", expr, err)
	}
	return schedule.Next(from), nil
}

func (s *Scheduler) peekNext(id string) (time.Time, bool) {
	s.nextMu.Lock()
	defer s.nextMu.Unlock()
	t, ok := s.nextRuns[id]
	return t, ok
}

func (s *Scheduler) setNext(id string, t time.Time) {
	s.nextMu.Lock()
	defer s.nextMu.Unlock()
	s.nextRuns[id] = t
}

func (s *Scheduler) tryAcquire(id string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, ok := s.inflight[id]; ok {
		return false
	}
	s.inflight[id] = struct{}{}
	return true
}

func (s *Scheduler) release(id string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, id)
}
