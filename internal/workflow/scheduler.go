package workflow

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/crestwave/acs/internal/domain"
)

// Scheduler re-triggers periodic workflows on a cron cadence so group
// members that joined after the last run still get the step applied.
type Scheduler struct {
	engine    *Engine
	workflows domain.WorkflowRepository
	cron      *cron.Cron
	log       *slog.Logger
}

func NewScheduler(engine *Engine, workflows domain.WorkflowRepository, log *slog.Logger) *Scheduler {
	return &Scheduler{
		engine:    engine,
		workflows: workflows,
		cron:      cron.New(),
		log:       log,
	}
}

// Start registers the sweep at the given cron spec (e.g. "@every 15m") and
// starts the scheduler.
func (s *Scheduler) Start(spec string) error {
	_, err := s.cron.AddFunc(spec, s.sweep)
	if err != nil {
		return err
	}
	s.cron.Start()
	s.log.Info("workflow scheduler started", "spec", spec)
	return nil
}

// Stop halts scheduling and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) sweep() {
	ctx := context.Background()
	wfs, err := s.workflows.List(ctx)
	if err != nil {
		s.log.Error("workflow sweep failed", "error", err)
		return
	}
	for _, wf := range wfs {
		if wf.Schedule != domain.SchedulePeriodic || wf.Status != domain.WorkflowActive {
			continue
		}
		started, err := s.engine.Trigger(ctx, wf.ID)
		if err != nil {
			s.log.Error("periodic workflow trigger failed", "workflow", wf.Name, "error", err)
			continue
		}
		if started > 0 {
			s.log.Info("periodic workflow swept", "workflow", wf.Name, "started", started)
		}
	}
}
