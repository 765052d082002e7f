// Package scheduler runs the holiday refresh on a cron schedule while the
// server is up.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	appLog "holidaysjp/internal/log"
	"holidaysjp/internal/model"
)

// Job is one scheduled unit of work. It receives the scheduler's context,
// which is canceled on Stop.
type Job func(ctx context.Context)

type Scheduler struct {
	spec string
	job  Job
	cron *cron.Cron

	mu     sync.Mutex
	cancel context.CancelFunc
}

// New parses spec as a standard 5-field cron expression (descriptors such
// as "@hourly" are accepted too).
func New(spec string, job Job) (*Scheduler, error) {
	if job == nil {
		return nil, fmt.Errorf("%w: scheduler job is nil", model.ErrConfig)
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("%w: cron spec %q: %w", model.ErrConfig, spec, err)
	}
	return &Scheduler{
		spec: spec,
		job:  job,
		// Overlapping runs are skipped rather than queued.
		cron: cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}, nil
}

// Start begins running the job in the background. Runs stop when ctx is
// canceled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return fmt.Errorf("scheduler already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if _, err := s.cron.AddFunc(s.spec, func() { s.run(runCtx) }); err != nil {
		cancel()
		return fmt.Errorf("%w: cron spec %q: %w", model.ErrConfig, s.spec, err)
	}
	s.cancel = cancel
	s.cron.Start()
	appLog.Info("refresh scheduler started", "cron", s.spec)

	go func() {
		<-runCtx.Done()
		s.Stop()
	}()
	return nil
}

func (s *Scheduler) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	appLog.Debug("scheduled refresh firing", "cron", s.spec)
	s.job(ctx)
}

// Stop cancels in-flight work and waits for the running job to return.
// It is safe to call more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-s.cron.Stop().Done()
}
