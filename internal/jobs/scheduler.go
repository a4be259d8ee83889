package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"temani/internal/services"
	"temani/internal/utils"
)

// Scheduler runs the reconciliation jobs on a shared ticker. The jobs
// are idempotent, so the cadence only bounds how stale the system can
// get, never correctness.
type Scheduler struct {
	Reconcile services.ReconcileService
	Interval  time.Duration

	mu      sync.Mutex
	done    chan struct{}
	running bool
}

// Start launches the background loop. The first cycle runs
// immediately so a restart catches up without waiting a full interval.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler sudah berjalan")
	}
	s.running = true
	s.done = make(chan struct{})
	s.mu.Unlock()

	utils.LogEvent("", "jobs", "scheduler_start", fmt.Sprintf("interval=%s", s.Interval))
	go s.loop(ctx)
	return nil
}

// Stop signals the loop to exit. Safe to call multiple times; does not
// interrupt a cycle already in progress.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	close(s.done)
	s.running = false
	utils.LogEvent("", "jobs", "scheduler_stop", "")
}

func (s *Scheduler) loop(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.RunAll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			s.RunAll(ctx)
		}
	}
}

// RunAll executes every job once, in order. A failing job is logged
// and skipped; the next tick retries it.
func (s *Scheduler) RunAll(ctx context.Context) {
	for _, name := range services.JobNames {
		started := time.Now()
		if err := s.Reconcile.Run(ctx, name); err != nil {
			utils.LogEvent("", "jobs", "job_failed", fmt.Sprintf("job=%s err=%v", name, err))
			continue
		}
		utils.LogEvent("", "jobs", "job_done",
			fmt.Sprintf("job=%s duration_ms=%d", name, time.Since(started).Milliseconds()))
	}
}
