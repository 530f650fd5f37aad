/*
scheduler.go - Fiscal year rollover scheduler

PURPOSE:
  Periodically dispatches a rollover job for every workspace so each member
  has ledger rows for the current and next fiscal year, and year-end carry
  forward is recomputed without waiting for a user edit.

DESIGN:
  - Runs a background goroutine with a configurable interval
  - Runs once immediately on start
  - Only dispatches; the jobs run wherever the Dispatcher sends them
    (inline, or the RabbitMQ consumer)
  - A failed dispatch is logged and the next workspace is tried

CONFIGURATION:
  - ABSENTIFY_SCHEDULER_INTERVAL: How often to run (default: 1 hour)
  - ABSENTIFY_SCHEDULER_ENABLED:  Whether the scheduler starts (default: true)

USAGE:
  scheduler := NewRolloverScheduler(workspaces, dispatcher, log)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: Rollover endpoint (manual trigger)
  - allowance/service.go: Rollover
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/absentify/allowance-engine/events"
	"github.com/absentify/allowance-engine/logger"
	"github.com/absentify/allowance-engine/tenant"
)

// WorkspaceLister lists every workspace. workspace.Service implements it.
type WorkspaceLister interface {
	ListWorkspaces(ctx context.Context) ([]tenant.Workspace, error)
}

// RolloverScheduler dispatches rollover jobs on a ticker.
type RolloverScheduler struct {
	Workspaces WorkspaceLister
	Dispatcher events.Dispatcher
	Interval   time.Duration
	Enabled    bool

	log    *logger.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func NewRolloverScheduler(workspaces WorkspaceLister, dispatcher events.Dispatcher, log *logger.Logger) *RolloverScheduler {
	return &RolloverScheduler{
		Workspaces: workspaces,
		Dispatcher: dispatcher,
		Interval:   time.Hour,
		Enabled:    true,
		log:        log.WithComponent("scheduler"),
	}
}

// Start begins the scheduler.
func (rs *RolloverScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.log.Info().Msg("scheduler disabled, not starting")
		return
	}
	if rs.ticker != nil {
		return
	}

	rs.ticker = time.NewTicker(rs.Interval)
	rs.stop = make(chan struct{})
	rs.wg.Add(1)
	go rs.run()

	rs.log.Info().Dur("interval", rs.Interval).Msg("scheduler started")
}

// Stop stops the scheduler and waits for an in-flight run.
func (rs *RolloverScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		close(rs.stop)
		rs.wg.Wait()
		rs.ticker = nil
		rs.log.Info().Msg("scheduler stopped")
	}
}

func (rs *RolloverScheduler) run() {
	defer rs.wg.Done()

	rs.RunNow(context.Background())

	for {
		select {
		case <-rs.ticker.C:
			rs.RunNow(context.Background())
		case <-rs.stop:
			return
		}
	}
}

// RunNow dispatches one rollover job per workspace and returns how many
// were dispatched.
func (rs *RolloverScheduler) RunNow(ctx context.Context) int {
	workspaces, err := rs.Workspaces.ListWorkspaces(ctx)
	if err != nil {
		rs.log.Error().Err(err).Msg("listing workspaces")
		return 0
	}

	dispatched := 0
	for _, ws := range workspaces {
		job := events.RolloverWorkspace(ws.ID)
		if err := rs.Dispatcher.Dispatch(ctx, job); err != nil {
			rs.log.Error().
				Err(err).
				Str("workspace_id", string(ws.ID)).
				Str("job_id", job.ID).
				Msg("dispatching rollover")
			continue
		}
		dispatched++
	}

	if dispatched > 0 {
		rs.log.Info().Int("dispatched", dispatched).Int("workspaces", len(workspaces)).Msg("rollover dispatched")
	}
	return dispatched
}
