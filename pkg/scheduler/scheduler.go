// Package scheduler fires time-based workflows from their cron schedules.
//
// A single sweep runs every interval: each active schedule whose next run is due fires the
// engine with a time_based event and gets its next run recomputed from its cron expression.
// A schedule only counts as fired when the engine opened at least one execution.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/autorules/pkg/eventbus"
	"github.com/dukex/autorules/pkg/events"
	"github.com/dukex/autorules/pkg/lock"
	"github.com/dukex/autorules/pkg/models"
	"github.com/dukex/autorules/pkg/persistence"
)

const (
	DefaultInterval = time.Minute

	// FallbackDelay pushes a schedule with a malformed cron expression out by a day.
	FallbackDelay = 24 * time.Hour

	sweepLockKey = "scheduler:sweep"
)

// Trigger is the engine entry point the scheduler drives. Fire returns the executions it
// opened.
type Trigger interface {
	Fire(ctx context.Context, entityType, entityID string, tctx models.TriggerContext) []*models.Execution
}

// Store is the storage the scheduler reads schedules and their workflows from.
type Store interface {
	persistence.ScheduleStore
	GetWorkflow(ctx context.Context, id string) (*models.Workflow, error)
}

type Scheduler struct {
	store     Store
	trigger   Trigger
	logger    *slog.Logger
	locker    lock.Locker
	publisher eventbus.EventPublisher
	interval  time.Duration
	now       func() time.Time

	mu      sync.Mutex
	started bool
	ticker  *time.Ticker
	done    chan struct{}
	loop    sync.WaitGroup
}

type Option func(*Scheduler)

func WithInterval(interval time.Duration) Option {
	return func(s *Scheduler) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// WithLocker guards each sweep. The lock expires after one interval.
func WithLocker(locker lock.Locker) Option {
	return func(s *Scheduler) {
		if locker != nil {
			s.locker = locker
		}
	}
}

// WithPublisher emits a schedule.fired event for every fired schedule.
func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(s *Scheduler) {
		s.publisher = publisher
	}
}

func New(store Store, trigger Trigger, logger *slog.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Scheduler{
		store:    store,
		trigger:  trigger,
		logger:   logger.With("module", "scheduler"),
		locker:   lock.Noop{},
		interval: DefaultInterval,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start begins sweeping every interval until Stop is called or ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.ticker = time.NewTicker(s.interval)
	s.done = make(chan struct{})
	s.started = true

	s.loop.Add(1)

	go s.poll(ctx, s.ticker, s.done)

	s.logger.Info("Scheduler started", "interval", s.interval)

	return nil
}

// Stop ends the sweep loop and waits for a running sweep to finish.
func (s *Scheduler) Stop(_ context.Context) error {
	s.mu.Lock()

	if !s.started {
		s.mu.Unlock()

		return nil
	}

	s.ticker.Stop()
	close(s.done)
	s.started = false
	s.mu.Unlock()

	s.loop.Wait()
	s.logger.Info("Scheduler stopped")

	return nil
}

func (s *Scheduler) poll(ctx context.Context, ticker *time.Ticker, done <-chan struct{}) {
	defer s.loop.Done()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.ProcessDueSchedules(ctx)
		}
	}
}

// ProcessDueSchedules runs one sweep and returns how many schedules fired.
func (s *Scheduler) ProcessDueSchedules(ctx context.Context) int {
	release, acquired, err := s.locker.TryLock(ctx, sweepLockKey, s.interval)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to acquire sweep lock", "error", err)

		return 0
	}

	if !acquired {
		s.logger.DebugContext(ctx, "Sweep skipped, another scheduler holds the lock")

		return 0
	}

	defer func() {
		if err := release(ctx); err != nil {
			s.logger.WarnContext(ctx, "Failed to release sweep lock", "error", err)
		}
	}()

	now := s.now().UTC()

	schedules, err := s.store.GetActiveWorkflowSchedules(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to get active schedules", "error", err)

		return 0
	}

	fired := 0

	for _, schedule := range schedules {
		if schedule == nil || !schedule.IsDue(now) {
			continue
		}

		if s.fire(ctx, schedule, now) {
			fired++
		}
	}

	if fired > 0 {
		s.logger.InfoContext(ctx, "Processed due schedules", "fired", fired)
	}

	return fired
}

// fire drives the engine for one due schedule and moves it to its next run. The next run
// is written even when the workflow cannot be loaded so a broken schedule does not re-fire
// on every sweep.
func (s *Scheduler) fire(ctx context.Context, schedule *models.Schedule, now time.Time) (fired bool) {
	logger := s.logger.With("schedule_id", schedule.ID, "workflow_id", schedule.WorkflowID)

	defer func() {
		if r := recover(); r != nil {
			logger.ErrorContext(ctx, "Schedule processing panicked", "panic", fmt.Sprint(r))

			fired = false
		}
	}()

	workflow, err := s.store.GetWorkflow(ctx, schedule.WorkflowID)

	switch {
	case err != nil:
		logger.ErrorContext(ctx, "Failed to load scheduled workflow", "error", err)
	case !workflow.IsActive():
		logger.DebugContext(ctx, "Scheduled workflow is inactive")
	default:
		logger.InfoContext(ctx, "Firing schedule", "cron_expression", schedule.CronExpression)

		executions := s.trigger.Fire(ctx, workflow.EntityType, "schedule:"+schedule.ID, models.TriggerContext{
			EventType: models.EventTypeTimeBased,
			Entity: map[string]any{
				"scheduleId":  schedule.ID,
				"workflowId":  schedule.WorkflowID,
				"scheduledAt": now.Format(time.RFC3339),
			},
		})

		fired = len(executions) > 0
		if !fired {
			logger.DebugContext(ctx, "No workflow ran for schedule")
		}
	}

	next := s.NextRun(schedule.CronExpression, now)

	_, err = s.store.UpdateWorkflowSchedule(ctx, schedule.ID, models.ScheduleUpdate{
		LastRunAt: now,
		NextRunAt: next,
	})
	if err != nil {
		logger.ErrorContext(ctx, "Failed to update schedule", "error", err)
	} else {
		logger.DebugContext(ctx, "Schedule updated", "next_run_at", next)
	}

	if fired && s.publisher != nil {
		err := s.publisher.Publish(ctx, schedule.WorkflowID, events.ScheduleFired{
			BaseEvent:      events.NewBaseEvent(events.ScheduleFiredEvent, schedule.WorkflowID),
			ScheduleID:     schedule.ID,
			CronExpression: schedule.CronExpression,
			FiredAt:        now,
			NextRunAt:      next,
		})
		if err != nil {
			logger.WarnContext(ctx, "Failed to publish schedule event", "error", err)
		}
	}

	return fired
}

// NextRun returns the first fire time of expression after now. A malformed expression
// yields now + FallbackDelay and logs an error.
func (s *Scheduler) NextRun(expression string, now time.Time) time.Time {
	next, err := NextRun(expression, now)
	if err != nil {
		s.logger.Error("Invalid cron expression, retrying in 24h", "cron_expression", expression, "error", err)

		return now.Add(FallbackDelay)
	}

	return next
}

// NextRun parses expression and returns its first fire time after now.
func NextRun(expression string, now time.Time) (time.Time, error) {
	schedule, err := models.ParseCron(expression)
	if err != nil {
		return time.Time{}, err
	}

	return schedule.Next(now), nil
}
