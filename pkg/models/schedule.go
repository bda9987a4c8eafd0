package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule binds a workflow to a cron expression. It fires independently of entity events.
type Schedule struct {
	// ID uniquely identifies this schedule entry
	ID string `json:"id" validate:"required"`

	// WorkflowID identifies the workflow fired by this schedule
	WorkflowID string `json:"workflow_id" validate:"required"`

	// CronExpression uses the standard 5-field format (minute hour day month weekday)
	CronExpression string `json:"cron_expression" validate:"required"`

	// LastRunAt is when the schedule last fired
	LastRunAt *time.Time `json:"last_run_at,omitempty"`

	// NextRunAt is the precomputed next fire time; nil means due on the next sweep
	NextRunAt *time.Time `json:"next_run_at,omitempty"`

	// IsActive excludes the schedule from sweeps when false
	IsActive bool `json:"is_active"`
}

// ScheduleUpdate is the patch written after every fire.
type ScheduleUpdate struct {
	LastRunAt time.Time `json:"last_run_at"`
	NextRunAt time.Time `json:"next_run_at"`
}

// ErrInvalidSchedule is returned when schedule validation fails.
var ErrInvalidSchedule = errors.New("invalid schedule configuration")

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseCron parses a 5-field cron expression or an @descriptor.
func ParseCron(expression string) (cron.Schedule, error) {
	schedule, err := cronParser.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSchedule, err)
	}

	return schedule, nil
}

// IsDue checks if this schedule should fire at the given time.
func (s *Schedule) IsDue(now time.Time) bool {
	if !s.IsActive {
		return false
	}

	return s.NextRunAt == nil || !s.NextRunAt.After(now)
}

// Apply copies update onto the schedule.
func (s *Schedule) Apply(update ScheduleUpdate) {
	lastRun := update.LastRunAt
	nextRun := update.NextRunAt
	s.LastRunAt = &lastRun
	s.NextRunAt = &nextRun
}

// Validate performs validation on the schedule fields.
func (s *Schedule) Validate() error {
	if s.ID == "" || s.WorkflowID == "" || s.CronExpression == "" {
		return ErrInvalidSchedule
	}

	_, err := ParseCron(s.CronExpression)

	return err
}
