package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/autorules/pkg/models"
	"github.com/dukex/autorules/pkg/persistence"
)

// ScheduleRepository handles the workflow_schedules table.
type ScheduleRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewScheduleRepository creates a new schedule repository.
func NewScheduleRepository(db *sql.DB, logger *slog.Logger) *ScheduleRepository {
	return &ScheduleRepository{db: db, logger: logger}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertSchedule(ctx context.Context, db execer, schedule *models.Schedule) error {
	if err := schedule.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO workflow_schedules (id, workflow_id, cron_expression, last_run_at, next_run_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			workflow_id = EXCLUDED.workflow_id,
			cron_expression = EXCLUDED.cron_expression,
			last_run_at = EXCLUDED.last_run_at,
			next_run_at = EXCLUDED.next_run_at,
			is_active = EXCLUDED.is_active
	`

	_, err := db.ExecContext(ctx, query,
		schedule.ID,
		schedule.WorkflowID,
		schedule.CronExpression,
		schedule.LastRunAt,
		schedule.NextRunAt,
		schedule.IsActive,
	)
	if err != nil {
		return fmt.Errorf("failed to save schedule: %w", err)
	}

	return nil
}

// Save validates and upserts a schedule.
func (r *ScheduleRepository) Save(ctx context.Context, schedule *models.Schedule) error {
	if err := upsertSchedule(ctx, r.db, schedule); err != nil {
		return persistence.NewRepositoryError("SaveSchedule", schedule.ID, err)
	}

	return nil
}

// GetActive returns the active schedules ordered by their next fire time, unscheduled first.
func (r *ScheduleRepository) GetActive(ctx context.Context) ([]*models.Schedule, error) {
	query := `
		SELECT
			id
		  , workflow_id
		  , cron_expression
		  , last_run_at
		  , next_run_at
		  , is_active
		FROM workflow_schedules
		WHERE is_active = TRUE
		ORDER BY next_run_at NULLS FIRST, id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, persistence.NewRepositoryError("GetActiveWorkflowSchedules", "", err)
	}

	defer closeRows(ctx, r.logger, rows)

	schedules := make([]*models.Schedule, 0)

	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}

		schedules = append(schedules, schedule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate schedules: %w", err)
	}

	return schedules, nil
}

// Update records a fire of the schedule.
func (r *ScheduleRepository) Update(ctx context.Context, id string, update models.ScheduleUpdate) (*models.Schedule, error) {
	query := `
		UPDATE workflow_schedules SET
			last_run_at = $2,
			next_run_at = $3
		WHERE id = $1
		RETURNING id, workflow_id, cron_expression, last_run_at, next_run_at, is_active
	`

	schedule, err := scanSchedule(r.db.QueryRowContext(ctx, query, id, update.LastRunAt, update.NextRunAt))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewRepositoryError("UpdateWorkflowSchedule", id, persistence.ErrScheduleNotFound)
	}

	if err != nil {
		return nil, persistence.NewRepositoryError("UpdateWorkflowSchedule", id, err)
	}

	return schedule, nil
}

func scanSchedule(scanner rowScanner) (*models.Schedule, error) {
	var (
		schedule  models.Schedule
		lastRunAt sql.NullTime
		nextRunAt sql.NullTime
	)

	err := scanner.Scan(
		&schedule.ID,
		&schedule.WorkflowID,
		&schedule.CronExpression,
		&lastRunAt,
		&nextRunAt,
		&schedule.IsActive,
	)
	if err != nil {
		return nil, err
	}

	if lastRunAt.Valid {
		schedule.LastRunAt = &lastRunAt.Time
	}

	if nextRunAt.Valid {
		schedule.NextRunAt = &nextRunAt.Time
	}

	return &schedule, nil
}
