package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/dukex/autorules/pkg/models"
	"github.com/dukex/autorules/pkg/persistence"
)

// WorkflowRepository handles workflow, trigger and action rows.
type WorkflowRepository struct {
	db       *sql.DB
	logger   *slog.Logger
	validate *validator.Validate
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger, validate *validator.Validate) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger, validate: validate}
}

const workflowColumns = `
			id
		  , name
		  , description
		  , entity_type
		  , trigger_logic
		  , status
		  , created_by
		  , created_at
		  , updated_at
`

// GetActive returns active workflows of entityType in creation order.
func (r *WorkflowRepository) GetActive(ctx context.Context, entityType string) ([]*models.Workflow, error) {
	query := `
		SELECT ` + workflowColumns + `
		FROM workflows
		WHERE entity_type = $1 AND status = $2
		ORDER BY created_at, id
	`

	rows, err := r.db.QueryContext(ctx, query, entityType, models.WorkflowStatusActive)
	if err != nil {
		return nil, persistence.NewRepositoryError("GetActiveWorkflows", entityType, fmt.Errorf("failed to query workflows: %w", err))
	}

	defer closeRows(ctx, r.logger, rows)

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate workflows: %w", err)
	}

	return workflows, nil
}

// GetByID returns a workflow regardless of its status.
func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	query := `
		SELECT ` + workflowColumns + `
		FROM workflows
		WHERE id = $1
	`

	workflow, err := scanWorkflow(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewRepositoryError("GetWorkflow", id, persistence.ErrWorkflowNotFound)
	}

	if err != nil {
		return nil, persistence.NewRepositoryError("GetWorkflow", id, fmt.Errorf("failed to scan workflow: %w", err))
	}

	return workflow, nil
}

// GetTriggers returns every trigger row of a workflow.
func (r *WorkflowRepository) GetTriggers(ctx context.Context, workflowID string) ([]*models.Trigger, error) {
	query := `
		SELECT
			id
		  , workflow_id
		  , trigger_type
		  , conditions
		  , is_active
		  , created_at
		FROM workflow_triggers
		WHERE workflow_id = $1
		ORDER BY created_at, id
	`

	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, persistence.NewRepositoryError("GetWorkflowTriggers", workflowID, fmt.Errorf("failed to query triggers: %w", err))
	}

	defer closeRows(ctx, r.logger, rows)

	triggers := make([]*models.Trigger, 0)

	for rows.Next() {
		var (
			trigger    models.Trigger
			conditions []byte
		)

		err := rows.Scan(&trigger.ID, &trigger.WorkflowID, &trigger.TriggerType, &conditions, &trigger.IsActive, &trigger.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trigger: %w", err)
		}

		trigger.Conditions, err = models.DecodeTriggerConditions(trigger.TriggerType, conditions)
		if err != nil {
			return nil, persistence.NewRepositoryError("GetWorkflowTriggers", trigger.ID, err)
		}

		triggers = append(triggers, &trigger)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate triggers: %w", err)
	}

	return triggers, nil
}

// GetActions returns every action row of a workflow by ascending sort order.
func (r *WorkflowRepository) GetActions(ctx context.Context, workflowID string) ([]*models.Action, error) {
	query := `
		SELECT
			id
		  , workflow_id
		  , action_type
		  , action_config
		  , condition_expression
		  , delay_minutes
		  , sort_order
		  , is_active
		  , created_at
		FROM workflow_actions
		WHERE workflow_id = $1
		ORDER BY sort_order, created_at, id
	`

	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, persistence.NewRepositoryError("GetWorkflowActions", workflowID, fmt.Errorf("failed to query actions: %w", err))
	}

	defer closeRows(ctx, r.logger, rows)

	actions := make([]*models.Action, 0)

	for rows.Next() {
		var (
			action    models.Action
			config    []byte
			condition sql.NullString
		)

		err := rows.Scan(
			&action.ID,
			&action.WorkflowID,
			&action.ActionType,
			&config,
			&condition,
			&action.DelayMinutes,
			&action.SortOrder,
			&action.IsActive,
			&action.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}

		action.ConditionExpression = condition.String

		action.Config, err = models.DecodeActionConfig(action.ActionType, config)
		if err != nil {
			return nil, persistence.NewRepositoryError("GetWorkflowActions", action.ID, err)
		}

		actions = append(actions, &action)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate actions: %w", err)
	}

	return actions, nil
}

// Save validates a definition and replaces the workflow and all its rows in one transaction.
func (r *WorkflowRepository) Save(ctx context.Context, def *models.WorkflowDefinition) (err error) {
	if err := models.ValidateDefinition(r.validate, def); err != nil {
		return fmt.Errorf("invalid workflow definition: %w", err)
	}

	workflow := def.Workflow
	now := time.Now().UTC()

	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	workflowQuery := `
		INSERT INTO workflows (id, name, description, entity_type, trigger_logic, status, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			entity_type = EXCLUDED.entity_type,
			trigger_logic = EXCLUDED.trigger_logic,
			status = EXCLUDED.status,
			created_by = EXCLUDED.created_by,
			updated_at = EXCLUDED.updated_at
	`

	_, err = tx.ExecContext(ctx, workflowQuery,
		workflow.ID,
		workflow.Name,
		workflow.Description,
		workflow.EntityType,
		workflow.TriggerLogic,
		workflow.Status,
		nullString(workflow.CreatedBy),
		workflow.CreatedAt,
		workflow.UpdatedAt,
	)
	if err != nil {
		return persistence.NewRepositoryError("SaveWorkflow", workflow.ID, fmt.Errorf("failed to save workflow: %w", err))
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM workflow_triggers WHERE workflow_id = $1", workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to delete existing triggers: %w", err)
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM workflow_actions WHERE workflow_id = $1", workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to delete existing actions: %w", err)
	}

	err = saveTriggers(ctx, tx, workflow.ID, def.Triggers, now)
	if err != nil {
		return persistence.NewRepositoryError("SaveWorkflow", workflow.ID, err)
	}

	err = saveActions(ctx, tx, workflow.ID, def.Actions, now)
	if err != nil {
		return persistence.NewRepositoryError("SaveWorkflow", workflow.ID, err)
	}

	for _, schedule := range def.Schedules {
		err = upsertSchedule(ctx, tx, schedule)
		if err != nil {
			return persistence.NewRepositoryError("SaveSchedule", schedule.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func saveTriggers(ctx context.Context, tx *sql.Tx, workflowID string, triggers []*models.Trigger, now time.Time) error {
	query := `
		INSERT INTO workflow_triggers (id, workflow_id, trigger_type, conditions, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	for _, trigger := range triggers {
		if trigger.CreatedAt.IsZero() {
			trigger.CreatedAt = now
		}

		conditions, err := json.Marshal(trigger.Conditions)
		if err != nil {
			return fmt.Errorf("failed to marshal conditions of trigger %s: %w", trigger.ID, err)
		}

		_, err = tx.ExecContext(ctx, query, trigger.ID, workflowID, trigger.TriggerType, conditions, trigger.IsActive, trigger.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to save trigger %s: %w", trigger.ID, err)
		}
	}

	return nil
}

func saveActions(ctx context.Context, tx *sql.Tx, workflowID string, actions []*models.Action, now time.Time) error {
	query := `
		INSERT INTO workflow_actions (id, workflow_id, action_type, action_config, condition_expression,
			delay_minutes, sort_order, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	for _, action := range actions {
		if action.CreatedAt.IsZero() {
			action.CreatedAt = now
		}

		config, err := json.Marshal(action.Config)
		if err != nil {
			return fmt.Errorf("failed to marshal config of action %s: %w", action.ID, err)
		}

		_, err = tx.ExecContext(ctx, query,
			action.ID,
			workflowID,
			action.ActionType,
			config,
			nullString(action.ConditionExpression),
			action.DelayMinutes,
			action.SortOrder,
			action.IsActive,
			action.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to save action %s: %w", action.ID, err)
		}
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(scanner rowScanner) (*models.Workflow, error) {
	var (
		workflow  models.Workflow
		createdBy sql.NullString
	)

	err := scanner.Scan(
		&workflow.ID,
		&workflow.Name,
		&workflow.Description,
		&workflow.EntityType,
		&workflow.TriggerLogic,
		&workflow.Status,
		&createdBy,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	workflow.CreatedBy = createdBy.String

	return &workflow, nil
}
