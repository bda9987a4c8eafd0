package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dukex/autorules/pkg/models"
	"github.com/dukex/autorules/pkg/persistence"
)

// ExecutionRepository handles the workflow_executions table.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

const executionColumns = `
			id
		  , workflow_id
		  , entity_type
		  , entity_id
		  , status
		  , triggered_by
		  , execution_log
		  , started_at
		  , completed_at
		  , duration_ms
		  , error_message
		  , error_stack
`

// Create inserts a new execution. An empty ID is filled with a UUID.
func (r *ExecutionRepository) Create(ctx context.Context, execution *models.Execution) (*models.Execution, error) {
	created := *execution
	if created.ID == "" {
		created.ID = uuid.NewString()
	}

	if created.ExecutionLog == nil {
		created.ExecutionLog = make([]models.ActionExecutionResult, 0)
	}

	executionLog, err := json.Marshal(created.ExecutionLog)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal execution log: %w", err)
	}

	query := `
		INSERT INTO workflow_executions (id, workflow_id, entity_type, entity_id, status, triggered_by,
			execution_log, started_at, completed_at, duration_ms, error_message, error_stack)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err = r.db.ExecContext(ctx, query,
		created.ID,
		created.WorkflowID,
		created.EntityType,
		created.EntityID,
		created.Status,
		nullString(created.TriggeredBy),
		executionLog,
		created.StartedAt,
		created.CompletedAt,
		created.DurationMs,
		nullString(created.ErrorMessage),
		nullString(created.ErrorStack),
	)
	if err != nil {
		return nil, persistence.NewRepositoryError("CreateWorkflowExecution", created.ID, err)
	}

	return &created, nil
}

// Update finalizes a running execution. The row is locked so concurrent finalizers serialize.
func (r *ExecutionRepository) Update(ctx context.Context, id string, update models.ExecutionUpdate) (_ *models.Execution, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	query := `SELECT ` + executionColumns + ` FROM workflow_executions WHERE id = $1 FOR UPDATE`

	execution, err := scanExecution(tx.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewRepositoryError("UpdateWorkflowExecution", id, persistence.ErrExecutionNotFound)
	}

	if err != nil {
		return nil, persistence.NewRepositoryError("UpdateWorkflowExecution", id, err)
	}

	if err = execution.Apply(update); err != nil {
		return nil, persistence.NewRepositoryError("UpdateWorkflowExecution", id, err)
	}

	executionLog, err := json.Marshal(execution.ExecutionLog)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal execution log: %w", err)
	}

	updateQuery := `
		UPDATE workflow_executions SET
			status = $2,
			execution_log = $3,
			completed_at = $4,
			duration_ms = $5,
			error_message = $6,
			error_stack = $7
		WHERE id = $1
	`

	_, err = tx.ExecContext(ctx, updateQuery,
		id,
		execution.Status,
		executionLog,
		execution.CompletedAt,
		execution.DurationMs,
		nullString(execution.ErrorMessage),
		nullString(execution.ErrorStack),
	)
	if err != nil {
		return nil, persistence.NewRepositoryError("UpdateWorkflowExecution", id, err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return execution, nil
}

func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM workflow_executions WHERE id = $1`

	execution, err := scanExecution(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewRepositoryError("GetWorkflowExecution", id, persistence.ErrExecutionNotFound)
	}

	if err != nil {
		return nil, persistence.NewRepositoryError("GetWorkflowExecution", id, err)
	}

	return execution, nil
}

// GetByWorkflow returns a workflow's executions, newest first. limit <= 0 returns all.
func (r *ExecutionRepository) GetByWorkflow(ctx context.Context, workflowID string, limit int) ([]*models.Execution, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM workflow_executions
		WHERE workflow_id = $1
		ORDER BY started_at DESC, id DESC
	`

	args := []any{workflowID}
	if limit > 0 {
		query += " LIMIT $2"

		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistence.NewRepositoryError("GetWorkflowExecutions", workflowID, err)
	}

	defer closeRows(ctx, r.logger, rows)

	executions := make([]*models.Execution, 0)

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate executions: %w", err)
	}

	return executions, nil
}

func scanExecution(scanner rowScanner) (*models.Execution, error) {
	var (
		execution    models.Execution
		triggeredBy  sql.NullString
		executionLog []byte
		completedAt  sql.NullTime
		errorMessage sql.NullString
		errorStack   sql.NullString
	)

	err := scanner.Scan(
		&execution.ID,
		&execution.WorkflowID,
		&execution.EntityType,
		&execution.EntityID,
		&execution.Status,
		&triggeredBy,
		&executionLog,
		&execution.StartedAt,
		&completedAt,
		&execution.DurationMs,
		&errorMessage,
		&errorStack,
	)
	if err != nil {
		return nil, err
	}

	execution.TriggeredBy = triggeredBy.String
	execution.ErrorMessage = errorMessage.String
	execution.ErrorStack = errorStack.String

	if completedAt.Valid {
		execution.CompletedAt = &completedAt.Time
	}

	execution.ExecutionLog = make([]models.ActionExecutionResult, 0)
	if len(executionLog) > 0 {
		if err := json.Unmarshal(executionLog, &execution.ExecutionLog); err != nil {
			return nil, fmt.Errorf("failed to unmarshal execution log: %w", err)
		}
	}

	return &execution, nil
}
