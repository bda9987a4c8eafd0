// Package persistence defines the storage port the automation engine depends on.
package persistence

import (
	"context"

	"github.com/dukex/autorules/pkg/models"
)

// WorkflowReader loads workflow definitions. The engine never writes them.
type WorkflowReader interface {
	// GetActiveWorkflows returns active workflows for entityType in a stable order.
	GetActiveWorkflows(ctx context.Context, entityType string) ([]*models.Workflow, error)
	GetWorkflow(ctx context.Context, id string) (*models.Workflow, error)
	GetWorkflowTriggers(ctx context.Context, workflowID string) ([]*models.Trigger, error)
	// GetWorkflowActions returns the workflow's actions ordered by sort order.
	GetWorkflowActions(ctx context.Context, workflowID string) ([]*models.Action, error)
}

// ExecutionStore persists the audit trail of workflow firings.
type ExecutionStore interface {
	CreateWorkflowExecution(ctx context.Context, execution *models.Execution) (*models.Execution, error)
	UpdateWorkflowExecution(ctx context.Context, id string, update models.ExecutionUpdate) (*models.Execution, error)
	GetWorkflowExecution(ctx context.Context, id string) (*models.Execution, error)
	// GetWorkflowExecutions returns a workflow's executions, newest first. limit <= 0 means all.
	GetWorkflowExecutions(ctx context.Context, workflowID string, limit int) ([]*models.Execution, error)
}

// ScheduleStore backs the time-based scheduler.
type ScheduleStore interface {
	GetActiveWorkflowSchedules(ctx context.Context) ([]*models.Schedule, error)
	UpdateWorkflowSchedule(ctx context.Context, id string, update models.ScheduleUpdate) (*models.Schedule, error)
}

// Directory resolves users and records audit entries for actions.
type Directory interface {
	GetUsersByRole(ctx context.Context, role string) ([]*models.User, error)
	CreateActivityLog(ctx context.Context, entry *models.ActivityLog) error
}

// Repository is everything the engine, actions and scheduler need from storage.
type Repository interface {
	WorkflowReader
	ExecutionStore
	ScheduleStore
	Directory

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// Store adds the authoring-side writes used for seeding and tests.
type Store interface {
	Repository

	SaveWorkflow(ctx context.Context, definition *models.WorkflowDefinition) error
	SaveSchedule(ctx context.Context, schedule *models.Schedule) error
	SaveUser(ctx context.Context, user *models.User) error
}
