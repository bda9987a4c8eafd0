// Package postgresql provides the PostgreSQL implementation of the workflow store.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"

	"github.com/dukex/autorules/pkg/models"
	"github.com/dukex/autorules/pkg/persistence"
	"github.com/dukex/autorules/pkg/persistence/sqlbase"
)

// Persistence implements persistence.Store for PostgreSQL.
type Persistence struct {
	db             *sql.DB
	logger         *slog.Logger
	workflowRepo   *WorkflowRepository
	executionRepo  *ExecutionRepository
	scheduleRepo   *ScheduleRepository
	directoryRepo  *DirectoryRepository
	schemaVersion  int
	migrationState *sqlbase.MigrationManager
}

var _ persistence.Store = (*Persistence)(nil)

// NewPersistence connects to databaseURL and brings the schema up to date.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger = logger.With("module", "postgresql")

	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	validate := models.NewValidator()

	return &Persistence{
		db:             database,
		logger:         logger,
		workflowRepo:   NewWorkflowRepository(database, logger, validate),
		executionRepo:  NewExecutionRepository(database, logger),
		scheduleRepo:   NewScheduleRepository(database, logger),
		directoryRepo:  NewDirectoryRepository(database, logger, validate),
		schemaVersion:  migrationManager.LatestVersion(),
		migrationState: migrationManager,
	}, nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the connection and that the schema is at the expected version.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	version, err := p.migrationState.CurrentVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if version < p.schemaVersion {
		return fmt.Errorf("schema version %d is behind %d", version, p.schemaVersion)
	}

	return nil
}

func (p *Persistence) SaveWorkflow(ctx context.Context, definition *models.WorkflowDefinition) error {
	return p.workflowRepo.Save(ctx, definition)
}

func (p *Persistence) GetActiveWorkflows(ctx context.Context, entityType string) ([]*models.Workflow, error) {
	return p.workflowRepo.GetActive(ctx, entityType)
}

func (p *Persistence) GetWorkflow(ctx context.Context, id string) (*models.Workflow, error) {
	return p.workflowRepo.GetByID(ctx, id)
}

func (p *Persistence) GetWorkflowTriggers(ctx context.Context, workflowID string) ([]*models.Trigger, error) {
	return p.workflowRepo.GetTriggers(ctx, workflowID)
}

func (p *Persistence) GetWorkflowActions(ctx context.Context, workflowID string) ([]*models.Action, error) {
	return p.workflowRepo.GetActions(ctx, workflowID)
}

func (p *Persistence) CreateWorkflowExecution(ctx context.Context, execution *models.Execution) (*models.Execution, error) {
	return p.executionRepo.Create(ctx, execution)
}

func (p *Persistence) UpdateWorkflowExecution(ctx context.Context, id string, update models.ExecutionUpdate) (*models.Execution, error) {
	return p.executionRepo.Update(ctx, id, update)
}

func (p *Persistence) GetWorkflowExecution(ctx context.Context, id string) (*models.Execution, error) {
	return p.executionRepo.GetByID(ctx, id)
}

func (p *Persistence) GetWorkflowExecutions(ctx context.Context, workflowID string, limit int) ([]*models.Execution, error) {
	return p.executionRepo.GetByWorkflow(ctx, workflowID, limit)
}

func (p *Persistence) SaveSchedule(ctx context.Context, schedule *models.Schedule) error {
	return p.scheduleRepo.Save(ctx, schedule)
}

func (p *Persistence) GetActiveWorkflowSchedules(ctx context.Context) ([]*models.Schedule, error) {
	return p.scheduleRepo.GetActive(ctx)
}

func (p *Persistence) UpdateWorkflowSchedule(ctx context.Context, id string, update models.ScheduleUpdate) (*models.Schedule, error) {
	return p.scheduleRepo.Update(ctx, id, update)
}

func (p *Persistence) SaveUser(ctx context.Context, user *models.User) error {
	return p.directoryRepo.SaveUser(ctx, user)
}

func (p *Persistence) GetUsersByRole(ctx context.Context, role string) ([]*models.User, error) {
	return p.directoryRepo.GetUsersByRole(ctx, role)
}

func (p *Persistence) CreateActivityLog(ctx context.Context, entry *models.ActivityLog) error {
	return p.directoryRepo.CreateActivityLog(ctx, entry)
}

// ActivityLogs returns the audit entries of one entity, oldest first.
func (p *Persistence) ActivityLogs(ctx context.Context, entityType, entityID string) ([]*models.ActivityLog, error) {
	return p.directoryRepo.ActivityLogs(ctx, entityType, entityID)
}

// EntityUpdater returns the field updater for one entity type.
func (p *Persistence) EntityUpdater(entityType string) *EntityRepository {
	return NewEntityRepository(p.db, p.logger, entityType)
}

func closeRows(ctx context.Context, logger *slog.Logger, rows *sql.Rows) {
	err := rows.Close()
	if err != nil {
		logger.ErrorContext(ctx, "Failed to close rows", "error", err)
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
