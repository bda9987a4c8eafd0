package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/dukex/autorules/pkg/models"
	"github.com/dukex/autorules/pkg/persistence"
	"github.com/dukex/autorules/pkg/persistence/postgresql"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	for _, table := range []string{
		"entities", "activity_logs", "users", "workflow_schedules", "workflow_executions",
		"workflow_actions", "workflow_triggers", "workflows", "schema_migrations",
	} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping PostgreSQL container test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("autorules_test"),
			postgres.WithUsername("autorules"),
			postgres.WithPassword("autorules"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = p.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return p, ctx, databaseURL
}

func strPtr(s string) *string { return &s }

func invoiceDefinition(id string, status models.WorkflowStatus) *models.WorkflowDefinition {
	return &models.WorkflowDefinition{
		Workflow: &models.Workflow{
			ID:           id,
			Name:         "Large invoice " + id,
			EntityType:   "invoice",
			TriggerLogic: models.TriggerLogicOr,
			Status:       status,
			CreatedBy:    "u-admin",
		},
		Triggers: []*models.Trigger{
			{
				ID:          id + "-t1",
				WorkflowID:  id,
				TriggerType: models.TriggerTypeAmountThreshold,
				Conditions:  models.AmountThresholdConditions{Field: "total", Operator: models.AmountGreaterThan, Value: 500},
				IsActive:    true,
			},
			{
				ID:          id + "-t2",
				WorkflowID:  id,
				TriggerType: models.TriggerTypeStatusChange,
				Conditions:  models.StatusChangeConditions{From: strPtr("draft"), To: strPtr("sent")},
				IsActive:    false,
			},
		},
		Actions: []*models.Action{
			{
				ID:                  id + "-a2",
				WorkflowID:          id,
				ActionType:          models.ActionTypeAssignUser,
				Config:              models.AssignUserConfig{UserID: models.RoleAccounts},
				ConditionExpression: "{{total}} > 1000",
				SortOrder:           2,
				IsActive:            true,
			},
			{
				ID:           id + "-a1",
				WorkflowID:   id,
				ActionType:   models.ActionTypeCreateNotification,
				Config:       models.CreateNotificationConfig{UserID: models.RoleManager, Title: "Invoice {{number}}"},
				DelayMinutes: 5,
				SortOrder:    1,
				IsActive:     true,
			},
		},
		Schedules: []*models.Schedule{
			{ID: id + "-s1", WorkflowID: id, CronExpression: "0 9 * * 1", IsActive: true},
		},
	}
}

func TestNewPersistence_Migrations(t *testing.T) {
	p, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		err := db.Close()
		require.NoError(t, err)
	}()

	for _, table := range []string{"workflows", "workflow_triggers", "workflow_actions", "workflow_executions", "workflow_schedules", "users", "activity_logs", "entities"} {
		var exists bool

		err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM
information_schema.tables WHERE table_name = $1)`, table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "%s table should exist", table)
	}

	var version int

	err = db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 4, version)

	assert.NoError(t, p.HealthCheck(ctx))
}

func TestPersistence_WorkflowRoundTrip(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	require.NoError(t, p.SaveWorkflow(ctx, invoiceDefinition("wf-1", models.WorkflowStatusActive)))
	require.NoError(t, p.SaveWorkflow(ctx, invoiceDefinition("wf-off", models.WorkflowStatusInactive)))

	workflows, err := p.GetActiveWorkflows(ctx, "invoice")
	require.NoError(t, err)
	require.Len(t, workflows, 1)
	assert.Equal(t, "wf-1", workflows[0].ID)
	assert.Equal(t, models.TriggerLogicOr, workflows[0].TriggerLogic)
	assert.Equal(t, "u-admin", workflows[0].CreatedBy)

	triggers, err := p.GetWorkflowTriggers(ctx, "wf-1")
	require.NoError(t, err)
	require.Len(t, triggers, 2)

	byID := map[string]*models.Trigger{}
	for _, trigger := range triggers {
		byID[trigger.ID] = trigger
	}

	assert.Equal(t, models.AmountThresholdConditions{Field: "total", Operator: models.AmountGreaterThan, Value: 500}, byID["wf-1-t1"].Conditions)
	assert.Equal(t, models.StatusChangeConditions{From: strPtr("draft"), To: strPtr("sent")}, byID["wf-1-t2"].Conditions)
	assert.False(t, byID["wf-1-t2"].IsActive)

	actions, err := p.GetWorkflowActions(ctx, "wf-1")
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Equal(t, "wf-1-a1", actions[0].ID)
	assert.Equal(t, 5, actions[0].DelayMinutes)
	assert.Equal(t, models.AssignUserConfig{UserID: models.RoleAccounts}, actions[1].Config)
	assert.Equal(t, "{{total}} > 1000", actions[1].ConditionExpression)

	schedules, err := p.GetActiveWorkflowSchedules(ctx)
	require.NoError(t, err)
	assert.Len(t, schedules, 2)

	_, err = p.GetWorkflow(ctx, "missing")
	assert.ErrorIs(t, err, persistence.ErrWorkflowNotFound)
}

func TestPersistence_SaveWorkflowReplacesRows(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	def := invoiceDefinition("wf-1", models.WorkflowStatusActive)
	require.NoError(t, p.SaveWorkflow(ctx, def))

	def.Actions = def.Actions[:1]
	def.Workflow.Name = "Renamed workflow"
	require.NoError(t, p.SaveWorkflow(ctx, def))

	wf, err := p.GetWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed workflow", wf.Name)

	actions, err := p.GetWorkflowActions(ctx, "wf-1")
	require.NoError(t, err)
	assert.Len(t, actions, 1)

	invalid := invoiceDefinition("wf-2", models.WorkflowStatusActive)
	invalid.Triggers[0].Conditions = models.AmountThresholdConditions{Operator: "sideways"}
	require.Error(t, p.SaveWorkflow(ctx, invalid))

	_, err = p.GetWorkflow(ctx, "wf-2")
	assert.ErrorIs(t, err, persistence.ErrWorkflowNotFound)
}

func TestPersistence_ExecutionLifecycle(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	started := time.Now().UTC().Truncate(time.Millisecond)

	created, err := p.CreateWorkflowExecution(ctx, &models.Execution{
		WorkflowID:  "wf-1",
		EntityType:  "invoice",
		EntityID:    "inv-1",
		Status:      models.ExecutionStatusRunning,
		TriggeredBy: "u-1",
		StartedAt:   started,
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	updated, err := p.UpdateWorkflowExecution(ctx, created.ID, models.ExecutionUpdate{
		Status: models.ExecutionStatusFailed,
		ExecutionLog: []models.ActionExecutionResult{
			{ActionID: "a1", ActionType: models.ActionTypeSendEmail, Status: models.ActionStatusFailed, Error: "smtp down", Timestamp: started},
		},
		CompletedAt:  started.Add(1500 * time.Millisecond),
		DurationMs:   1500,
		ErrorMessage: "smtp down",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, updated.Status)

	_, err = p.UpdateWorkflowExecution(ctx, created.ID, models.ExecutionUpdate{Status: models.ExecutionStatusCompleted})
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	loaded, err := p.GetWorkflowExecution(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "u-1", loaded.TriggeredBy)
	assert.Equal(t, int64(1500), loaded.DurationMs)
	require.NotNil(t, loaded.CompletedAt)
	require.Len(t, loaded.ExecutionLog, 1)
	assert.Equal(t, "smtp down", loaded.ExecutionLog[0].Error)

	_, err = p.GetWorkflowExecution(ctx, "missing")
	assert.ErrorIs(t, err, persistence.ErrExecutionNotFound)
}

func TestPersistence_GetWorkflowExecutions(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	base := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	for i, id := range []string{"e1", "e2", "e3"} {
		_, err := p.CreateWorkflowExecution(ctx, &models.Execution{
			ID: id, WorkflowID: "wf-1", EntityType: "quote", EntityID: "q-1",
			Status: models.ExecutionStatusRunning, StartedAt: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	executions, err := p.GetWorkflowExecutions(ctx, "wf-1", 2)
	require.NoError(t, err)
	require.Len(t, executions, 2)
	assert.Equal(t, "e3", executions[0].ID)

	all, err := p.GetWorkflowExecutions(ctx, "wf-1", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestPersistence_Schedules(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	require.NoError(t, p.SaveSchedule(ctx, &models.Schedule{ID: "s1", WorkflowID: "wf-1", CronExpression: "@daily", IsActive: true}))
	assert.Error(t, p.SaveSchedule(ctx, &models.Schedule{ID: "s2", WorkflowID: "wf-1", CronExpression: "every day"}))

	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	updated, err := p.UpdateWorkflowSchedule(ctx, "s1", models.ScheduleUpdate{LastRunAt: now, NextRunAt: now.Add(24 * time.Hour)})
	require.NoError(t, err)
	require.NotNil(t, updated.NextRunAt)
	assert.True(t, now.Add(24*time.Hour).Equal(*updated.NextRunAt))

	_, err = p.UpdateWorkflowSchedule(ctx, "missing", models.ScheduleUpdate{LastRunAt: now, NextRunAt: now})
	assert.ErrorIs(t, err, persistence.ErrScheduleNotFound)
}

func TestPersistence_Directory(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	require.NoError(t, p.SaveUser(ctx, &models.User{ID: "u2", Name: "Bo", Role: models.RoleAccounts}))
	require.NoError(t, p.SaveUser(ctx, &models.User{ID: "u1", Name: "Al", Email: "al@example.com", Role: models.RoleAccounts}))

	users, err := p.GetUsersByRole(ctx, models.RoleAccounts)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "u1", users[0].ID)

	entry := &models.ActivityLog{EntityType: "invoice", EntityID: "inv-1", Action: "escalated"}
	require.NoError(t, p.CreateActivityLog(ctx, entry))
	assert.NotEmpty(t, entry.ID)

	entries, err := p.ActivityLogs(ctx, "invoice", "inv-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "escalated", entries[0].Action)
}

func TestEntityRepository_UpdateField(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	invoices := p.EntityUpdater("invoice")
	require.NoError(t, invoices.SaveEntity(ctx, "inv-1", map[string]any{"status": "draft", "total": 900}))

	require.NoError(t, invoices.UpdateField(ctx, "inv-1", "status", "approved"))
	require.NoError(t, invoices.UpdateField(ctx, "inv-1", "assignedTo", "u-1"))

	entity, err := invoices.GetEntity(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, "approved", entity["status"])
	assert.Equal(t, "u-1", entity["assignedTo"])
	assert.InDelta(t, 900, entity["total"], 0.001)

	assert.ErrorIs(t, invoices.UpdateField(ctx, "inv-404", "status", "x"), persistence.ErrEntityNotFound)
	assert.ErrorIs(t, invoices.UpdateField(ctx, "inv-1", "", "x"), persistence.ErrInvalidField)
	assert.ErrorIs(t, p.EntityUpdater("quote").UpdateField(ctx, "inv-1", "status", "x"), persistence.ErrEntityNotFound)
}
