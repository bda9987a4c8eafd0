// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"github.com/google/uuid"

	"github.com/dukex/autorules/pkg/models"
)

// CreateTestWorkflow creates an active OR workflow definition for entityType with no rows.
// Overrides are applied in order.
func CreateTestWorkflow(id, entityType string, overrides ...func(*models.WorkflowDefinition)) *models.WorkflowDefinition {
	def := &models.WorkflowDefinition{
		Workflow: &models.Workflow{
			ID:           id,
			Name:         "Test Workflow " + id,
			EntityType:   entityType,
			TriggerLogic: models.TriggerLogicOr,
			Status:       models.WorkflowStatusActive,
		},
	}

	for _, override := range overrides {
		override(def)
	}

	return def
}

// WithName sets the workflow name.
func WithName(name string) func(*models.WorkflowDefinition) {
	return func(d *models.WorkflowDefinition) {
		d.Workflow.Name = name
	}
}

// WithLogic sets how the workflow's triggers are combined.
func WithLogic(logic models.TriggerLogic) func(*models.WorkflowDefinition) {
	return func(d *models.WorkflowDefinition) {
		d.Workflow.TriggerLogic = logic
	}
}

// WithStatus sets the workflow status.
func WithStatus(status models.WorkflowStatus) func(*models.WorkflowDefinition) {
	return func(d *models.WorkflowDefinition) {
		d.Workflow.Status = status
	}
}

// WithTrigger appends an active trigger carrying conditions.
func WithTrigger(conditions models.TriggerConditions) func(*models.WorkflowDefinition) {
	return func(d *models.WorkflowDefinition) {
		d.Triggers = append(d.Triggers, &models.Trigger{
			ID:          uuid.NewString(),
			WorkflowID:  d.Workflow.ID,
			TriggerType: conditions.TriggerType(),
			Conditions:  conditions,
			IsActive:    true,
		})
	}
}

// WithAction appends an active action after the existing ones.
func WithAction(config models.ActionConfig) func(*models.WorkflowDefinition) {
	return func(d *models.WorkflowDefinition) {
		d.Actions = append(d.Actions, &models.Action{
			ID:         uuid.NewString(),
			WorkflowID: d.Workflow.ID,
			ActionType: config.ActionType(),
			Config:     config,
			SortOrder:  len(d.Actions) + 1,
			IsActive:   true,
		})
	}
}

// WithSchedule appends an active schedule with a nil next run, so it is due immediately.
func WithSchedule(cronExpression string) func(*models.WorkflowDefinition) {
	return func(d *models.WorkflowDefinition) {
		d.Schedules = append(d.Schedules, &models.Schedule{
			ID:             uuid.NewString(),
			WorkflowID:     d.Workflow.ID,
			CronExpression: cronExpression,
			IsActive:       true,
		})
	}
}

// Ptr returns a pointer to v, for optional condition fields.
func Ptr[T any](v T) *T {
	return &v
}
