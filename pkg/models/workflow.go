// Package models defines the core domain models for entity-driven workflow automation.
package models

import "time"

// WorkflowStatus represents the lifecycle state of a workflow.
type WorkflowStatus string

const (
	WorkflowStatusActive   WorkflowStatus = "active"   // Evaluated on every matching entity event
	WorkflowStatusInactive WorkflowStatus = "inactive" // Ignored by the engine
)

// TriggerLogic decides how the results of a workflow's triggers are combined.
type TriggerLogic string

const (
	TriggerLogicAnd TriggerLogic = "AND"
	TriggerLogicOr  TriggerLogic = "OR"
)

// Workflow is an automation rule bound to one entity type. The engine only reads it.
type Workflow struct {
	ID           string         `json:"id"            validate:"required"`
	Name         string         `json:"name"          validate:"required,min=3"`
	Description  string         `json:"description"`
	EntityType   string         `json:"entity_type"   validate:"required"`
	TriggerLogic TriggerLogic   `json:"trigger_logic" validate:"required,oneof=AND OR"`
	Status       WorkflowStatus `json:"status"        validate:"required,oneof=active inactive"`
	CreatedBy    string         `json:"created_by,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// IsActive reports whether the engine should consider this workflow.
func (w *Workflow) IsActive() bool {
	return w.Status == WorkflowStatusActive
}

// WorkflowDefinition groups a workflow with the rows that belong to it.
// It is the unit the authoring side hands to a Store.
type WorkflowDefinition struct {
	Workflow  *Workflow   `json:"workflow"  validate:"required"`
	Triggers  []*Trigger  `json:"triggers"  validate:"dive"`
	Actions   []*Action   `json:"actions"   validate:"dive"`
	Schedules []*Schedule `json:"schedules" validate:"dive"`
}
