// Package web exposes event ingestion and the execution audit trail over HTTP.
package web

import "github.com/dukex/autorules/pkg/models"

// EventRequest reports an entity mutation committed by the host application.
type EventRequest struct {
	EntityType  string           `json:"entity_type"            validate:"required"`
	EntityID    string           `json:"entity_id"              validate:"required"`
	EventType   models.EventType `json:"event_type"             validate:"required,oneof=status_change field_change created manual time_based"`
	OldValue    any              `json:"old_value,omitempty"`
	NewValue    any              `json:"new_value,omitempty"`
	Entity      map[string]any   `json:"entity"`
	TriggeredBy string           `json:"triggered_by,omitempty"`
}

// TriggerContext converts the request into the context the engine evaluates.
func (r EventRequest) TriggerContext() models.TriggerContext {
	return models.TriggerContext{
		EventType:   r.EventType,
		OldValue:    r.OldValue,
		NewValue:    r.NewValue,
		Entity:      r.Entity,
		TriggeredBy: r.TriggeredBy,
	}
}

// RunWorkflowRequest fires one workflow by hand. EventType defaults to manual.
type RunWorkflowRequest struct {
	EntityID    string           `json:"entity_id"              validate:"required"`
	EventType   models.EventType `json:"event_type,omitempty"   validate:"omitempty,oneof=status_change field_change created manual time_based"`
	OldValue    any              `json:"old_value,omitempty"`
	NewValue    any              `json:"new_value,omitempty"`
	Entity      map[string]any   `json:"entity"`
	TriggeredBy string           `json:"triggered_by,omitempty"`
}

func (r RunWorkflowRequest) TriggerContext() models.TriggerContext {
	return models.TriggerContext{
		EventType:   r.EventType,
		OldValue:    r.OldValue,
		NewValue:    r.NewValue,
		Entity:      r.Entity,
		TriggeredBy: r.TriggeredBy,
	}
}

// AcceptedResponse acknowledges an event queued for evaluation.
type AcceptedResponse struct {
	Status     string `json:"status"`
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
}

// ExecutionsResponse lists a workflow's executions, newest first.
type ExecutionsResponse struct {
	WorkflowID string              `json:"workflow_id"`
	Executions []*models.Execution `json:"executions"`
	Count      int                 `json:"count"`
}
