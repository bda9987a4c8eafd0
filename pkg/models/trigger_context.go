package models

// EventType is the kind of entity event that reached the engine.
type EventType string

const (
	EventTypeStatusChange EventType = "status_change"
	EventTypeFieldChange  EventType = "field_change"
	EventTypeCreated      EventType = "created"
	EventTypeManual       EventType = "manual"
	EventTypeTimeBased    EventType = "time_based"
)

// TriggerContext describes the event a workflow is evaluated against. It is never persisted.
type TriggerContext struct {
	EventType   EventType      `json:"event_type"             validate:"required,oneof=status_change field_change created manual time_based"`
	OldValue    any            `json:"old_value,omitempty"`
	NewValue    any            `json:"new_value,omitempty"`
	Entity      map[string]any `json:"entity"`
	TriggeredBy string         `json:"triggered_by,omitempty"`
}

// Field returns entity[name] and whether it was present.
func (c TriggerContext) Field(name string) (any, bool) {
	if c.Entity == nil {
		return nil, false
	}

	v, ok := c.Entity[name]

	return v, ok
}
