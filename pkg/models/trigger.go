package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// TriggerType identifies the trigger variant and the shape of its conditions.
type TriggerType string

const (
	TriggerTypeStatusChange    TriggerType = "status_change"
	TriggerTypeAmountThreshold TriggerType = "amount_threshold"
	TriggerTypeFieldChange     TriggerType = "field_change"
	TriggerTypeDateBased       TriggerType = "date_based"
	TriggerTypeCreated         TriggerType = "created"
	TriggerTypeManual          TriggerType = "manual"
)

// TriggerConditions is the typed payload of a trigger. The set of implementations is closed:
// each trigger type has exactly one conditions struct in this package.
type TriggerConditions interface {
	TriggerType() TriggerType
	sealedTrigger()
}

// Trigger is one condition of a workflow, evaluated against an entity event.
type Trigger struct {
	ID          string            `json:"id"          validate:"required"`
	WorkflowID  string            `json:"workflow_id" validate:"required"`
	TriggerType TriggerType       `json:"trigger_type" validate:"required"`
	Conditions  TriggerConditions `json:"conditions"`
	IsActive    bool              `json:"is_active"`
	CreatedAt   time.Time         `json:"created_at"`
}

// StatusChangeConditions matches a status transition. Nil From/To match any value.
type StatusChangeConditions struct {
	From *string `json:"from,omitempty"`
	To   *string `json:"to,omitempty"`
}

// AmountOperator compares a numeric entity field against a threshold.
type AmountOperator string

const (
	AmountGreaterThan        AmountOperator = "greater_than"
	AmountLessThan           AmountOperator = "less_than"
	AmountEquals             AmountOperator = "equals"
	AmountGreaterThanOrEqual AmountOperator = "greater_than_or_equal"
	AmountLessThanOrEqual    AmountOperator = "less_than_or_equal"
)

// AmountThresholdConditions compares entity[Field] against Value.
type AmountThresholdConditions struct {
	Field    string         `json:"field"    validate:"required"`
	Operator AmountOperator `json:"operator" validate:"required,oneof=greater_than less_than equals greater_than_or_equal less_than_or_equal"`
	Value    float64        `json:"value"`
}

// FieldOperator compares an entity field after a field_change event.
type FieldOperator string

const (
	FieldEquals      FieldOperator = "equals"
	FieldNotEquals   FieldOperator = "not_equals"
	FieldGreaterThan FieldOperator = "greater_than"
	FieldLessThan    FieldOperator = "less_than"
	FieldContains    FieldOperator = "contains"
)

// FieldChangeConditions compares entity[Field] against Value.
type FieldChangeConditions struct {
	Field    string        `json:"field"    validate:"required"`
	Operator FieldOperator `json:"operator" validate:"required,oneof=equals not_equals greater_than less_than contains"`
	Value    any           `json:"value"`
}

// DateOperator compares a date field against the current day.
type DateOperator string

const (
	DateDaysBefore DateOperator = "days_before"
	DateDaysAfter  DateOperator = "days_after"
	DateIsOverdue  DateOperator = "is_overdue"
	DateIsToday    DateOperator = "is_today"
)

// DateBasedConditions compares the date in entity[Field] with now. Value is a day count
// and only used by days_before/days_after.
type DateBasedConditions struct {
	Field    string       `json:"field"    validate:"required"`
	Operator DateOperator `json:"operator" validate:"required,oneof=days_before days_after is_overdue is_today"`
	Value    int          `json:"value"    validate:"gte=0"`
}

// CreatedConditions matches entity creation events.
type CreatedConditions struct{}

// ManualConditions matches manually fired events.
type ManualConditions struct{}

// UnknownTriggerConditions carries a trigger whose type this build does not know.
// It always evaluates to false.
type UnknownTriggerConditions struct {
	Type TriggerType     `json:"-"`
	Raw  json.RawMessage `json:"-"`
}

func (StatusChangeConditions) TriggerType() TriggerType    { return TriggerTypeStatusChange }
func (AmountThresholdConditions) TriggerType() TriggerType { return TriggerTypeAmountThreshold }
func (FieldChangeConditions) TriggerType() TriggerType     { return TriggerTypeFieldChange }
func (DateBasedConditions) TriggerType() TriggerType       { return TriggerTypeDateBased }
func (CreatedConditions) TriggerType() TriggerType         { return TriggerTypeCreated }
func (ManualConditions) TriggerType() TriggerType          { return TriggerTypeManual }
func (u UnknownTriggerConditions) TriggerType() TriggerType { return u.Type }

func (StatusChangeConditions) sealedTrigger()    {}
func (AmountThresholdConditions) sealedTrigger() {}
func (FieldChangeConditions) sealedTrigger()     {}
func (DateBasedConditions) sealedTrigger()       {}
func (CreatedConditions) sealedTrigger()         {}
func (ManualConditions) sealedTrigger()          {}
func (UnknownTriggerConditions) sealedTrigger()  {}

// MarshalJSON keeps the raw payload of unknown triggers intact.
func (u UnknownTriggerConditions) MarshalJSON() ([]byte, error) {
	if len(u.Raw) == 0 {
		return []byte("{}"), nil
	}

	return u.Raw, nil
}

// DecodeTriggerConditions decodes a raw conditions payload for the given trigger type.
func DecodeTriggerConditions(triggerType TriggerType, raw json.RawMessage) (TriggerConditions, error) {
	var conditions TriggerConditions

	switch triggerType {
	case TriggerTypeStatusChange:
		conditions = &StatusChangeConditions{}
	case TriggerTypeAmountThreshold:
		conditions = &AmountThresholdConditions{}
	case TriggerTypeFieldChange:
		conditions = &FieldChangeConditions{}
	case TriggerTypeDateBased:
		conditions = &DateBasedConditions{}
	case TriggerTypeCreated:
		return CreatedConditions{}, nil
	case TriggerTypeManual:
		return ManualConditions{}, nil
	default:
		return UnknownTriggerConditions{Type: triggerType, Raw: raw}, nil
	}

	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, conditions); err != nil {
			return nil, fmt.Errorf("failed to decode %s conditions: %w", triggerType, err)
		}
	}

	return derefConditions(conditions), nil
}

func derefConditions(c TriggerConditions) TriggerConditions {
	switch v := c.(type) {
	case *StatusChangeConditions:
		return *v
	case *AmountThresholdConditions:
		return *v
	case *FieldChangeConditions:
		return *v
	case *DateBasedConditions:
		return *v
	default:
		return c
	}
}

// UnmarshalJSON decodes the conditions payload according to trigger_type.
func (t *Trigger) UnmarshalJSON(data []byte) error {
	type alias Trigger

	aux := struct {
		*alias

		Conditions json.RawMessage `json:"conditions"`
	}{alias: (*alias)(t)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	conditions, err := DecodeTriggerConditions(t.TriggerType, aux.Conditions)
	if err != nil {
		return err
	}

	t.Conditions = conditions

	return nil
}
