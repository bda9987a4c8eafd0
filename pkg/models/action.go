package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ActionType identifies the action variant and the shape of its configuration.
type ActionType string

const (
	ActionTypeSendEmail          ActionType = "send_email"
	ActionTypeCreateNotification ActionType = "create_notification"
	ActionTypeUpdateField        ActionType = "update_field"
	ActionTypeCreateActivityLog  ActionType = "create_activity_log"
	ActionTypeAssignUser         ActionType = "assign_user"
)

// ActionConfig is the typed payload of an action. The set of implementations is closed.
type ActionConfig interface {
	ActionType() ActionType
	sealedAction()
}

// Action is one ordered effect of a workflow.
type Action struct {
	ID                  string       `json:"id"          validate:"required"`
	WorkflowID          string       `json:"workflow_id" validate:"required"`
	ActionType          ActionType   `json:"action_type" validate:"required"`
	Config              ActionConfig `json:"action_config"`
	ConditionExpression string       `json:"condition_expression,omitempty"`
	DelayMinutes        int          `json:"delay_minutes,omitempty" validate:"gte=0"`
	SortOrder           int          `json:"sort_order"`
	IsActive            bool         `json:"is_active"`
	CreatedAt           time.Time    `json:"created_at"`
}

// SendEmailConfig holds templates for the recipient, subject and HTML body.
type SendEmailConfig struct {
	To      string `json:"to"      validate:"required"`
	Subject string `json:"subject" validate:"required"`
	Body    string `json:"body"`
}

// CreateNotificationConfig targets a user id or a role name.
type CreateNotificationConfig struct {
	UserID  string `json:"userId"  validate:"required"`
	Title   string `json:"title"   validate:"required"`
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
}

// UpdateFieldConfig sets entity[Field] to Value. String values are templates.
type UpdateFieldConfig struct {
	Field string `json:"field" validate:"required"`
	Value any    `json:"value"`
}

// CreateActivityLogConfig writes one audit entry.
type CreateActivityLogConfig struct {
	Action  string `json:"action"  validate:"required"`
	Details string `json:"details"`
}

// AssignUserConfig assigns the entity to a user id or the first member of a role.
type AssignUserConfig struct {
	UserID string `json:"userId" validate:"required"`
}

// UnknownActionConfig carries an action whose type this build does not know.
type UnknownActionConfig struct {
	Type ActionType      `json:"-"`
	Raw  json.RawMessage `json:"-"`
}

func (SendEmailConfig) ActionType() ActionType          { return ActionTypeSendEmail }
func (CreateNotificationConfig) ActionType() ActionType { return ActionTypeCreateNotification }
func (UpdateFieldConfig) ActionType() ActionType        { return ActionTypeUpdateField }
func (CreateActivityLogConfig) ActionType() ActionType  { return ActionTypeCreateActivityLog }
func (AssignUserConfig) ActionType() ActionType         { return ActionTypeAssignUser }
func (u UnknownActionConfig) ActionType() ActionType    { return u.Type }

func (SendEmailConfig) sealedAction()          {}
func (CreateNotificationConfig) sealedAction() {}
func (UpdateFieldConfig) sealedAction()        {}
func (CreateActivityLogConfig) sealedAction()  {}
func (AssignUserConfig) sealedAction()         {}
func (UnknownActionConfig) sealedAction()      {}

// MarshalJSON keeps the raw payload of unknown actions intact.
func (u UnknownActionConfig) MarshalJSON() ([]byte, error) {
	if len(u.Raw) == 0 {
		return []byte("{}"), nil
	}

	return u.Raw, nil
}

// DecodeActionConfig decodes a raw action_config payload for the given action type.
func DecodeActionConfig(actionType ActionType, raw json.RawMessage) (ActionConfig, error) {
	if len(raw) == 0 || string(raw) == "null" {
		raw = json.RawMessage("{}")
	}

	var err error

	switch actionType {
	case ActionTypeSendEmail:
		var c SendEmailConfig
		err = json.Unmarshal(raw, &c)

		if err == nil {
			return c, nil
		}
	case ActionTypeCreateNotification:
		var c CreateNotificationConfig
		err = json.Unmarshal(raw, &c)

		if err == nil {
			return c, nil
		}
	case ActionTypeUpdateField:
		var c UpdateFieldConfig
		err = json.Unmarshal(raw, &c)

		if err == nil {
			return c, nil
		}
	case ActionTypeCreateActivityLog:
		var c CreateActivityLogConfig
		err = json.Unmarshal(raw, &c)

		if err == nil {
			return c, nil
		}
	case ActionTypeAssignUser:
		var c AssignUserConfig
		err = json.Unmarshal(raw, &c)

		if err == nil {
			return c, nil
		}
	default:
		return UnknownActionConfig{Type: actionType, Raw: raw}, nil
	}

	return nil, fmt.Errorf("failed to decode %s config: %w", actionType, err)
}

// UnmarshalJSON decodes action_config according to action_type.
func (a *Action) UnmarshalJSON(data []byte) error {
	type alias Action

	aux := struct {
		*alias

		Config json.RawMessage `json:"action_config"`
	}{alias: (*alias)(a)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	config, err := DecodeActionConfig(a.ActionType, aux.Config)
	if err != nil {
		return err
	}

	a.Config = config

	return nil
}
