package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ErrUnsupportedType is returned when no schema exists for a trigger or action type.
var ErrUnsupportedType = errors.New("unsupported type")

// JSONSchema represents a JSON Schema for configuration validation
type JSONSchema struct {
	Type                 string               `json:"type"`
	Properties           map[string]*Property `json:"properties,omitempty"`
	Required             []string             `json:"required,omitempty"`
	Title                string               `json:"title,omitempty"`
	Description          string               `json:"description,omitempty"`
	AdditionalProperties *bool                `json:"additionalProperties,omitempty"`
}

// Property represents a JSON Schema property
type Property struct {
	Type        string   `json:"type,omitempty"`
	Description string   `json:"description,omitempty"`
	Enum        []any    `json:"enum,omitempty"`
	MinLength   *int     `json:"minLength,omitempty"`
	Minimum     *float64 `json:"minimum,omitempty"`
}

func ptr[T any](v T) *T { return &v }

var triggerSchemas = map[TriggerType]*JSONSchema{
	TriggerTypeStatusChange: {
		Type:  "object",
		Title: "Status change",
		Properties: map[string]*Property{
			"from": {Type: "string", Description: "Previous status; omitted matches any"},
			"to":   {Type: "string", Description: "New status; omitted matches any"},
		},
	},
	TriggerTypeAmountThreshold: {
		Type:  "object",
		Title: "Amount threshold",
		Properties: map[string]*Property{
			"field": {Type: "string", MinLength: ptr(1)},
			"operator": {Type: "string", Enum: []any{
				string(AmountGreaterThan), string(AmountLessThan), string(AmountEquals),
				string(AmountGreaterThanOrEqual), string(AmountLessThanOrEqual),
			}},
			"value": {Type: "number"},
		},
		Required: []string{"field", "operator", "value"},
	},
	TriggerTypeFieldChange: {
		Type:  "object",
		Title: "Field change",
		Properties: map[string]*Property{
			"field": {Type: "string", MinLength: ptr(1)},
			"operator": {Type: "string", Enum: []any{
				string(FieldEquals), string(FieldNotEquals), string(FieldGreaterThan),
				string(FieldLessThan), string(FieldContains),
			}},
			"value": {Description: "Value compared against the entity field"},
		},
		Required: []string{"field", "operator"},
	},
	TriggerTypeDateBased: {
		Type:  "object",
		Title: "Date based",
		Properties: map[string]*Property{
			"field": {Type: "string", MinLength: ptr(1)},
			"operator": {Type: "string", Enum: []any{
				string(DateDaysBefore), string(DateDaysAfter), string(DateIsOverdue), string(DateIsToday),
			}},
			"value": {Type: "integer", Minimum: ptr(0.0), Description: "Day count for days_before/days_after"},
		},
		Required: []string{"field", "operator"},
	},
	TriggerTypeCreated: {Type: "object", Title: "Created"},
	TriggerTypeManual:  {Type: "object", Title: "Manual"},
}

var actionSchemas = map[ActionType]*JSONSchema{
	ActionTypeSendEmail: {
		Type:  "object",
		Title: "Send email",
		Properties: map[string]*Property{
			"to":      {Type: "string", MinLength: ptr(1), Description: "Recipient; supports {{field}} templates"},
			"subject": {Type: "string", MinLength: ptr(1)},
			"body":    {Type: "string", Description: "HTML body; supports {{field}} templates"},
		},
		Required: []string{"to", "subject"},
	},
	ActionTypeCreateNotification: {
		Type:  "object",
		Title: "Create notification",
		Properties: map[string]*Property{
			"userId":  {Type: "string", MinLength: ptr(1), Description: "User id or role name"},
			"title":   {Type: "string", MinLength: ptr(1)},
			"message": {Type: "string"},
			"type":    {Type: "string"},
		},
		Required: []string{"userId", "title"},
	},
	ActionTypeUpdateField: {
		Type:  "object",
		Title: "Update field",
		Properties: map[string]*Property{
			"field": {Type: "string", MinLength: ptr(1)},
			"value": {Description: "New value; strings support {{field}} templates"},
		},
		Required: []string{"field"},
	},
	ActionTypeCreateActivityLog: {
		Type:  "object",
		Title: "Create activity log",
		Properties: map[string]*Property{
			"action":  {Type: "string", MinLength: ptr(1)},
			"details": {Type: "string"},
		},
		Required: []string{"action"},
	},
	ActionTypeAssignUser: {
		Type:  "object",
		Title: "Assign user",
		Properties: map[string]*Property{
			"userId": {Type: "string", MinLength: ptr(1), Description: "User id or role name"},
		},
		Required: []string{"userId"},
	},
}

// TriggerConditionsSchema returns the JSON schema of a trigger type's conditions.
func TriggerConditionsSchema(triggerType TriggerType) (*JSONSchema, bool) {
	schema, ok := triggerSchemas[triggerType]

	return schema, ok
}

// ActionConfigSchema returns the JSON schema of an action type's config.
func ActionConfigSchema(actionType ActionType) (*JSONSchema, bool) {
	schema, ok := actionSchemas[actionType]

	return schema, ok
}

// ValidateTriggerConditions checks a conditions payload against its type's schema.
func ValidateTriggerConditions(triggerType TriggerType, payload any) error {
	schema, ok := TriggerConditionsSchema(triggerType)
	if !ok {
		return fmt.Errorf("%w: trigger %q", ErrUnsupportedType, triggerType)
	}

	return validateJSONSchema(schema, payload)
}

// ValidateActionConfig checks an action_config payload against its type's schema.
func ValidateActionConfig(actionType ActionType, payload any) error {
	schema, ok := ActionConfigSchema(actionType)
	if !ok {
		return fmt.Errorf("%w: action %q", ErrUnsupportedType, actionType)
	}

	return validateJSONSchema(schema, payload)
}

func validateJSONSchema(schema *JSONSchema, payload any) error {
	schemaLoader := gojsonschema.NewGoLoader(schema)
	dataLoader := gojsonschema.NewGoLoader(payload)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return err
	}

	if !result.Valid() {
		var messages []string
		for _, resultError := range result.Errors() {
			messages = append(messages, resultError.String())
		}

		return fmt.Errorf("JSON schema validation failed: %s", strings.Join(messages, "; "))
	}

	return nil
}
