package models

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ErrTypeMismatch is returned when a row's type tag disagrees with its payload variant.
var ErrTypeMismatch = errors.New("type tag does not match payload")

// NewValidator returns the validator configured the way the models expect.
func NewValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

// ValidateTrigger validates the trigger row and its conditions payload.
func ValidateTrigger(validate *validator.Validate, trigger *Trigger) error {
	if err := validate.Struct(trigger); err != nil {
		return fmt.Errorf("trigger %s: %w", trigger.ID, err)
	}

	if trigger.Conditions == nil {
		return fmt.Errorf("trigger %s: conditions are required", trigger.ID)
	}

	if trigger.Conditions.TriggerType() != trigger.TriggerType {
		return fmt.Errorf("trigger %s: %w: %s vs %s", trigger.ID, ErrTypeMismatch, trigger.TriggerType, trigger.Conditions.TriggerType())
	}

	if err := ValidateTriggerConditions(trigger.TriggerType, trigger.Conditions); err != nil {
		return fmt.Errorf("trigger %s: %w", trigger.ID, err)
	}

	if err := validate.Struct(trigger.Conditions); err != nil {
		return fmt.Errorf("trigger %s conditions: %w", trigger.ID, err)
	}

	return nil
}

// ValidateAction validates the action row and its config payload.
func ValidateAction(validate *validator.Validate, action *Action) error {
	if err := validate.Struct(action); err != nil {
		return fmt.Errorf("action %s: %w", action.ID, err)
	}

	if action.Config == nil {
		return fmt.Errorf("action %s: config is required", action.ID)
	}

	if action.Config.ActionType() != action.ActionType {
		return fmt.Errorf("action %s: %w: %s vs %s", action.ID, ErrTypeMismatch, action.ActionType, action.Config.ActionType())
	}

	if err := ValidateActionConfig(action.ActionType, action.Config); err != nil {
		return fmt.Errorf("action %s: %w", action.ID, err)
	}

	if err := validate.Struct(action.Config); err != nil {
		return fmt.Errorf("action %s config: %w", action.ID, err)
	}

	return nil
}

// ValidateDefinition validates a workflow with all of its rows and returns every problem found.
func ValidateDefinition(validate *validator.Validate, def *WorkflowDefinition) error {
	if def == nil || def.Workflow == nil {
		return errors.New("workflow definition is empty")
	}

	var errs []error

	if err := validate.Struct(def.Workflow); err != nil {
		errs = append(errs, fmt.Errorf("workflow %s: %w", def.Workflow.ID, err))
	}

	activeTriggers := 0

	for _, trigger := range def.Triggers {
		if trigger.IsActive {
			activeTriggers++
		}

		if err := ValidateTrigger(validate, trigger); err != nil {
			errs = append(errs, err)
		}
	}

	if activeTriggers == 0 {
		errs = append(errs, fmt.Errorf("workflow %s: at least one active trigger is required", def.Workflow.ID))
	}

	for _, action := range def.Actions {
		if err := ValidateAction(validate, action); err != nil {
			errs = append(errs, err)
		}
	}

	for _, schedule := range def.Schedules {
		if err := schedule.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("schedule %s: %w", schedule.ID, err))
		}
	}

	return errors.Join(errs...)
}
