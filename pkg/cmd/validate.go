package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/dukex/autorules/pkg/models"
	"github.com/dukex/autorules/pkg/persistence"
)

// LoadDefinition reads and validates a workflow definition JSON file.
func LoadDefinition(validate *validator.Validate, path string) (*models.WorkflowDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var def models.WorkflowDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if err := models.ValidateDefinition(validate, &def); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return &def, nil
}

// ValidateStored checks every active workflow of entityTypes and every active schedule
// held by the repository. It returns the joined problems, or nil when all rows are valid.
func ValidateStored(ctx context.Context, validate *validator.Validate, repository persistence.Repository, entityTypes []string) (int, error) {
	var errs []error

	checked := 0

	for _, entityType := range entityTypes {
		workflows, err := repository.GetActiveWorkflows(ctx, entityType)
		if err != nil {
			return checked, fmt.Errorf("failed to list %s workflows: %w", entityType, err)
		}

		for _, workflow := range workflows {
			checked++

			if err := validate.Struct(workflow); err != nil {
				errs = append(errs, fmt.Errorf("workflow %s: %w", workflow.ID, err))
			}

			triggers, err := repository.GetWorkflowTriggers(ctx, workflow.ID)
			if err != nil {
				errs = append(errs, fmt.Errorf("workflow %s: %w", workflow.ID, err))

				continue
			}

			for _, trigger := range triggers {
				if err := models.ValidateTrigger(validate, trigger); err != nil {
					errs = append(errs, err)
				}
			}

			workflowActions, err := repository.GetWorkflowActions(ctx, workflow.ID)
			if err != nil {
				errs = append(errs, fmt.Errorf("workflow %s: %w", workflow.ID, err))

				continue
			}

			for _, action := range workflowActions {
				if err := models.ValidateAction(validate, action); err != nil {
					errs = append(errs, err)
				}
			}
		}
	}

	schedules, err := repository.GetActiveWorkflowSchedules(ctx)
	if err != nil {
		return checked, fmt.Errorf("failed to list schedules: %w", err)
	}

	for _, schedule := range schedules {
		if err := schedule.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("schedule %s: %w", schedule.ID, err))
		}
	}

	return checked, errors.Join(errs...)
}
