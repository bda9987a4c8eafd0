package file

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dukex/autorules/pkg/models"
	"github.com/dukex/autorules/pkg/persistence"
)

// workflowRecord is the on-disk shape of a workflow file. Schedules live in their own files
// so the scheduler can update them without rewriting the definition.
type workflowRecord struct {
	Workflow *models.Workflow  `json:"workflow"`
	Triggers []*models.Trigger `json:"triggers"`
	Actions  []*models.Action  `json:"actions"`
}

// SaveWorkflow validates and writes a workflow definition, replacing any previous version.
func (fp *Persistence) SaveWorkflow(_ context.Context, def *models.WorkflowDefinition) error {
	if err := models.ValidateDefinition(fp.validate, def); err != nil {
		return fmt.Errorf("invalid workflow definition: %w", err)
	}

	now := time.Now().UTC()
	if def.Workflow.CreatedAt.IsZero() {
		def.Workflow.CreatedAt = now
	}

	def.Workflow.UpdatedAt = now

	fp.mu.Lock()
	defer fp.mu.Unlock()

	record := workflowRecord{Workflow: def.Workflow, Triggers: def.Triggers, Actions: def.Actions}
	if err := fp.writeJSON(workflowsDir, def.Workflow.ID, record); err != nil {
		return persistence.NewRepositoryError("SaveWorkflow", def.Workflow.ID, err)
	}

	for _, schedule := range def.Schedules {
		if err := fp.writeJSON(schedulesDir, schedule.ID, schedule); err != nil {
			return persistence.NewRepositoryError("SaveSchedule", schedule.ID, err)
		}
	}

	return nil
}

func (fp *Persistence) loadWorkflow(id string) (*workflowRecord, error) {
	var record workflowRecord

	err := fp.readJSON(workflowsDir, id, &record)
	if errors.Is(err, errNotExist) {
		return nil, persistence.ErrWorkflowNotFound
	}

	if err != nil {
		return nil, err
	}

	if record.Workflow == nil {
		return nil, fmt.Errorf("workflow file %s has no workflow", id)
	}

	return &record, nil
}

// GetActiveWorkflows returns active workflows for entityType ordered by creation time.
func (fp *Persistence) GetActiveWorkflows(_ context.Context, entityType string) ([]*models.Workflow, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	ids, err := fp.listIDs(workflowsDir)
	if err != nil {
		return nil, persistence.NewRepositoryError("GetActiveWorkflows", entityType, err)
	}

	workflows := make([]*models.Workflow, 0, len(ids))

	for _, id := range ids {
		record, err := fp.loadWorkflow(id)
		if err != nil {
			return nil, persistence.NewRepositoryError("GetActiveWorkflows", id, err)
		}

		if record.Workflow.EntityType == entityType && record.Workflow.IsActive() {
			workflows = append(workflows, record.Workflow)
		}
	}

	sort.SliceStable(workflows, func(i, j int) bool {
		if workflows[i].CreatedAt.Equal(workflows[j].CreatedAt) {
			return workflows[i].ID < workflows[j].ID
		}

		return workflows[i].CreatedAt.Before(workflows[j].CreatedAt)
	})

	return workflows, nil
}

// GetWorkflow returns one workflow by id regardless of its status.
func (fp *Persistence) GetWorkflow(_ context.Context, id string) (*models.Workflow, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	record, err := fp.loadWorkflow(id)
	if err != nil {
		return nil, persistence.NewRepositoryError("GetWorkflow", id, err)
	}

	return record.Workflow, nil
}

// GetWorkflowTriggers returns all triggers of a workflow, active or not.
func (fp *Persistence) GetWorkflowTriggers(_ context.Context, workflowID string) ([]*models.Trigger, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	record, err := fp.loadWorkflow(workflowID)
	if err != nil {
		return nil, persistence.NewRepositoryError("GetWorkflowTriggers", workflowID, err)
	}

	return record.Triggers, nil
}

// GetWorkflowActions returns all actions of a workflow by ascending sort order.
func (fp *Persistence) GetWorkflowActions(_ context.Context, workflowID string) ([]*models.Action, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	record, err := fp.loadWorkflow(workflowID)
	if err != nil {
		return nil, persistence.NewRepositoryError("GetWorkflowActions", workflowID, err)
	}

	actions := record.Actions
	sort.SliceStable(actions, func(i, j int) bool {
		return actions[i].SortOrder < actions[j].SortOrder
	})

	return actions, nil
}
