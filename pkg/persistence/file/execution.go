package file

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"

	"github.com/dukex/autorules/pkg/models"
	"github.com/dukex/autorules/pkg/persistence"
)

// CreateWorkflowExecution stores a new execution. An empty ID is filled with a UUID.
func (fp *Persistence) CreateWorkflowExecution(_ context.Context, execution *models.Execution) (*models.Execution, error) {
	created := *execution
	if created.ID == "" {
		created.ID = uuid.NewString()
	}

	if created.ExecutionLog == nil {
		created.ExecutionLog = make([]models.ActionExecutionResult, 0)
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()

	if err := fp.writeJSON(executionsDir, created.ID, &created); err != nil {
		return nil, persistence.NewRepositoryError("CreateWorkflowExecution", created.ID, err)
	}

	return &created, nil
}

// UpdateWorkflowExecution finalizes an execution. Terminal executions cannot be updated.
func (fp *Persistence) UpdateWorkflowExecution(_ context.Context, id string, update models.ExecutionUpdate) (*models.Execution, error) {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	execution, err := fp.loadExecution(id)
	if err != nil {
		return nil, persistence.NewRepositoryError("UpdateWorkflowExecution", id, err)
	}

	if err := execution.Apply(update); err != nil {
		return nil, persistence.NewRepositoryError("UpdateWorkflowExecution", id, err)
	}

	if err := fp.writeJSON(executionsDir, id, execution); err != nil {
		return nil, persistence.NewRepositoryError("UpdateWorkflowExecution", id, err)
	}

	return execution, nil
}

func (fp *Persistence) loadExecution(id string) (*models.Execution, error) {
	var execution models.Execution

	err := fp.readJSON(executionsDir, id, &execution)
	if errors.Is(err, errNotExist) {
		return nil, persistence.ErrExecutionNotFound
	}

	if err != nil {
		return nil, err
	}

	return &execution, nil
}

func (fp *Persistence) GetWorkflowExecution(_ context.Context, id string) (*models.Execution, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	execution, err := fp.loadExecution(id)
	if err != nil {
		return nil, persistence.NewRepositoryError("GetWorkflowExecution", id, err)
	}

	return execution, nil
}

func (fp *Persistence) GetWorkflowExecutions(_ context.Context, workflowID string, limit int) ([]*models.Execution, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	ids, err := fp.listIDs(executionsDir)
	if err != nil {
		return nil, persistence.NewRepositoryError("GetWorkflowExecutions", workflowID, err)
	}

	executions := make([]*models.Execution, 0)

	for _, id := range ids {
		execution, err := fp.loadExecution(id)
		if err != nil {
			return nil, persistence.NewRepositoryError("GetWorkflowExecutions", id, err)
		}

		if execution.WorkflowID == workflowID {
			executions = append(executions, execution)
		}
	}

	sort.SliceStable(executions, func(i, j int) bool {
		return executions[i].StartedAt.After(executions[j].StartedAt)
	})

	if limit > 0 && len(executions) > limit {
		executions = executions[:limit]
	}

	return executions, nil
}
