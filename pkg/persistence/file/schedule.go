package file

import (
	"context"
	"errors"

	"github.com/dukex/autorules/pkg/models"
	"github.com/dukex/autorules/pkg/persistence"
)

// SaveSchedule writes a schedule, replacing any previous version.
func (fp *Persistence) SaveSchedule(_ context.Context, schedule *models.Schedule) error {
	if err := schedule.Validate(); err != nil {
		return persistence.NewRepositoryError("SaveSchedule", schedule.ID, err)
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()

	if err := fp.writeJSON(schedulesDir, schedule.ID, schedule); err != nil {
		return persistence.NewRepositoryError("SaveSchedule", schedule.ID, err)
	}

	return nil
}

// GetActiveWorkflowSchedules returns every active schedule.
func (fp *Persistence) GetActiveWorkflowSchedules(_ context.Context) ([]*models.Schedule, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	ids, err := fp.listIDs(schedulesDir)
	if err != nil {
		return nil, persistence.NewRepositoryError("GetActiveWorkflowSchedules", "", err)
	}

	schedules := make([]*models.Schedule, 0, len(ids))

	for _, id := range ids {
		var schedule models.Schedule
		if err := fp.readJSON(schedulesDir, id, &schedule); err != nil {
			return nil, persistence.NewRepositoryError("GetActiveWorkflowSchedules", id, err)
		}

		if schedule.IsActive {
			schedules = append(schedules, &schedule)
		}
	}

	return schedules, nil
}

// UpdateWorkflowSchedule stamps the last and next run times of a schedule.
func (fp *Persistence) UpdateWorkflowSchedule(_ context.Context, id string, update models.ScheduleUpdate) (*models.Schedule, error) {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	var schedule models.Schedule

	err := fp.readJSON(schedulesDir, id, &schedule)
	if errors.Is(err, errNotExist) {
		err = persistence.ErrScheduleNotFound
	}

	if err != nil {
		return nil, persistence.NewRepositoryError("UpdateWorkflowSchedule", id, err)
	}

	schedule.Apply(update)

	if err := fp.writeJSON(schedulesDir, id, &schedule); err != nil {
		return nil, persistence.NewRepositoryError("UpdateWorkflowSchedule", id, err)
	}

	return &schedule, nil
}
