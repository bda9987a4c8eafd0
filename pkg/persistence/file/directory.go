package file

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/dukex/autorules/pkg/models"
	"github.com/dukex/autorules/pkg/persistence"
)

func (fp *Persistence) SaveUser(_ context.Context, user *models.User) error {
	if err := fp.validate.Struct(user); err != nil {
		return persistence.NewRepositoryError("SaveUser", user.ID, err)
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()

	if err := fp.writeJSON(usersDir, user.ID, user); err != nil {
		return persistence.NewRepositoryError("SaveUser", user.ID, err)
	}

	return nil
}

// GetUsersByRole returns the users holding role ordered by id.
func (fp *Persistence) GetUsersByRole(_ context.Context, role string) ([]*models.User, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	ids, err := fp.listIDs(usersDir)
	if err != nil {
		return nil, persistence.NewRepositoryError("GetUsersByRole", role, err)
	}

	users := make([]*models.User, 0)

	for _, id := range ids {
		var user models.User
		if err := fp.readJSON(usersDir, id, &user); err != nil {
			return nil, persistence.NewRepositoryError("GetUsersByRole", id, err)
		}

		if user.Role == role {
			users = append(users, &user)
		}
	}

	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })

	return users, nil
}

func (fp *Persistence) CreateActivityLog(_ context.Context, entry *models.ActivityLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()

	if err := fp.writeJSON(activityLogsDir, entry.ID, entry); err != nil {
		return persistence.NewRepositoryError("CreateActivityLog", entry.ID, err)
	}

	return nil
}

// ActivityLogs returns the stored activity log entries for an entity, oldest first.
func (fp *Persistence) ActivityLogs(_ context.Context, entityType, entityID string) ([]*models.ActivityLog, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	ids, err := fp.listIDs(activityLogsDir)
	if err != nil {
		return nil, err
	}

	entries := make([]*models.ActivityLog, 0)

	for _, id := range ids {
		var entry models.ActivityLog
		if err := fp.readJSON(activityLogsDir, id, &entry); err != nil {
			return nil, err
		}

		if entry.EntityType == entityType && entry.EntityID == entityID {
			entries = append(entries, &entry)
		}
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].CreatedAt.Before(entries[j].CreatedAt) })

	return entries, nil
}
