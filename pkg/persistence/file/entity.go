package file

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/dukex/autorules/pkg/persistence"
)

// EntityUpdater writes single fields of entities stored as JSON objects under
// entities/<entityType>/<id>.json.
type EntityUpdater struct {
	fp         *Persistence
	entityType string
}

// EntityUpdater returns the field updater for one entity type.
func (fp *Persistence) EntityUpdater(entityType string) *EntityUpdater {
	return &EntityUpdater{fp: fp, entityType: entityType}
}

func (u *EntityUpdater) dir() string {
	return filepath.Join(entitiesDir, u.entityType)
}

// SaveEntity stores a whole entity document.
func (u *EntityUpdater) SaveEntity(_ context.Context, entityID string, entity map[string]any) error {
	if err := validateID(u.entityType); err != nil {
		return err
	}

	u.fp.mu.Lock()
	defer u.fp.mu.Unlock()

	return u.fp.writeJSON(u.dir(), entityID, entity)
}

// GetEntity loads an entity document.
func (u *EntityUpdater) GetEntity(_ context.Context, entityID string) (map[string]any, error) {
	if err := validateID(u.entityType); err != nil {
		return nil, err
	}

	u.fp.mu.RLock()
	defer u.fp.mu.RUnlock()

	entity := map[string]any{}

	err := u.fp.readJSON(u.dir(), entityID, &entity)
	if errors.Is(err, errNotExist) {
		return nil, persistence.NewRepositoryError("GetEntity", entityID, persistence.ErrEntityNotFound)
	}

	if err != nil {
		return nil, err
	}

	return entity, nil
}

// UpdateField sets one field of an existing entity.
func (u *EntityUpdater) UpdateField(_ context.Context, entityID, field string, value any) error {
	if field == "" {
		return persistence.NewRepositoryError("UpdateField", entityID, persistence.ErrInvalidField)
	}

	if err := validateID(u.entityType); err != nil {
		return persistence.NewRepositoryError("UpdateField", entityID, err)
	}

	u.fp.mu.Lock()
	defer u.fp.mu.Unlock()

	entity := map[string]any{}

	err := u.fp.readJSON(u.dir(), entityID, &entity)
	if errors.Is(err, errNotExist) {
		err = persistence.ErrEntityNotFound
	}

	if err != nil {
		return persistence.NewRepositoryError("UpdateField", entityID, err)
	}

	entity[field] = value

	if err := u.fp.writeJSON(u.dir(), entityID, entity); err != nil {
		return persistence.NewRepositoryError("UpdateField", entityID, err)
	}

	return nil
}
