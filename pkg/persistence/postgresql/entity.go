package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/dukex/autorules/pkg/persistence"
)

// EntityRepository writes single fields of entity documents of one type.
type EntityRepository struct {
	db         *sql.DB
	logger     *slog.Logger
	entityType string
}

// NewEntityRepository creates a field updater for entityType.
func NewEntityRepository(db *sql.DB, logger *slog.Logger, entityType string) *EntityRepository {
	return &EntityRepository{db: db, logger: logger, entityType: entityType}
}

// SaveEntity stores a whole entity document, replacing any previous one.
func (r *EntityRepository) SaveEntity(ctx context.Context, entityID string, entity map[string]any) error {
	data, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("failed to marshal entity: %w", err)
	}

	query := `
		INSERT INTO entities (entity_type, id, data, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (entity_type, id) DO UPDATE SET
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query, r.entityType, entityID, data, time.Now().UTC())
	if err != nil {
		return persistence.NewRepositoryError("SaveEntity", entityID, err)
	}

	return nil
}

func (r *EntityRepository) GetEntity(ctx context.Context, entityID string) (map[string]any, error) {
	var data []byte

	err := r.db.QueryRowContext(ctx,
		"SELECT data FROM entities WHERE entity_type = $1 AND id = $2",
		r.entityType, entityID,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewRepositoryError("GetEntity", entityID, persistence.ErrEntityNotFound)
	}

	if err != nil {
		return nil, persistence.NewRepositoryError("GetEntity", entityID, err)
	}

	entity := map[string]any{}
	if err := json.Unmarshal(data, &entity); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entity: %w", err)
	}

	return entity, nil
}

// UpdateField sets one top-level field of an existing entity.
func (r *EntityRepository) UpdateField(ctx context.Context, entityID, field string, value any) error {
	if field == "" {
		return persistence.NewRepositoryError("UpdateField", entityID, persistence.ErrInvalidField)
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		return persistence.NewRepositoryError("UpdateField", entityID, fmt.Errorf("%w: %w", persistence.ErrInvalidField, err))
	}

	query := `
		UPDATE entities SET
			data = jsonb_set(data, $3::text[], $4::jsonb, true),
			updated_at = $5
		WHERE entity_type = $1 AND id = $2
	`

	result, err := r.db.ExecContext(ctx, query, r.entityType, entityID, pq.Array([]string{field}), string(encoded), time.Now().UTC())
	if err != nil {
		return persistence.NewRepositoryError("UpdateField", entityID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.NewRepositoryError("UpdateField", entityID, persistence.ErrEntityNotFound)
	}

	return nil
}
