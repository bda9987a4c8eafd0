package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/dukex/autorules/pkg/models"
	"github.com/dukex/autorules/pkg/persistence"
)

// DirectoryRepository handles users and activity log entries.
type DirectoryRepository struct {
	db       *sql.DB
	logger   *slog.Logger
	validate *validator.Validate
}

// NewDirectoryRepository creates a new directory repository.
func NewDirectoryRepository(db *sql.DB, logger *slog.Logger, validate *validator.Validate) *DirectoryRepository {
	return &DirectoryRepository{db: db, logger: logger, validate: validate}
}

func (r *DirectoryRepository) SaveUser(ctx context.Context, user *models.User) error {
	if err := r.validate.Struct(user); err != nil {
		return fmt.Errorf("invalid user: %w", err)
	}

	query := `
		INSERT INTO users (id, name, email, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			role = EXCLUDED.role
	`

	_, err := r.db.ExecContext(ctx, query, user.ID, user.Name, user.Email, user.Role)
	if err != nil {
		return persistence.NewRepositoryError("SaveUser", user.ID, err)
	}

	return nil
}

// GetUsersByRole returns the members of role ordered by id.
func (r *DirectoryRepository) GetUsersByRole(ctx context.Context, role string) ([]*models.User, error) {
	query := `
		SELECT
			id
		  , name
		  , email
		  , role
		FROM users
		WHERE role = $1
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query, role)
	if err != nil {
		return nil, persistence.NewRepositoryError("GetUsersByRole", role, err)
	}

	defer closeRows(ctx, r.logger, rows)

	users := make([]*models.User, 0)

	for rows.Next() {
		var user models.User

		if err := rows.Scan(&user.ID, &user.Name, &user.Email, &user.Role); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}

		users = append(users, &user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}

	return users, nil
}

// CreateActivityLog stores an audit entry, filling its ID and CreatedAt when empty.
func (r *DirectoryRepository) CreateActivityLog(ctx context.Context, entry *models.ActivityLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO activity_logs (id, entity_type, entity_id, action, details, user_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.EntityType,
		entry.EntityID,
		entry.Action,
		entry.Details,
		entry.UserID,
		entry.CreatedAt,
	)
	if err != nil {
		return persistence.NewRepositoryError("CreateActivityLog", entry.ID, err)
	}

	return nil
}

func (r *DirectoryRepository) ActivityLogs(ctx context.Context, entityType, entityID string) ([]*models.ActivityLog, error) {
	query := `
		SELECT
			id
		  , entity_type
		  , entity_id
		  , action
		  , details
		  , user_id
		  , created_at
		FROM activity_logs
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at, id
	`

	rows, err := r.db.QueryContext(ctx, query, entityType, entityID)
	if err != nil {
		return nil, persistence.NewRepositoryError("ActivityLogs", entityID, err)
	}

	defer closeRows(ctx, r.logger, rows)

	entries := make([]*models.ActivityLog, 0)

	for rows.Next() {
		var entry models.ActivityLog

		err := rows.Scan(&entry.ID, &entry.EntityType, &entry.EntityID, &entry.Action, &entry.Details, &entry.UserID, &entry.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity log: %w", err)
		}

		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate activity logs: %w", err)
	}

	return entries, nil
}
