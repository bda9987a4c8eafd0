package actions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dukex/autorules/pkg/models"
	"github.com/dukex/autorules/pkg/template"
)

const (
	// AssigneeField is the entity field written by assign_user.
	AssigneeField = "assignedTo"

	defaultNotificationType = "workflow"
	assignmentType          = "assignment"
)

var (
	errNoDirectory = errors.New("user directory not configured")
	errNoMailer    = errors.New("email sender not configured")
	errNoNotifier  = errors.New("notifier not configured")
)

func (e *Executor) sendEmail(ctx context.Context, config models.ActionConfig, inv Invocation) (string, error) {
	cfg, err := configAs[models.SendEmailConfig](config)
	if err != nil {
		return "", err
	}

	if e.collab.Mailer == nil {
		return "", errNoMailer
	}

	email := models.Email{
		To:      strings.TrimSpace(template.Interpolate(cfg.To, inv.Context)),
		Subject: template.Interpolate(cfg.Subject, inv.Context),
		HTML:    template.Interpolate(cfg.Body, inv.Context),
	}

	if email.To == "" {
		return "", fmt.Errorf("email recipient %q resolved to an empty address", cfg.To)
	}

	if err := e.collab.Mailer.SendEmail(ctx, email); err != nil {
		return "", fmt.Errorf("failed to send email: %w", err)
	}

	return "Email sent to " + email.To, nil
}

func (e *Executor) createNotification(ctx context.Context, config models.ActionConfig, inv Invocation) (string, error) {
	cfg, err := configAs[models.CreateNotificationConfig](config)
	if err != nil {
		return "", err
	}

	if e.collab.Notifier == nil {
		return "", errNoNotifier
	}

	target := strings.TrimSpace(template.Interpolate(cfg.UserID, inv.Context))
	if target == "" {
		return "", fmt.Errorf("notification recipient %q resolved to an empty user id", cfg.UserID)
	}

	userIDs, err := e.recipients(ctx, target)
	if err != nil {
		return "", err
	}

	if len(userIDs) == 0 {
		return fmt.Sprintf("No users hold role %s", target), nil
	}

	notificationType := cfg.Type
	if notificationType == "" {
		notificationType = defaultNotificationType
	}

	title := template.Interpolate(cfg.Title, inv.Context)
	message := template.Interpolate(cfg.Message, inv.Context)

	for _, userID := range userIDs {
		err := e.collab.Notifier.CreateNotification(ctx, models.Notification{
			UserID:     userID,
			Type:       notificationType,
			Title:      title,
			Message:    message,
			EntityType: inv.EntityType,
			EntityID:   inv.EntityID,
		})
		if err != nil {
			return "", fmt.Errorf("failed to notify %s: %w", userID, err)
		}
	}

	return fmt.Sprintf("Notification sent to %d user(s)", len(userIDs)), nil
}

func (e *Executor) updateField(ctx context.Context, config models.ActionConfig, inv Invocation) (string, error) {
	cfg, err := configAs[models.UpdateFieldConfig](config)
	if err != nil {
		return "", err
	}

	entityType := targetEntityType(inv)

	updater, ok := e.collab.Updaters[entityType]
	if !ok || updater == nil {
		e.logger.WarnContext(ctx, "Field update skipped for unsupported entity type", "entity_type", entityType, "field", cfg.Field)

		return "", Skip("Unsupported entity type: %s", entityType)
	}

	value := template.InterpolateValue(cfg.Value, inv.Context)

	if err := updater.UpdateField(ctx, inv.EntityID, cfg.Field, value); err != nil {
		return "", fmt.Errorf("failed to update %s.%s: %w", entityType, cfg.Field, err)
	}

	return fmt.Sprintf("Updated %s to %s", cfg.Field, template.Stringify(value)), nil
}

func (e *Executor) createActivityLog(ctx context.Context, config models.ActionConfig, inv Invocation) (string, error) {
	cfg, err := configAs[models.CreateActivityLogConfig](config)
	if err != nil {
		return "", err
	}

	if e.collab.Directory == nil {
		return "", errNoDirectory
	}

	entry := &models.ActivityLog{
		EntityType: inv.EntityType,
		EntityID:   inv.EntityID,
		Action:     template.Interpolate(cfg.Action, inv.Context),
		Details:    template.Interpolate(cfg.Details, inv.Context),
		UserID:     inv.Context.TriggeredBy,
		CreatedAt:  e.now().UTC(),
	}

	if err := e.collab.Directory.CreateActivityLog(ctx, entry); err != nil {
		return "", fmt.Errorf("failed to write activity log: %w", err)
	}

	return "Activity logged: " + entry.Action, nil
}

func (e *Executor) assignUser(ctx context.Context, config models.ActionConfig, inv Invocation) (string, error) {
	cfg, err := configAs[models.AssignUserConfig](config)
	if err != nil {
		return "", err
	}

	if e.collab.Notifier == nil {
		return "", errNoNotifier
	}

	target := strings.TrimSpace(template.Interpolate(cfg.UserID, inv.Context))
	if target == "" {
		return "", fmt.Errorf("assignee %q resolved to an empty user id", cfg.UserID)
	}

	userIDs, err := e.recipients(ctx, target)
	if err != nil {
		return "", err
	}

	if len(userIDs) == 0 {
		return "", fmt.Errorf("no users hold role %s", target)
	}

	assignee := userIDs[0]
	entityType := targetEntityType(inv)

	updater, ok := e.collab.Updaters[entityType]
	if !ok || updater == nil {
		e.logger.WarnContext(ctx, "Assignment skipped for unsupported entity type", "entity_type", entityType)

		return "", Skip("Unsupported entity type: %s", entityType)
	}

	if err := updater.UpdateField(ctx, inv.EntityID, AssigneeField, assignee); err != nil {
		return "", fmt.Errorf("failed to assign %s: %w", assignee, err)
	}

	err = e.collab.Notifier.CreateNotification(ctx, models.Notification{
		UserID:     assignee,
		Type:       assignmentType,
		Title:      fmt.Sprintf("New %s assigned", entityType),
		Message:    fmt.Sprintf("You have been assigned %s %s", entityType, inv.EntityID),
		EntityType: entityType,
		EntityID:   inv.EntityID,
	})
	if err != nil {
		return "", fmt.Errorf("failed to notify assignee %s: %w", assignee, err)
	}

	return "Assigned to " + assignee, nil
}

// recipients resolves a role name to its members. Any other value is a literal user id.
func (e *Executor) recipients(ctx context.Context, target string) ([]string, error) {
	if _, isRole := e.roles[target]; !isRole {
		return []string{target}, nil
	}

	if e.collab.Directory == nil {
		return nil, errNoDirectory
	}

	users, err := e.collab.Directory.GetUsersByRole(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve role %s: %w", target, err)
	}

	ids := make([]string, 0, len(users))
	for _, user := range users {
		if user != nil && user.ID != "" {
			ids = append(ids, user.ID)
		}
	}

	return ids, nil
}

func targetEntityType(inv Invocation) string {
	if v, ok := inv.Context.Field("entityType"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}

	return inv.EntityType
}
