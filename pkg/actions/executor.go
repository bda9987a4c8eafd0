// Package actions executes the ordered effects of a firing workflow.
package actions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/dukex/autorules/pkg/expression"
	"github.com/dukex/autorules/pkg/log"
	"github.com/dukex/autorules/pkg/models"
	"github.com/dukex/autorules/pkg/persistence"
	"github.com/dukex/autorules/pkg/template"
)

const (
	detailsInactive     = "Action is inactive"
	detailsConditionNot = "Condition not met"
	detailsUnsupported  = "Unsupported action type"
	detailsFailed       = "Action execution failed"
)

// EmailSender delivers rendered emails.
type EmailSender interface {
	SendEmail(ctx context.Context, email models.Email) error
}

// Notifier stores in-app notifications.
type Notifier interface {
	CreateNotification(ctx context.Context, notification models.Notification) error
}

// EntityUpdater writes one field of an entity of a single type.
type EntityUpdater interface {
	UpdateField(ctx context.Context, entityID, field string, value any) error
}

// Invocation identifies the execution an action runs for and carries the trigger context.
type Invocation struct {
	WorkflowID  string
	ExecutionID string
	EntityType  string
	EntityID    string
	Context     models.TriggerContext
}

// Handler performs one action type. The returned string becomes the result details.
type Handler interface {
	Handle(ctx context.Context, config models.ActionConfig, inv Invocation) (string, error)
}

type HandlerFunc func(ctx context.Context, config models.ActionConfig, inv Invocation) (string, error)

func (f HandlerFunc) Handle(ctx context.Context, config models.ActionConfig, inv Invocation) (string, error) {
	return f(ctx, config, inv)
}

// SkipError turns a handler outcome into a skipped result.
type SkipError struct {
	Reason string
}

func (e *SkipError) Error() string {
	return e.Reason
}

func Skip(format string, args ...any) error {
	return &SkipError{Reason: fmt.Sprintf(format, args...)}
}

// Collaborators are the external systems the built-in handlers call.
type Collaborators struct {
	Directory persistence.Directory
	Mailer    EmailSender
	Notifier  Notifier
	// Updaters maps an entity type to its field updater.
	Updaters map[string]EntityUpdater
	// Roles lists the names that resolve to role members. Empty means models.DefaultRoles.
	Roles []string
}

type Executor struct {
	logger      *slog.Logger
	collab      Collaborators
	roles       map[string]struct{}
	handlers    map[models.ActionType]Handler
	expressions *expression.Evaluator
	now         func() time.Time
}

type Option func(*Executor)

func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		e.now = now
	}
}

// WithHandler registers or replaces the handler of an action type.
func WithHandler(actionType models.ActionType, handler Handler) Option {
	return func(e *Executor) {
		e.handlers[actionType] = handler
	}
}

func NewExecutor(collab Collaborators, logger *slog.Logger, opts ...Option) *Executor {
	if logger == nil {
		logger = slog.Default()
	}

	logger = logger.With("module", "action_executor")

	roles := collab.Roles
	if len(roles) == 0 {
		roles = models.DefaultRoles()
	}

	e := &Executor{
		logger:      logger,
		collab:      collab,
		roles:       make(map[string]struct{}, len(roles)),
		expressions: expression.NewEvaluator(logger),
		now:         time.Now,
	}

	for _, role := range roles {
		e.roles[strings.TrimSpace(role)] = struct{}{}
	}

	e.handlers = map[models.ActionType]Handler{
		models.ActionTypeSendEmail:          HandlerFunc(e.sendEmail),
		models.ActionTypeCreateNotification: HandlerFunc(e.createNotification),
		models.ActionTypeUpdateField:        HandlerFunc(e.updateField),
		models.ActionTypeCreateActivityLog:  HandlerFunc(e.createActivityLog),
		models.ActionTypeAssignUser:         HandlerFunc(e.assignUser),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Execute runs one action and always returns a result. Handler errors and panics become
// failed results.
func (e *Executor) Execute(ctx context.Context, action *models.Action, inv Invocation) (result models.ActionExecutionResult) {
	result = models.ActionExecutionResult{
		ActionID:   action.ID,
		ActionType: action.ActionType,
		Timestamp:  e.now().UTC(),
	}

	logger := log.FromContext(ctx, e.logger).With(
		"action_id", action.ID,
		"action_type", action.ActionType,
		"execution_id", inv.ExecutionID,
	)

	defer func() {
		if r := recover(); r != nil {
			logger.ErrorContext(ctx, "Action handler panicked", "panic", fmt.Sprint(r))

			result.Status = models.ActionStatusFailed
			result.Details = detailsFailed
			result.Error = fmt.Sprintf("panic: %v", r)
		}
	}()

	if !action.IsActive {
		return skipped(result, detailsInactive)
	}

	if strings.TrimSpace(action.ConditionExpression) != "" {
		if !e.expressions.Evaluate(action.ConditionExpression, template.Merged(inv.Context)) {
			logger.DebugContext(ctx, "Action condition not met", "condition", action.ConditionExpression)

			return skipped(result, detailsConditionNot)
		}
	}

	if action.DelayMinutes > 0 {
		logger.InfoContext(ctx, "Action delay recorded; running inline", "delay_minutes", action.DelayMinutes)
	}

	actionType := action.ActionType
	if action.Config != nil {
		actionType = action.Config.ActionType()
	}

	handler, ok := e.handlers[actionType]
	if !ok {
		logger.WarnContext(ctx, "Unsupported action type")

		return skipped(result, detailsUnsupported)
	}

	details, err := handler.Handle(ctx, action.Config, inv)

	var skip *SkipError
	if errors.As(err, &skip) {
		logger.InfoContext(ctx, "Action skipped", "reason", skip.Reason)

		return skipped(result, skip.Reason)
	}

	if err != nil {
		logger.ErrorContext(ctx, "Action failed", "error", err)

		result.Status = models.ActionStatusFailed
		result.Details = detailsFailed
		result.Error = err.Error()

		return result
	}

	result.Status = models.ActionStatusSuccess
	result.Details = details

	return result
}

// ExecuteAll runs actions by ascending sort order. record, when set, receives each result
// as soon as it is produced.
func (e *Executor) ExecuteAll(ctx context.Context, actions []*models.Action, inv Invocation, record func(models.ActionExecutionResult)) []models.ActionExecutionResult {
	sorted := SortActions(actions)
	results := make([]models.ActionExecutionResult, 0, len(sorted))

	for _, action := range sorted {
		result := e.Execute(ctx, action, inv)
		if record != nil {
			record(result)
		}

		results = append(results, result)
	}

	return results
}

// SortActions returns the non-nil actions ordered by SortOrder. Ties keep their input order.
func SortActions(actions []*models.Action) []*models.Action {
	sorted := make([]*models.Action, 0, len(actions))
	for _, action := range actions {
		if action != nil {
			sorted = append(sorted, action)
		}
	}

	slices.SortStableFunc(sorted, func(a, b *models.Action) int {
		return a.SortOrder - b.SortOrder
	})

	return sorted
}

func skipped(result models.ActionExecutionResult, details string) models.ActionExecutionResult {
	result.Status = models.ActionStatusSkipped
	result.Details = details

	return result
}

func configAs[T models.ActionConfig](config models.ActionConfig) (T, error) {
	typed, ok := config.(T)
	if !ok {
		var zero T

		return zero, fmt.Errorf("unexpected config %T for %s", config, zero.ActionType())
	}

	return typed, nil
}
