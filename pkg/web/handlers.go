package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/dukex/autorules/pkg/models"
	"github.com/dukex/autorules/pkg/persistence"
)

const defaultExecutionsLimit = 50

// Engine is the part of the automation engine the API drives.
type Engine interface {
	TriggerWorkflowsAsync(ctx context.Context, entityType, entityID string, tctx models.TriggerContext)
	RunWorkflow(ctx context.Context, workflowID, entityID string, tctx models.TriggerContext) (*models.Execution, error)
}

type APIHandlers struct {
	engine     Engine
	repository persistence.Repository
	validator  *validator.Validate
	logger     *slog.Logger
}

func NewAPIHandlers(
	engine Engine,
	repository persistence.Repository,
	validator *validator.Validate,
	logger *slog.Logger,
) *APIHandlers {
	return &APIHandlers{
		engine:     engine,
		repository: repository,
		validator:  validator,
		logger:     logger.With("module", "api"),
	}
}

// IngestEvent queues an entity event for evaluation and answers before any workflow runs.
func (h *APIHandlers) IngestEvent(c fiber.Ctx) error {
	var req EventRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	h.engine.TriggerWorkflowsAsync(c.Context(), req.EntityType, req.EntityID, req.TriggerContext())

	h.logger.DebugContext(c.Context(), "Event accepted",
		"entity_type", req.EntityType,
		"entity_id", req.EntityID,
		"event_type", req.EventType)

	return c.Status(fiber.StatusAccepted).JSON(AcceptedResponse{
		Status:     "accepted",
		EntityType: req.EntityType,
		EntityID:   req.EntityID,
	})
}

// RunWorkflow evaluates one workflow synchronously and returns its execution.
func (h *APIHandlers) RunWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req RunWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	execution, err := h.engine.RunWorkflow(c.Context(), id, req.EntityID, req.TriggerContext())
	if err != nil {
		return handleError(c, err)
	}

	if execution == nil {
		return c.SendStatus(fiber.StatusNoContent)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) GetWorkflowExecutions(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	limit := fiber.Query[int](c, "limit", defaultExecutionsLimit)
	if limit < 0 {
		return badRequest(c, "limit must not be negative")
	}

	if _, err := h.repository.GetWorkflow(c.Context(), id); err != nil {
		return handleError(c, err)
	}

	executions, err := h.repository.GetWorkflowExecutions(c.Context(), id, limit)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(ExecutionsResponse{
		WorkflowID: id,
		Executions: executions,
		Count:      len(executions),
	})
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	execution, err := h.repository.GetWorkflowExecution(c.Context(), id)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	message := "autorules is healthy"
	repositoryCheck := "ok"
	httpStatus := http.StatusOK

	if err := h.repository.HealthCheck(c.Context()); err != nil {
		status = "unhealthy"
		message = "autorules is unhealthy"
		repositoryCheck = err.Error()
		httpStatus = http.StatusServiceUnavailable
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}
