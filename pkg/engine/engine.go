// Package engine is the entry point business code calls after it commits an entity mutation.
//
// TriggerWorkflows never returns an error and never panics: automation failures must not
// fail the business transaction that caused them. Failures are visible through the
// execution audit log, the logs and the execution lifecycle events.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dukex/autorules/pkg/actions"
	"github.com/dukex/autorules/pkg/eventbus"
	"github.com/dukex/autorules/pkg/events"
	"github.com/dukex/autorules/pkg/execution"
	"github.com/dukex/autorules/pkg/log"
	"github.com/dukex/autorules/pkg/models"
	"github.com/dukex/autorules/pkg/otelhelper"
	"github.com/dukex/autorules/pkg/persistence"
	"github.com/dukex/autorules/pkg/trigger"
)

var (
	ErrMissingRepository = errors.New("engine requires a repository")
	ErrMissingExecutor   = errors.New("engine requires an action executor")
	ErrWorkflowInactive  = errors.New("workflow is inactive")
)

// Dependencies wires an Engine. Only Repository and Executor are required.
type Dependencies struct {
	Repository persistence.Repository
	Executor   *actions.Executor
	Evaluator  *trigger.Evaluator
	Recorder   *execution.Recorder
	Publisher  eventbus.EventPublisher
	Tracer     trace.Tracer
	Logger     *slog.Logger
}

type Engine struct {
	repository persistence.Repository
	executor   *actions.Executor
	evaluator  *trigger.Evaluator
	recorder   *execution.Recorder
	publisher  eventbus.EventPublisher
	tracer     trace.Tracer
	logger     *slog.Logger

	inflight sync.WaitGroup
}

func New(deps Dependencies) (*Engine, error) {
	if deps.Repository == nil {
		return nil, ErrMissingRepository
	}

	if deps.Executor == nil {
		return nil, ErrMissingExecutor
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		repository: deps.Repository,
		executor:   deps.Executor,
		evaluator:  deps.Evaluator,
		recorder:   deps.Recorder,
		publisher:  deps.Publisher,
		tracer:     deps.Tracer,
		logger:     logger.With("module", "engine"),
	}

	if e.evaluator == nil {
		e.evaluator = trigger.NewEvaluator(logger)
	}

	if e.recorder == nil {
		e.recorder = execution.NewRecorder(deps.Repository, logger)
	}

	if e.tracer == nil {
		e.tracer = otelhelper.NoopTracer()
	}

	return e, nil
}

// TriggerWorkflows evaluates every active workflow of entityType against tctx and executes
// the ones that fire, one at a time in repository order. It always returns normally.
func (e *Engine) TriggerWorkflows(ctx context.Context, entityType, entityID string, tctx models.TriggerContext) {
	e.Fire(ctx, entityType, entityID, tctx)
}

// Fire behaves like TriggerWorkflows and returns the executions it opened, in order.
// Workflows whose triggers did not match contribute nothing.
func (e *Engine) Fire(ctx context.Context, entityType, entityID string, tctx models.TriggerContext) (executions []*models.Execution) {
	logger := log.FromContext(ctx, e.logger).With(
		"entity_type", entityType,
		"entity_id", entityID,
		"event_type", tctx.EventType,
	)

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.trigger_workflows",
		attribute.String(otelhelper.EntityTypeKey, entityType),
		attribute.String(otelhelper.EntityIDKey, entityID),
		attribute.String(otelhelper.EventTypeKey, string(tctx.EventType)),
	)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("trigger workflows panicked: %v", r)
			otelhelper.SetError(span, err)
			logger.Error("Workflow automation failed", "error", err)
		}
	}()

	workflows, err := e.repository.GetActiveWorkflows(ctx, entityType)
	if err != nil {
		otelhelper.SetError(span, err)
		logger.Error("Failed to load active workflows", "error", err)

		return nil
	}

	if len(workflows) == 0 {
		logger.Debug("No active workflows for entity type")

		return nil
	}

	ctx = log.WithContext(ctx, logger)

	for _, workflow := range workflows {
		if workflow == nil {
			continue
		}

		execution, err := e.process(ctx, workflow, entityID, tctx)
		if err != nil {
			logger.Error("Workflow failed", "workflow_id", workflow.ID, "error", err)

			continue
		}

		if execution != nil {
			executions = append(executions, execution)
		}
	}

	return executions
}

// TriggerWorkflowsAsync runs TriggerWorkflows in the background. The call is detached from
// ctx cancellation but keeps its values. Wait blocks until every background call returned.
func (e *Engine) TriggerWorkflowsAsync(ctx context.Context, entityType, entityID string, tctx models.TriggerContext) {
	detached := context.WithoutCancel(ctx)

	e.inflight.Add(1)

	go func() {
		defer e.inflight.Done()

		e.TriggerWorkflows(detached, entityType, entityID, tctx)
	}()
}

func (e *Engine) Wait() {
	e.inflight.Wait()
}

// RunWorkflow evaluates and executes a single workflow for entityID. It returns a nil
// execution when the workflow's triggers did not match. An empty event type means manual.
func (e *Engine) RunWorkflow(ctx context.Context, workflowID, entityID string, tctx models.TriggerContext) (*models.Execution, error) {
	workflow, err := e.repository.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow %s: %w", workflowID, err)
	}

	if !workflow.IsActive() {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowInactive, workflowID)
	}

	if tctx.EventType == "" {
		tctx.EventType = models.EventTypeManual
	}

	return e.process(ctx, workflow, entityID, tctx)
}

// process is the per-workflow isolation boundary.
func (e *Engine) process(ctx context.Context, workflow *models.Workflow, entityID string, tctx models.TriggerContext) (result *models.Execution, err error) {
	logger := log.FromContext(ctx, e.logger).With("workflow_id", workflow.ID)

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("workflow %s panicked: %v", workflow.ID, r)
		}
	}()

	triggers, err := e.repository.GetWorkflowTriggers(ctx, workflow.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load triggers: %w", err)
	}

	if !e.evaluator.EvaluateWorkflow(ctx, workflow, triggers, tctx) {
		logger.Debug("Workflow did not fire")

		return nil, nil
	}

	logger.Info("Workflow fired", "workflow_name", workflow.Name)

	return e.execute(log.WithContext(ctx, logger), workflow, entityID, tctx)
}

func (e *Engine) execute(ctx context.Context, workflow *models.Workflow, entityID string, tctx models.TriggerContext) (*models.Execution, error) {
	logger := log.FromContext(ctx, e.logger)

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.execute_workflow",
		attribute.String(otelhelper.WorkflowIDKey, workflow.ID),
		attribute.String(otelhelper.WorkflowNameKey, workflow.Name),
		attribute.String(otelhelper.EntityIDKey, entityID),
	)
	defer span.End()

	run, err := e.recorder.Open(ctx, workflow, entityID, tctx)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	span.SetAttributes(attribute.String(otelhelper.ExecutionIDKey, run.ID()))
	logger = logger.With("execution_id", run.ID())

	e.publish(ctx, workflow.ID, events.ExecutionStarted{
		BaseEvent:    events.NewBaseEvent(events.ExecutionStartedEvent, workflow.ID),
		ExecutionID:  run.ID(),
		WorkflowName: workflow.Name,
		EntityType:   workflow.EntityType,
		EntityID:     entityID,
		EventType:    tctx.EventType,
		TriggeredBy:  tctx.TriggeredBy,
	})

	if cause := e.runActions(ctx, workflow, entityID, tctx, run); cause != nil {
		otelhelper.SetError(span, cause)
		logger.Error("Workflow execution failed", "error", cause)

		return e.fail(ctx, workflow, run, cause)
	}

	completed, err := run.Complete(ctx)
	if err != nil {
		otelhelper.SetError(span, err)
		logger.Error("Failed to complete execution", "error", err)

		return e.fail(ctx, workflow, run, err)
	}

	logger.Info("Workflow execution completed", "duration_ms", completed.DurationMs, "actions", len(completed.ExecutionLog))

	e.publish(ctx, workflow.ID, events.NewExecutionCompleted(completed))

	return completed, nil
}

func (e *Engine) fail(ctx context.Context, workflow *models.Workflow, run *execution.Run, cause error) (*models.Execution, error) {
	failed, err := run.Fail(ctx, cause)
	if err != nil {
		return nil, errors.Join(cause, err)
	}

	e.publish(ctx, workflow.ID, events.ExecutionFailed{
		BaseEvent:   events.NewBaseEvent(events.ExecutionFailedEvent, workflow.ID),
		ExecutionID: failed.ID,
		EntityType:  failed.EntityType,
		EntityID:    failed.EntityID,
		DurationMs:  failed.DurationMs,
		Error:       failed.ErrorMessage,
	})

	return failed, nil
}

// runActions returns a non-nil error only for structural failures. Action failures are
// recorded in the run and never surface here.
func (e *Engine) runActions(ctx context.Context, workflow *models.Workflow, entityID string, tctx models.TriggerContext, run *execution.Run) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = pkgerrors.Errorf("action loop panicked: %v", r)
		}
	}()

	workflowActions, err := e.repository.GetWorkflowActions(ctx, workflow.ID)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to load workflow actions")
	}

	e.executor.ExecuteAll(ctx, workflowActions, actions.Invocation{
		WorkflowID:  workflow.ID,
		ExecutionID: run.ID(),
		EntityType:  workflow.EntityType,
		EntityID:    entityID,
		Context:     tctx,
	}, run.Record)

	return nil
}

func (e *Engine) publish(ctx context.Context, key string, event eventbus.Event) {
	if e.publisher == nil {
		return
	}

	if err := e.publisher.Publish(ctx, key, event); err != nil {
		log.FromContext(ctx, e.logger).Warn("Failed to publish lifecycle event", "event", event.GetType(), "error", err)
	}
}
