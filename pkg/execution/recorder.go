// Package execution records the audit trail of a workflow firing.
package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/dukex/autorules/pkg/models"
	"github.com/dukex/autorules/pkg/persistence"
)

// ErrAlreadyFinalized is returned when Complete or Fail is called on a finished run.
var ErrAlreadyFinalized = errors.New("execution already finalized")

// Recorder opens executions against an ExecutionStore.
type Recorder struct {
	store  persistence.ExecutionStore
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Recorder)

// WithClock overrides the time source for start and completion stamps.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		r.now = now
	}
}

func NewRecorder(store persistence.ExecutionStore, logger *slog.Logger, opts ...Option) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}

	r := &Recorder{
		store:  store,
		logger: logger.With("module", "execution_recorder"),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Open persists a running execution for workflow and entityID.
func (r *Recorder) Open(ctx context.Context, workflow *models.Workflow, entityID string, tctx models.TriggerContext) (*Run, error) {
	started := r.now().UTC()

	execution, err := r.store.CreateWorkflowExecution(ctx, &models.Execution{
		WorkflowID:   workflow.ID,
		EntityType:   workflow.EntityType,
		EntityID:     entityID,
		Status:       models.ExecutionStatusRunning,
		TriggeredBy:  tctx.TriggeredBy,
		ExecutionLog: make([]models.ActionExecutionResult, 0),
		StartedAt:    started,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create execution: %w", err)
	}

	r.logger.DebugContext(ctx, "Execution opened", "execution_id", execution.ID, "workflow_id", workflow.ID, "entity_id", entityID)

	return &Run{
		recorder:  r,
		execution: execution,
		started:   started,
		results:   make([]models.ActionExecutionResult, 0),
	}, nil
}

// Run is one open execution. Results are appended in the order they are recorded.
type Run struct {
	recorder  *Recorder
	execution *models.Execution
	started   time.Time

	mu        sync.Mutex
	results   []models.ActionExecutionResult
	finalized bool
}

func (run *Run) ID() string {
	return run.execution.ID
}

// Execution returns the last persisted state of the execution.
func (run *Run) Execution() *models.Execution {
	run.mu.Lock()
	defer run.mu.Unlock()

	return run.execution
}

// Record appends one action result. Results recorded after finalization are dropped.
func (run *Run) Record(result models.ActionExecutionResult) {
	run.mu.Lock()
	defer run.mu.Unlock()

	if run.finalized {
		run.recorder.logger.Warn("Dropped action result recorded after finalization",
			"execution_id", run.execution.ID, "action_id", result.ActionID)

		return
	}

	run.results = append(run.results, result)
}

// Results returns a copy of the recorded results.
func (run *Run) Results() []models.ActionExecutionResult {
	run.mu.Lock()
	defer run.mu.Unlock()

	return slices.Clone(run.results)
}

// Complete finalizes the execution as completed. When the store rejects the update the run
// stays open and may still be finalized.
func (run *Run) Complete(ctx context.Context) (*models.Execution, error) {
	return run.finalize(ctx, models.ExecutionStatusCompleted, nil)
}

// Fail finalizes the execution as failed, keeping cause's message and stack.
func (run *Run) Fail(ctx context.Context, cause error) (*models.Execution, error) {
	if cause == nil {
		cause = errors.New("workflow execution failed")
	}

	return run.finalize(ctx, models.ExecutionStatusFailed, cause)
}

func (run *Run) finalize(ctx context.Context, status models.ExecutionStatus, cause error) (*models.Execution, error) {
	run.mu.Lock()
	defer run.mu.Unlock()

	if run.finalized {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyFinalized, run.execution.ID)
	}

	completed := run.recorder.now().UTC()
	update := models.ExecutionUpdate{
		Status:       status,
		ExecutionLog: slices.Clone(run.results),
		CompletedAt:  completed,
		DurationMs:   completed.Sub(run.started).Milliseconds(),
	}

	if cause != nil {
		update.ErrorMessage = cause.Error()
		update.ErrorStack = Stack(cause)
	}

	execution, err := run.recorder.store.UpdateWorkflowExecution(ctx, run.execution.ID, update)
	if err != nil {
		return nil, fmt.Errorf("failed to finalize execution %s: %w", run.execution.ID, err)
	}

	run.finalized = true
	run.execution = execution

	run.recorder.logger.DebugContext(ctx, "Execution finalized",
		"execution_id", execution.ID,
		"status", execution.Status,
		"duration_ms", execution.DurationMs,
		"actions", len(update.ExecutionLog),
	)

	return execution, nil
}

type stackTracer interface {
	StackTrace() pkgerrors.StackTrace
}

// Stack renders the stack trace carried by err, or the caller's stack when err has none.
func Stack(err error) string {
	if err == nil {
		return ""
	}

	var traced stackTracer
	if errors.As(err, &traced) {
		return fmt.Sprintf("%+v", traced.StackTrace())
	}

	return fmt.Sprintf("%+v", pkgerrors.WithStack(err).(stackTracer).StackTrace())
}
