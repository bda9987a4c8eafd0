package models

import (
	"errors"
	"fmt"
	"time"
)

// ExecutionStatus is the lifecycle state of one workflow firing.
type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

// ActionStatus is the outcome of one action attempt.
type ActionStatus string

const (
	ActionStatusSuccess ActionStatus = "success"
	ActionStatusFailed  ActionStatus = "failed"
	ActionStatusSkipped ActionStatus = "skipped"
)

// ErrInvalidTransition is returned when an execution leaves a terminal state.
var ErrInvalidTransition = errors.New("invalid execution status transition")

// ActionExecutionResult records one action attempt. It is never mutated after being appended.
type ActionExecutionResult struct {
	ActionID   string       `json:"action_id"`
	ActionType ActionType   `json:"action_type"`
	Status     ActionStatus `json:"status"`
	Details    string       `json:"details"`
	Timestamp  time.Time    `json:"timestamp"`
	Error      string       `json:"error,omitempty"`
}

// Execution is the audit record of a single workflow firing for one entity.
type Execution struct {
	ID           string                  `json:"id"`
	WorkflowID   string                  `json:"workflow_id"`
	EntityType   string                  `json:"entity_type"`
	EntityID     string                  `json:"entity_id"`
	Status       ExecutionStatus         `json:"status"`
	TriggeredBy  string                  `json:"triggered_by,omitempty"`
	ExecutionLog []ActionExecutionResult `json:"execution_log"`
	StartedAt    time.Time               `json:"started_at"`
	CompletedAt  *time.Time              `json:"completed_at,omitempty"`
	DurationMs   int64                   `json:"duration_ms"`
	ErrorMessage string                  `json:"error_message,omitempty"`
	ErrorStack   string                  `json:"error_stack,omitempty"`
}

// IsTerminal reports whether the execution has been finalized.
func (e *Execution) IsTerminal() bool {
	return e.Status == ExecutionStatusCompleted || e.Status == ExecutionStatusFailed
}

// Transition moves the execution to next. Only running -> completed|failed is allowed.
func (e *Execution) Transition(next ExecutionStatus) error {
	if e.Status != ExecutionStatusRunning {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, e.Status, next)
	}

	switch next {
	case ExecutionStatusCompleted, ExecutionStatusFailed:
		e.Status = next

		return nil
	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, e.Status, next)
	}
}

// Apply copies the terminal fields of update onto the execution.
func (e *Execution) Apply(update ExecutionUpdate) error {
	if err := e.Transition(update.Status); err != nil {
		return err
	}

	e.ExecutionLog = update.ExecutionLog
	e.CompletedAt = &update.CompletedAt
	e.DurationMs = update.DurationMs
	e.ErrorMessage = update.ErrorMessage
	e.ErrorStack = update.ErrorStack

	return nil
}

// ExecutionUpdate is the patch that finalizes an execution.
type ExecutionUpdate struct {
	Status       ExecutionStatus         `json:"status"`
	ExecutionLog []ActionExecutionResult `json:"execution_log"`
	CompletedAt  time.Time               `json:"completed_at"`
	DurationMs   int64                   `json:"duration_ms"`
	ErrorMessage string                  `json:"error_message,omitempty"`
	ErrorStack   string                  `json:"error_stack,omitempty"`
}
