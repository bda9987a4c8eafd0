// Package events defines the execution lifecycle events published by the engine.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/dukex/autorules/pkg/models"
)

type EventType string

// Topics.
const (
	Topic             = "autorules.executions"    // Execution lifecycle events
	EmailTopic        = "autorules.emails"        // Outgoing emails for the delivery subsystem
	NotificationTopic = "autorules.notifications" // In-app notifications for the notification store
)

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"
	ScheduleFiredEvent      EventType = "schedule.fired"
)

type BaseEvent struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	WorkflowID string    `json:"workflow_id"`
}

// NewBaseEvent stamps a new event of eventType for workflowID.
func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.NewString(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
	}
}

type ExecutionStarted struct {
	BaseEvent

	ExecutionID  string           `json:"execution_id"`
	WorkflowName string           `json:"workflow_name"`
	EntityType   string           `json:"entity_type"`
	EntityID     string           `json:"entity_id"`
	EventType    models.EventType `json:"event_type"`
	TriggeredBy  string           `json:"triggered_by,omitempty"`
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

type ExecutionCompleted struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	EntityType  string `json:"entity_type"`
	EntityID    string `json:"entity_id"`
	DurationMs  int64  `json:"duration_ms"`
	Succeeded   int    `json:"succeeded"`
	Failed      int    `json:"failed"`
	Skipped     int    `json:"skipped"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

// NewExecutionCompleted summarizes a completed execution.
func NewExecutionCompleted(execution *models.Execution) ExecutionCompleted {
	event := ExecutionCompleted{
		BaseEvent:   NewBaseEvent(ExecutionCompletedEvent, execution.WorkflowID),
		ExecutionID: execution.ID,
		EntityType:  execution.EntityType,
		EntityID:    execution.EntityID,
		DurationMs:  execution.DurationMs,
	}

	for _, result := range execution.ExecutionLog {
		switch result.Status {
		case models.ActionStatusSuccess:
			event.Succeeded++
		case models.ActionStatusFailed:
			event.Failed++
		case models.ActionStatusSkipped:
			event.Skipped++
		}
	}

	return event
}

type ExecutionFailed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	EntityType  string `json:"entity_type"`
	EntityID    string `json:"entity_id"`
	DurationMs  int64  `json:"duration_ms"`
	Error       string `json:"error"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}

type ScheduleFired struct {
	BaseEvent

	ScheduleID     string    `json:"schedule_id"`
	CronExpression string    `json:"cron_expression"`
	FiredAt        time.Time `json:"fired_at"`
	NextRunAt      time.Time `json:"next_run_at"`
}

func (e ScheduleFired) GetType() EventType {
	return ScheduleFiredEvent
}
