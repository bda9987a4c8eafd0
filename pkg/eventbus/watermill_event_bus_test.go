package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/autorules/pkg/channels/gochannel"
	"github.com/dukex/autorules/pkg/events"
	"github.com/dukex/autorules/pkg/models"
)

func newTestBus(t *testing.T) *WatermillEventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := NewWatermillEventBus(pub, sub)
	t.Cleanup(func() { _ = bus.Close() })

	return bus
}

func TestWatermillEventBus_PublishAndHandle(t *testing.T) {
	bus := newTestBus(t)
	received := make(chan any, 1)

	require.NoError(t, bus.Handle(events.ExecutionCompletedEvent, func(_ context.Context, event any) error {
		received <- event

		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	execution := &models.Execution{
		ID:         "exec-1",
		WorkflowID: "wf-1",
		EntityType: "quote",
		EntityID:   "q-1",
		DurationMs: 42,
		ExecutionLog: []models.ActionExecutionResult{
			{ActionID: "a1", Status: models.ActionStatusSuccess},
			{ActionID: "a2", Status: models.ActionStatusFailed},
			{ActionID: "a3", Status: models.ActionStatusSkipped},
			{ActionID: "a4", Status: models.ActionStatusSuccess},
		},
	}

	require.NoError(t, bus.Publish(ctx, execution.WorkflowID, events.NewExecutionCompleted(execution)))

	select {
	case event := <-received:
		completed, ok := event.(*events.ExecutionCompleted)
		require.True(t, ok, "unexpected event type %T", event)

		assert.Equal(t, "exec-1", completed.ExecutionID)
		assert.Equal(t, "wf-1", completed.WorkflowID)
		assert.Equal(t, events.ExecutionCompletedEvent, completed.Type)
		assert.Equal(t, int64(42), completed.DurationMs)
		assert.Equal(t, 2, completed.Succeeded)
		assert.Equal(t, 1, completed.Failed)
		assert.Equal(t, 1, completed.Skipped)
	case <-time.After(5 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestWatermillEventBus_UnhandledEventsAreAcked(t *testing.T) {
	bus := newTestBus(t)
	received := make(chan any, 1)

	require.NoError(t, bus.Handle(events.ScheduleFiredEvent, func(_ context.Context, event any) error {
		received <- event

		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	started := events.ExecutionStarted{
		BaseEvent:   events.NewBaseEvent(events.ExecutionStartedEvent, "wf-1"),
		ExecutionID: "exec-1",
	}
	require.NoError(t, bus.Publish(ctx, "wf-1", started))

	fired := events.ScheduleFired{
		BaseEvent:      events.NewBaseEvent(events.ScheduleFiredEvent, "wf-1"),
		ScheduleID:     "s-1",
		CronExpression: "0 9 * * *",
	}
	require.NoError(t, bus.Publish(ctx, "wf-1", fired))

	select {
	case event := <-received:
		got, ok := event.(*events.ScheduleFired)
		require.True(t, ok)
		assert.Equal(t, "s-1", got.ScheduleID)
	case <-time.After(5 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestWatermillEventBus_SubscribeWithoutSubscriber(t *testing.T) {
	pub, _, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := NewWatermillEventBus(pub, nil)
	defer func() { _ = bus.Close() }()

	assert.Error(t, bus.Subscribe(context.Background()))
	assert.NotEmpty(t, bus.GenerateID())
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name      string
		eventType events.EventType
		payload   string
		want      any
		wantErr   bool
	}{
		{
			name:      "execution failed",
			eventType: events.ExecutionFailedEvent,
			payload:   `{"execution_id":"e1","error":"boom"}`,
			want:      &events.ExecutionFailed{ExecutionID: "e1", Error: "boom"},
		},
		{
			name:      "execution started",
			eventType: events.ExecutionStartedEvent,
			payload:   `{"execution_id":"e2","event_type":"manual"}`,
			want:      &events.ExecutionStarted{ExecutionID: "e2", EventType: models.EventTypeManual},
		},
		{
			name:      "unknown type",
			eventType: "nope",
			payload:   `{}`,
			wantErr:   true,
		},
		{
			name:      "malformed payload",
			eventType: events.ScheduleFiredEvent,
			payload:   `{`,
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.eventType, []byte(tt.payload))
			if tt.wantErr {
				assert.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
