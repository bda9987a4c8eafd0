package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/autorules/pkg/actions"
	"github.com/dukex/autorules/pkg/engine"
	"github.com/dukex/autorules/pkg/eventbus"
	"github.com/dukex/autorules/pkg/events"
	"github.com/dukex/autorules/pkg/lock"
	"github.com/dukex/autorules/pkg/log"
	"github.com/dukex/autorules/pkg/models"
	"github.com/dukex/autorules/pkg/persistence"
	"github.com/dukex/autorules/pkg/persistence/file"
	"github.com/dukex/autorules/pkg/testutil"
	"github.com/dukex/autorules/pkg/trigger"
)

func timePtr(t time.Time) *time.Time { return &t }

type call struct {
	EntityType string
	EntityID   string
	Context    models.TriggerContext
}

// recordingTrigger opens one execution per call unless idle is set.
type recordingTrigger struct {
	mu    sync.Mutex
	calls []call
	idle  bool
}

func (r *recordingTrigger) Fire(_ context.Context, entityType, entityID string, tctx models.TriggerContext) []*models.Execution {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, call{EntityType: entityType, EntityID: entityID, Context: tctx})

	if r.idle {
		return nil
	}

	return []*models.Execution{{ID: entityID, EntityType: entityType, EntityID: entityID, Status: models.ExecutionStatusCompleted}}
}

func (r *recordingTrigger) Calls() []call {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]call(nil), r.calls...)
}

// memoryStore keeps schedules without validation so malformed expressions can be stored.
type memoryStore struct {
	mu        sync.Mutex
	workflows map[string]*models.Workflow
	schedules []*models.Schedule
	listErr   error
	updateErr error
}

func (m *memoryStore) GetWorkflow(_ context.Context, id string) (*models.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wf, ok := m.workflows[id]
	if !ok {
		return nil, persistence.NewRepositoryError("GetWorkflow", id, persistence.ErrWorkflowNotFound)
	}

	return wf, nil
}

func (m *memoryStore) GetActiveWorkflowSchedules(context.Context) ([]*models.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.listErr != nil {
		return nil, m.listErr
	}

	var active []*models.Schedule

	for _, s := range m.schedules {
		if s.IsActive {
			copied := *s
			active = append(active, &copied)
		}
	}

	return active, nil
}

func (m *memoryStore) UpdateWorkflowSchedule(_ context.Context, id string, update models.ScheduleUpdate) (*models.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.updateErr != nil {
		return nil, m.updateErr
	}

	for _, s := range m.schedules {
		if s.ID == id {
			s.Apply(update)

			return s, nil
		}
	}

	return nil, persistence.ErrScheduleNotFound
}

func (m *memoryStore) schedule(id string) *models.Schedule {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.schedules {
		if s.ID == id {
			copied := *s

			return &copied
		}
	}

	return nil
}

var now = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func newMemoryStore() *memoryStore {
	return &memoryStore{
		workflows: map[string]*models.Workflow{
			"wf-invoices": {ID: "wf-invoices", Name: "Overdue invoices", EntityType: "invoice", Status: models.WorkflowStatusActive},
			"wf-paused":   {ID: "wf-paused", Name: "Paused", EntityType: "invoice", Status: models.WorkflowStatusInactive},
		},
	}
}

func TestNextRun(t *testing.T) {
	s := New(newMemoryStore(), &recordingTrigger{}, log.Discard())

	tests := []struct {
		name       string
		expression string
		want       time.Time
	}{
		{"daily at nine", "0 9 * * *", time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)},
		{"every fifteen minutes", "*/15 * * * *", now.Add(15 * time.Minute)},
		{"descriptor", "@hourly", now.Add(time.Hour)},
		{"malformed falls back a day", "not a cron", now.Add(FallbackDelay)},
		{"six fields are rejected", "0 0 9 * * *", now.Add(FallbackDelay)},
		{"empty", "", now.Add(FallbackDelay)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.want.Equal(s.NextRun(tt.expression, now)), "got %s", s.NextRun(tt.expression, now))
		})
	}

	_, err := NextRun("bogus", now)
	assert.ErrorIs(t, err, models.ErrInvalidSchedule)
}

func TestProcessDueSchedules(t *testing.T) {
	store := newMemoryStore()
	store.schedules = []*models.Schedule{
		{ID: "due", WorkflowID: "wf-invoices", CronExpression: "0 9 * * *", NextRunAt: timePtr(now.Add(-time.Minute)), IsActive: true},
		{ID: "never-run", WorkflowID: "wf-invoices", CronExpression: "@hourly", IsActive: true},
		{ID: "future", WorkflowID: "wf-invoices", CronExpression: "0 9 * * *", NextRunAt: timePtr(now.Add(time.Hour)), IsActive: true},
		{ID: "disabled", WorkflowID: "wf-invoices", CronExpression: "0 9 * * *", IsActive: false},
	}

	trigger := &recordingTrigger{}
	s := New(store, trigger, log.Discard(), WithClock(func() time.Time { return now }))

	fired := s.ProcessDueSchedules(context.Background())
	assert.Equal(t, 2, fired)

	calls := trigger.Calls()
	require.Len(t, calls, 2)

	assert.Equal(t, "invoice", calls[0].EntityType)
	assert.Equal(t, "schedule:due", calls[0].EntityID)
	assert.Equal(t, models.EventTypeTimeBased, calls[0].Context.EventType)
	assert.Equal(t, map[string]any{
		"scheduleId":  "due",
		"workflowId":  "wf-invoices",
		"scheduledAt": now.Format(time.RFC3339),
	}, calls[0].Context.Entity)
	assert.Equal(t, "schedule:never-run", calls[1].EntityID)

	due := store.schedule("due")
	require.NotNil(t, due.LastRunAt)
	assert.True(t, now.Equal(*due.LastRunAt))
	assert.True(t, time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC).Equal(*due.NextRunAt))

	neverRun := store.schedule("never-run")
	assert.True(t, now.Add(time.Hour).Equal(*neverRun.NextRunAt))

	future := store.schedule("future")
	assert.Nil(t, future.LastRunAt)

	// Nothing is due until the clock reaches the next run.
	assert.Equal(t, 0, s.ProcessDueSchedules(context.Background()))
	assert.Len(t, trigger.Calls(), 2)
}

func TestProcessDueSchedules_MalformedCronDoesNotRefire(t *testing.T) {
	store := newMemoryStore()
	store.schedules = []*models.Schedule{
		{ID: "broken", WorkflowID: "wf-invoices", CronExpression: "every day at nine", IsActive: true},
	}

	trigger := &recordingTrigger{}
	clock := now
	s := New(store, trigger, log.Discard(), WithClock(func() time.Time { return clock }))

	assert.Equal(t, 1, s.ProcessDueSchedules(context.Background()))
	assert.True(t, now.Add(FallbackDelay).Equal(*store.schedule("broken").NextRunAt))

	clock = now.Add(time.Hour)
	assert.Equal(t, 0, s.ProcessDueSchedules(context.Background()))
	assert.Len(t, trigger.Calls(), 1)
}

func TestProcessDueSchedules_WorkflowProblemsStillAdvance(t *testing.T) {
	store := newMemoryStore()
	store.schedules = []*models.Schedule{
		{ID: "paused", WorkflowID: "wf-paused", CronExpression: "0 9 * * *", IsActive: true},
		{ID: "orphan", WorkflowID: "wf-missing", CronExpression: "0 9 * * *", IsActive: true},
	}

	trigger := &recordingTrigger{}
	s := New(store, trigger, log.Discard(), WithClock(func() time.Time { return now }))

	assert.Equal(t, 0, s.ProcessDueSchedules(context.Background()))
	assert.Empty(t, trigger.Calls())

	for _, id := range []string{"paused", "orphan"} {
		schedule := store.schedule(id)
		require.NotNil(t, schedule.NextRunAt, id)
		assert.True(t, schedule.NextRunAt.After(now), id)
	}
}

func TestProcessDueSchedules_StoreErrors(t *testing.T) {
	t.Run("listing fails", func(t *testing.T) {
		store := newMemoryStore()
		store.listErr = errors.New("database unreachable")

		trigger := &recordingTrigger{}
		s := New(store, trigger, log.Discard())

		assert.NotPanics(t, func() { assert.Equal(t, 0, s.ProcessDueSchedules(context.Background())) })
		assert.Empty(t, trigger.Calls())
	})

	t.Run("update fails", func(t *testing.T) {
		store := newMemoryStore()
		store.updateErr = errors.New("read only")
		store.schedules = []*models.Schedule{
			{ID: "due", WorkflowID: "wf-invoices", CronExpression: "0 9 * * *", IsActive: true},
		}

		trigger := &recordingTrigger{}
		s := New(store, trigger, log.Discard(), WithClock(func() time.Time { return now }))

		assert.Equal(t, 1, s.ProcessDueSchedules(context.Background()))
		assert.Len(t, trigger.Calls(), 1)
	})
}

type panickingTrigger struct{}

func (panickingTrigger) Fire(context.Context, string, string, models.TriggerContext) []*models.Execution {
	panic("engine exploded")
}

func TestProcessDueSchedules_RecoversFromPanics(t *testing.T) {
	store := newMemoryStore()
	store.schedules = []*models.Schedule{
		{ID: "due", WorkflowID: "wf-invoices", CronExpression: "0 9 * * *", IsActive: true},
	}

	s := New(store, panickingTrigger{}, log.Discard(), WithClock(func() time.Time { return now }))

	assert.NotPanics(t, func() { assert.Equal(t, 0, s.ProcessDueSchedules(context.Background())) })
}

type denyingLocker struct{}

func (denyingLocker) TryLock(context.Context, string, time.Duration) (lock.Release, bool, error) {
	return nil, false, nil
}

type brokenLocker struct{}

func (brokenLocker) TryLock(context.Context, string, time.Duration) (lock.Release, bool, error) {
	return nil, false, errors.New("redis down")
}

func TestProcessDueSchedules_Locking(t *testing.T) {
	tests := []struct {
		name   string
		locker lock.Locker
		want   int
	}{
		{"lock held elsewhere", denyingLocker{}, 0},
		{"lock backend down", brokenLocker{}, 0},
		{"noop lock", lock.Noop{}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemoryStore()
			store.schedules = []*models.Schedule{
				{ID: "due", WorkflowID: "wf-invoices", CronExpression: "0 9 * * *", IsActive: true},
			}

			trigger := &recordingTrigger{}
			s := New(store, trigger, log.Discard(), WithLocker(tt.locker), WithClock(func() time.Time { return now }))

			assert.Equal(t, tt.want, s.ProcessDueSchedules(context.Background()))
			assert.Len(t, trigger.Calls(), tt.want)
		})
	}
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (p *capturingPublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)

	return nil
}

func TestProcessDueSchedules_PublishesScheduleFired(t *testing.T) {
	store := newMemoryStore()
	store.schedules = []*models.Schedule{
		{ID: "due", WorkflowID: "wf-invoices", CronExpression: "0 9 * * *", IsActive: true},
		{ID: "paused", WorkflowID: "wf-paused", CronExpression: "0 9 * * *", IsActive: true},
	}

	publisher := &capturingPublisher{}
	s := New(store, &recordingTrigger{}, log.Discard(), WithPublisher(publisher), WithClock(func() time.Time { return now }))

	s.ProcessDueSchedules(context.Background())

	require.Len(t, publisher.events, 1)

	fired, ok := publisher.events[0].(events.ScheduleFired)
	require.True(t, ok)
	assert.Equal(t, "due", fired.ScheduleID)
	assert.Equal(t, "wf-invoices", fired.WorkflowID)
	assert.True(t, now.Equal(fired.FiredAt))
	assert.True(t, time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC).Equal(fired.NextRunAt))
}

func TestProcessDueSchedules_NothingRan(t *testing.T) {
	store := newMemoryStore()
	store.schedules = []*models.Schedule{
		{ID: "due", WorkflowID: "wf-invoices", CronExpression: "0 9 * * *", IsActive: true},
	}

	trigger := &recordingTrigger{idle: true}
	publisher := &capturingPublisher{}
	s := New(store, trigger, log.Discard(), WithPublisher(publisher), WithClock(func() time.Time { return now }))

	assert.Equal(t, 0, s.ProcessDueSchedules(context.Background()))
	assert.Len(t, trigger.Calls(), 1)
	assert.Empty(t, publisher.events)

	due := store.schedule("due")
	require.NotNil(t, due.NextRunAt)
	assert.True(t, time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC).Equal(*due.NextRunAt))
	assert.Equal(t, 0, s.ProcessDueSchedules(context.Background()), "advanced schedule is not due again")
}

func TestProcessDueSchedules_FileStore(t *testing.T) {
	store := file.NewPersistence(t.TempDir())
	ctx := context.Background()
	clock := func() time.Time { return now }

	require.NoError(t, store.SaveWorkflow(ctx, testutil.CreateTestWorkflow("wf-daily", "invoice",
		testutil.WithName("Daily digest"),
		testutil.WithTrigger(models.DateBasedConditions{Field: "scheduledAt", Operator: models.DateIsToday}),
		testutil.WithAction(models.CreateActivityLogConfig{Action: "Digest sent", Details: "{{scheduledAt}}"}),
		testutil.WithSchedule("0 9 * * *"),
	)))
	require.NoError(t, store.SaveWorkflow(ctx, testutil.CreateTestWorkflow("wf-approved", "quote",
		testutil.WithName("Approved quotes"),
		testutil.WithTrigger(models.StatusChangeConditions{To: testutil.Ptr("approved")}),
		testutil.WithAction(models.CreateActivityLogConfig{Action: "Quote approved"}),
		testutil.WithSchedule("0 9 * * *"),
	)))

	eng, err := engine.New(engine.Dependencies{
		Repository: store,
		Executor:   actions.NewExecutor(actions.Collaborators{Directory: store}, log.Discard()),
		Evaluator:  trigger.NewEvaluator(log.Discard(), trigger.WithClock(clock)),
		Logger:     log.Discard(),
	})
	require.NoError(t, err)

	publisher := &capturingPublisher{}
	s := New(store, eng, log.Discard(), WithPublisher(publisher), WithClock(clock))

	assert.Equal(t, 1, s.ProcessDueSchedules(ctx))

	daily, err := store.GetWorkflowExecutions(ctx, "wf-daily", 0)
	require.NoError(t, err)
	require.Len(t, daily, 1)
	assert.Equal(t, models.ExecutionStatusCompleted, daily[0].Status)
	assert.True(t, strings.HasPrefix(daily[0].EntityID, "schedule:"), daily[0].EntityID)

	logs, err := store.ActivityLogs(ctx, "invoice", daily[0].EntityID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "Digest sent", logs[0].Action)
	assert.Equal(t, now.Format(time.RFC3339), logs[0].Details)

	approved, err := store.GetWorkflowExecutions(ctx, "wf-approved", 0)
	require.NoError(t, err)
	assert.Empty(t, approved, "a time_based event does not match a status_change trigger")

	require.Len(t, publisher.events, 1)
	assert.Equal(t, "wf-daily", publisher.events[0].(events.ScheduleFired).WorkflowID)

	schedules, err := store.GetActiveWorkflowSchedules(ctx)
	require.NoError(t, err)
	require.Len(t, schedules, 2)

	for _, schedule := range schedules {
		require.NotNil(t, schedule.NextRunAt, schedule.WorkflowID)
		assert.True(t, time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC).Equal(*schedule.NextRunAt), schedule.WorkflowID)
	}
}

func TestStartStop(t *testing.T) {
	store := newMemoryStore()
	store.schedules = []*models.Schedule{
		{ID: "due", WorkflowID: "wf-invoices", CronExpression: "@every 1h", IsActive: true},
	}

	trigger := &recordingTrigger{}
	s := New(store, trigger, log.Discard(), WithInterval(10*time.Millisecond))

	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	require.NoError(t, s.Start(ctx), "second start is a no-op")

	require.Eventually(t, func() bool { return len(trigger.Calls()) == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, s.Stop(ctx))
	require.NoError(t, s.Stop(ctx), "second stop is a no-op")

	calls := len(trigger.Calls())
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, calls, len(trigger.Calls()))
}
