package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/autorules/pkg/actions"
	"github.com/dukex/autorules/pkg/engine"
	"github.com/dukex/autorules/pkg/log"
	"github.com/dukex/autorules/pkg/models"
	"github.com/dukex/autorules/pkg/persistence/file"
	"github.com/dukex/autorules/pkg/testutil"
	"github.com/dukex/autorules/pkg/web"
)

type testEnv struct {
	app    *fiber.App
	store  *file.Persistence
	engine *engine.Engine
}

func setupTestApp(t *testing.T) *testEnv {
	t.Helper()

	store := file.NewPersistence(t.TempDir())

	executor := actions.NewExecutor(actions.Collaborators{
		Directory: store,
		Updaters:  map[string]actions.EntityUpdater{"quote": store.EntityUpdater("quote")},
	}, log.Discard())

	eng, err := engine.New(engine.Dependencies{
		Repository: store,
		Executor:   executor,
		Logger:     log.Discard(),
	})
	require.NoError(t, err)

	handlers := web.NewAPIHandlers(eng, store, models.NewValidator(), log.Discard())

	sent := testutil.CreateTestWorkflow("wf-sent", "quote",
		testutil.WithName("Quote sent"),
		testutil.WithTrigger(models.StatusChangeConditions{To: testutil.Ptr("sent")}),
		testutil.WithTrigger(models.ManualConditions{}),
		testutil.WithAction(models.CreateActivityLogConfig{Action: "quote_sent", Details: "Quote {{number}} sent"}),
	)
	require.NoError(t, store.SaveWorkflow(context.Background(), sent))

	paused := testutil.CreateTestWorkflow("wf-paused", "quote",
		testutil.WithLogic(models.TriggerLogicAnd),
		testutil.WithStatus(models.WorkflowStatusInactive),
		testutil.WithTrigger(models.ManualConditions{}),
	)
	require.NoError(t, store.SaveWorkflow(context.Background(), paused))

	return &testEnv{app: web.NewApp(handlers), store: store, engine: eng}
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = bytes.NewBufferString(b)
		default:
			payload, err := json.Marshal(body)
			require.NoError(t, err)

			reader = bytes.NewBuffer(payload)
		}
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	return resp, data
}

func TestAPIHandlers_IngestEvent(t *testing.T) {
	tests := []struct {
		name           string
		body           any
		expectedStatus int
		expectedError  string
		wantExecutions int
	}{
		{
			name: "matching event is accepted and executed",
			body: web.EventRequest{
				EntityType: "quote",
				EntityID:   "q-1",
				EventType:  models.EventTypeStatusChange,
				OldValue:   "draft",
				NewValue:   "sent",
				Entity:     map[string]any{"number": "Q-1"},
			},
			expectedStatus: http.StatusAccepted,
			wantExecutions: 1,
		},
		{
			name: "non matching event is accepted",
			body: web.EventRequest{
				EntityType: "quote",
				EntityID:   "q-1",
				EventType:  models.EventTypeStatusChange,
				OldValue:   "draft",
				NewValue:   "rejected",
			},
			expectedStatus: http.StatusAccepted,
		},
		{
			name:           "missing entity id",
			body:           web.EventRequest{EntityType: "quote", EventType: models.EventTypeCreated},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "EntityID",
		},
		{
			name:           "unknown event type",
			body:           web.EventRequest{EntityType: "quote", EntityID: "q-1", EventType: "deleted"},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "EventType",
		},
		{
			name:           "invalid json",
			body:           "{not json",
			expectedStatus: http.StatusBadRequest,
			expectedError:  "Invalid JSON format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestApp(t)

			resp, body := doJSON(t, env.app, http.MethodPost, "/events", tt.body)
			env.engine.Wait()

			assert.Equal(t, tt.expectedStatus, resp.StatusCode)

			if tt.expectedError != "" {
				assert.Contains(t, string(body), tt.expectedError)

				return
			}

			var accepted web.AcceptedResponse
			require.NoError(t, json.Unmarshal(body, &accepted))
			assert.Equal(t, "accepted", accepted.Status)

			executions, err := env.store.GetWorkflowExecutions(context.Background(), "wf-sent", 0)
			require.NoError(t, err)
			assert.Len(t, executions, tt.wantExecutions)
		})
	}
}

func TestAPIHandlers_RunWorkflow(t *testing.T) {
	tests := []struct {
		name           string
		workflowID     string
		body           any
		expectedStatus int
		expectedType   string
	}{
		{
			name:           "manual run",
			workflowID:     "wf-sent",
			body:           web.RunWorkflowRequest{EntityID: "q-9", Entity: map[string]any{"number": "Q-9"}, TriggeredBy: "u-1"},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "triggers not matched",
			workflowID:     "wf-sent",
			body:           web.RunWorkflowRequest{EntityID: "q-9", EventType: models.EventTypeCreated},
			expectedStatus: http.StatusNoContent,
		},
		{
			name:           "unknown workflow",
			workflowID:     "wf-missing",
			body:           web.RunWorkflowRequest{EntityID: "q-9"},
			expectedStatus: http.StatusNotFound,
			expectedType:   "workflow_not_found",
		},
		{
			name:           "inactive workflow",
			workflowID:     "wf-paused",
			body:           web.RunWorkflowRequest{EntityID: "q-9"},
			expectedStatus: http.StatusConflict,
			expectedType:   "workflow_inactive",
		},
		{
			name:           "missing entity id",
			workflowID:     "wf-sent",
			body:           web.RunWorkflowRequest{},
			expectedStatus: http.StatusBadRequest,
			expectedType:   "validation_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestApp(t)

			resp, body := doJSON(t, env.app, http.MethodPost, "/workflows/"+tt.workflowID+"/run", tt.body)
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)

			if tt.expectedType != "" {
				var problem map[string]any
				require.NoError(t, json.Unmarshal(body, &problem))
				assert.Equal(t, tt.expectedType, problem["type"])

				return
			}

			if resp.StatusCode == http.StatusNoContent {
				assert.Empty(t, body)

				return
			}

			var execution models.Execution
			require.NoError(t, json.Unmarshal(body, &execution))
			assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
			assert.Equal(t, "q-9", execution.EntityID)
			assert.Equal(t, "u-1", execution.TriggeredBy)
			require.Len(t, execution.ExecutionLog, 1)
			assert.Equal(t, models.ActionStatusSuccess, execution.ExecutionLog[0].Status)
		})
	}
}

func TestAPIHandlers_Executions(t *testing.T) {
	env := setupTestApp(t)

	for _, entityID := range []string{"q-1", "q-2", "q-3"} {
		resp, _ := doJSON(t, env.app, http.MethodPost, "/workflows/wf-sent/run", web.RunWorkflowRequest{EntityID: entityID})
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	t.Run("list", func(t *testing.T) {
		resp, body := doJSON(t, env.app, http.MethodGet, "/workflows/wf-sent/executions", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var list web.ExecutionsResponse
		require.NoError(t, json.Unmarshal(body, &list))
		assert.Equal(t, "wf-sent", list.WorkflowID)
		assert.Equal(t, 3, list.Count)
	})

	t.Run("list with limit", func(t *testing.T) {
		resp, body := doJSON(t, env.app, http.MethodGet, "/workflows/wf-sent/executions?limit=2", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var list web.ExecutionsResponse
		require.NoError(t, json.Unmarshal(body, &list))
		assert.Len(t, list.Executions, 2)
	})

	t.Run("negative limit", func(t *testing.T) {
		resp, _ := doJSON(t, env.app, http.MethodGet, "/workflows/wf-sent/executions?limit=-1", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unknown workflow", func(t *testing.T) {
		resp, _ := doJSON(t, env.app, http.MethodGet, "/workflows/nope/executions", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("single execution", func(t *testing.T) {
		executions, err := env.store.GetWorkflowExecutions(context.Background(), "wf-sent", 1)
		require.NoError(t, err)
		require.Len(t, executions, 1)

		resp, body := doJSON(t, env.app, http.MethodGet, "/executions/"+executions[0].ID, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var execution models.Execution
		require.NoError(t, json.Unmarshal(body, &execution))
		assert.Equal(t, executions[0].ID, execution.ID)
	})

	t.Run("unknown execution", func(t *testing.T) {
		resp, body := doJSON(t, env.app, http.MethodGet, "/executions/missing", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Contains(t, string(body), "execution_not_found")
	})
}

type stubEngine struct {
	err error
}

func (stubEngine) TriggerWorkflowsAsync(context.Context, string, string, models.TriggerContext) {}

func (s stubEngine) RunWorkflow(context.Context, string, string, models.TriggerContext) (*models.Execution, error) {
	return nil, s.err
}

func TestAPIHandlers_RunWorkflowInternalError(t *testing.T) {
	store := file.NewPersistence(t.TempDir())
	handlers := web.NewAPIHandlers(stubEngine{err: errors.New("boom")}, store, models.NewValidator(), log.Discard())
	app := web.NewApp(handlers)

	resp, body := doJSON(t, app, http.MethodPost, "/workflows/wf/run", web.RunWorkflowRequest{EntityID: "q"})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, string(body), "internal_error")
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	env := setupTestApp(t)

	resp, body := doJSON(t, env.app, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health map[string]any
	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, "healthy", health["status"])
}
