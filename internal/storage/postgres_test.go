package storage_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	internal_storage "github.com/stackagent/conductor/internal/storage"
	"github.com/stackagent/conductor/internal/testutil"
	"github.com/stackagent/conductor/pkg/models"
	"github.com/stackagent/conductor/pkg/storage"
)

func TestPostgresStore(t *testing.T) {
	testDB := testutil.SetupTestDB(t)
	defer testDB.Teardown(t)

	// Helper to create a transactional store
	newTxStore := func(t *testing.T) *internal_storage.PostgresStore {
		store, err := internal_storage.NewPostgresStore(testDB.ConnStr)
		assert.NoError(t, err)
		txStore, err := store.Begin()
		assert.NoError(t, err)
		t.Cleanup(func() { txStore.Rollback() })
		return txStore.(*internal_storage.PostgresStore)
	}

	sampleWorkflow := func(name string) models.WorkflowDefinition {
		return models.WorkflowDefinition{
			Name:        name,
			Description: "fetches a page and summarizes it",
			Tasks: []models.TaskSpec{
				{Name: "fetch", AgentType: "http", Action: "get", Parameters: map[string]any{"url": "${target}"}},
				{Name: "report", AgentType: "analyze", Action: "analyze", DependsOn: []string{"fetch"}, MaxRetries: 2},
			},
			Variables: map[string]any{"target": "https://example.com"},
			OnError:   models.ContinueOnError,
		}
	}

	t.Run("SaveWorkflow", func(t *testing.T) {
		store := newTxStore(t)
		wfID, err := store.SaveWorkflow(sampleWorkflow("save-test"))
		assert.NoError(t, err)
		assert.Greater(t, wfID, int64(0))

		saved, err := store.GetWorkflow(wfID)
		assert.NoError(t, err)
		assert.Equal(t, "save-test", saved.Name)
		assert.Equal(t, models.ContinueOnError, saved.OnError)
		assert.Len(t, saved.Tasks, 2)
		assert.Equal(t, []string{"fetch"}, saved.Tasks[1].DependsOn)
		assert.Equal(t, 2, saved.Tasks[1].MaxRetries)
		assert.Equal(t, "https://example.com", saved.Variables["target"])
		assert.False(t, saved.CreatedAt.IsZero())
	})

	t.Run("GetWorkflowNotFound", func(t *testing.T) {
		store := newTxStore(t)
		_, err := store.GetWorkflow(999999)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("ListWorkflows", func(t *testing.T) {
		store := newTxStore(t)
		_, err := store.SaveWorkflow(sampleWorkflow("list-a"))
		assert.NoError(t, err)
		_, err = store.SaveWorkflow(sampleWorkflow("list-b"))
		assert.NoError(t, err)

		workflows, err := store.ListWorkflows()
		assert.NoError(t, err)
		assert.GreaterOrEqual(t, len(workflows), 2)
	})

	t.Run("SaveAndGetExecution", func(t *testing.T) {
		store := newTxStore(t)
		wfID, err := store.SaveWorkflow(sampleWorkflow("exec-test"))
		assert.NoError(t, err)

		started := time.Now().UTC().Truncate(time.Millisecond)
		rec := models.ExecutionRecord{
			ID:           "exec-1",
			WorkflowID:   wfID,
			WorkflowName: "exec-test",
			Status:       models.RunningExecutionStatus,
			Progress:     0.5,
			StartedAt:    &started,
		}
		assert.NoError(t, store.SaveExecution(rec))

		got, err := store.GetExecution("exec-1")
		assert.NoError(t, err)
		assert.Equal(t, wfID, got.WorkflowID)
		assert.Equal(t, models.RunningExecutionStatus, got.Status)
		assert.Equal(t, 0.5, got.Progress)
		assert.NotNil(t, got.StartedAt)
	})

	t.Run("UpdateExecution", func(t *testing.T) {
		store := newTxStore(t)
		wfID, err := store.SaveWorkflow(sampleWorkflow("update-test"))
		assert.NoError(t, err)

		rec := models.ExecutionRecord{
			ID:           "exec-2",
			WorkflowID:   wfID,
			WorkflowName: "update-test",
			Status:       models.RunningExecutionStatus,
		}
		assert.NoError(t, store.SaveExecution(rec))

		finished := time.Now().UTC().Truncate(time.Millisecond)
		rec.Status = models.FailedExecutionStatus
		rec.Progress = 1.0
		rec.ErrorMsg = "task(s) failed: fetch"
		rec.FinishedAt = &finished
		assert.NoError(t, store.UpdateExecution(rec))

		got, err := store.GetExecution("exec-2")
		assert.NoError(t, err)
		assert.Equal(t, models.FailedExecutionStatus, got.Status)
		assert.Equal(t, 1.0, got.Progress)
		assert.Equal(t, "task(s) failed: fetch", got.ErrorMsg)
		assert.NotNil(t, got.FinishedAt)
	})

	t.Run("GetExecutionNotFound", func(t *testing.T) {
		store := newTxStore(t)
		_, err := store.GetExecution("missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("ListExecutionsByWorkflow", func(t *testing.T) {
		store := newTxStore(t)
		wfA, err := store.SaveWorkflow(sampleWorkflow("by-wf-a"))
		assert.NoError(t, err)
		wfB, err := store.SaveWorkflow(sampleWorkflow("by-wf-b"))
		assert.NoError(t, err)

		for i, wfID := range []int64{wfA, wfA, wfB} {
			started := time.Now().UTC().Add(time.Duration(i) * time.Second)
			assert.NoError(t, store.SaveExecution(models.ExecutionRecord{
				ID:         string(rune('x'+i)) + "-exec",
				WorkflowID: wfID,
				Status:     models.CompletedExecutionStatus,
				StartedAt:  &started,
			}))
		}

		forA, err := store.ListExecutions(wfA)
		assert.NoError(t, err)
		assert.Len(t, forA, 2)

		// latest first
		assert.True(t, !forA[0].StartedAt.Before(*forA[1].StartedAt))
	})

	t.Run("AdHocExecutionWithoutWorkflow", func(t *testing.T) {
		store := newTxStore(t)
		rec := models.ExecutionRecord{
			ID:           "adhoc-1",
			WorkflowName: "one-off",
			Status:       models.CompletedExecutionStatus,
			Progress:     1.0,
		}
		assert.NoError(t, store.SaveExecution(rec))

		got, err := store.GetExecution("adhoc-1")
		assert.NoError(t, err)
		assert.Equal(t, int64(0), got.WorkflowID)
	})

	t.Run("CommitPersistsAcrossConnections", func(t *testing.T) {
		store, err := internal_storage.NewPostgresStore(testDB.ConnStr)
		assert.NoError(t, err)
		defer store.Close()

		txStore, err := store.Begin()
		assert.NoError(t, err)
		wfID, err := txStore.SaveWorkflow(sampleWorkflow("committed"))
		assert.NoError(t, err)
		assert.NoError(t, txStore.Commit())

		other, err := internal_storage.NewPostgresStore(testDB.ConnStr)
		assert.NoError(t, err)
		defer other.Close()
		wf, err := other.GetWorkflow(wfID)
		assert.NoError(t, err)
		assert.Equal(t, "committed", wf.Name)
	})
}
