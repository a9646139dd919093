package service

import (
	"context"

	"github.com/pkg/errors"

	"github.com/stackagent/conductor/pkg/engine"
	"github.com/stackagent/conductor/pkg/graph"
	"github.com/stackagent/conductor/pkg/models"
	"github.com/stackagent/conductor/pkg/storage"
)

// WorkflowService fronts the workflow catalog and the execution engine. It
// validates and persists definitions, launches executions, and mirrors
// terminal execution summaries back into the catalog for history.
type WorkflowService struct {
	store  storage.Store
	engine *engine.Engine
	state  *engine.StateStore
	logger engine.Logger
}

func NewWorkflowService(store storage.Store, eng *engine.Engine, state *engine.StateStore, logger engine.Logger) *WorkflowService {
	return &WorkflowService{
		store:  store,
		engine: eng,
		state:  state,
		logger: logger,
	}
}

// CreateWorkflow validates a definition and stores it in the catalog.
// Graph errors reject the submission before anything is persisted.
func (s *WorkflowService) CreateWorkflow(wf models.WorkflowDefinition) (id int64, err error) {
	if wf.Name == "" {
		return 0, errors.New("workflow name cannot be empty")
	}
	if len(wf.Name) > 100 {
		return 0, errors.New("workflow name too long (max 100 characters)")
	}
	if wf.OnError != "" && !wf.OnError.Valid() {
		return 0, errors.Errorf("invalid on_error policy %q; must be 'stop', 'continue' or 'retry'", wf.OnError)
	}
	if _, err := graph.Build(wf.Tasks); err != nil {
		return 0, err
	}

	txStore, err := s.store.Begin()
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			if rollbackErr := txStore.Rollback(); rollbackErr != nil {
				s.logger.Errorf("Failed to rollback after error: %v (original error: %v)", rollbackErr, err)
			}
			return
		}
		if commitErr := txStore.Commit(); commitErr != nil {
			s.logger.Errorf("Failed to commit: %v", commitErr)
			err = commitErr
		}
	}()

	id, err = txStore.SaveWorkflow(wf)
	if err != nil {
		return 0, err
	}
	s.logger.Infof("Created workflow '%s' with ID %d", wf.Name, id)
	return id, nil
}

func (s *WorkflowService) GetWorkflow(id int64) (models.WorkflowDefinition, error) {
	return s.store.GetWorkflow(id)
}

func (s *WorkflowService) ListWorkflows() ([]models.WorkflowDefinition, error) {
	return s.store.ListWorkflows()
}

// StartExecution launches a run of a catalog workflow. Caller-supplied
// variables override the definition's defaults. The run proceeds in the
// background; the returned id is live immediately for polling.
func (s *WorkflowService) StartExecution(workflowID int64, variables map[string]any) (string, error) {
	wf, err := s.store.GetWorkflow(workflowID)
	if err != nil {
		return "", err
	}
	if len(variables) > 0 {
		merged := make(map[string]any, len(wf.Variables)+len(variables))
		for k, v := range wf.Variables {
			merged[k] = v
		}
		for k, v := range variables {
			merged[k] = v
		}
		wf.Variables = merged
	}

	execID, err := s.engine.Submit(wf)
	if err != nil {
		return "", err
	}

	if exec, err := s.state.Get(execID); err == nil {
		if saveErr := s.store.SaveExecution(exec.Record()); saveErr != nil {
			s.logger.Errorf("Failed to save execution %s: %v", execID, saveErr)
		}
	}

	go func() {
		// detached from the request context: an HTTP disconnect must not
		// cancel a running workflow
		if runErr := s.engine.Run(context.Background(), execID); runErr != nil {
			s.logger.Errorf("Execution %s aborted: %v", execID, runErr)
			return
		}
		s.recordFinal(execID)
	}()

	return execID, nil
}

// RunExecution executes a definition synchronously without touching the
// catalog, returning the final snapshot. Used by the CLI's one-shot run.
func (s *WorkflowService) RunExecution(ctx context.Context, wf models.WorkflowDefinition) (models.Execution, error) {
	return s.engine.Execute(ctx, wf)
}

func (s *WorkflowService) recordFinal(execID string) {
	exec, err := s.state.Get(execID)
	if err != nil {
		s.logger.Errorf("Failed to snapshot finished execution %s: %v", execID, err)
		return
	}
	if err := s.store.UpdateExecution(exec.Record()); err != nil {
		s.logger.Errorf("Failed to record execution %s: %v", execID, err)
	}
}

// GetExecution returns the live snapshot of an execution. Runs finished in a
// previous process are served from the catalog summary instead.
func (s *WorkflowService) GetExecution(id string) (models.Execution, error) {
	exec, err := s.state.Get(id)
	if err == nil {
		return exec, nil
	}
	if !errors.Is(err, engine.ErrExecutionNotFound) {
		return models.Execution{}, err
	}
	rec, recErr := s.store.GetExecution(id)
	if recErr != nil {
		return models.Execution{}, engine.ErrExecutionNotFound
	}
	return models.Execution{
		ID:           rec.ID,
		WorkflowID:   rec.WorkflowID,
		WorkflowName: rec.WorkflowName,
		Status:       rec.Status,
		Progress:     rec.Progress,
		ErrorMsg:     rec.ErrorMsg,
		StartedAt:    rec.StartedAt,
		FinishedAt:   rec.FinishedAt,
	}, nil
}

func (s *WorkflowService) GetExecutionLogs(id string) ([]models.LogEntry, error) {
	return s.state.Logs(id)
}

func (s *WorkflowService) ListExecutions() []models.Execution {
	return s.state.List()
}

func (s *WorkflowService) CancelExecution(id string) error {
	return s.engine.Cancel(id)
}

// RegisterTemplates stores the built-in workflow templates in the catalog,
// skipping any that already exist by name.
func (s *WorkflowService) RegisterTemplates() error {
	existing, err := s.store.ListWorkflows()
	if err != nil {
		return err
	}
	known := make(map[string]struct{}, len(existing))
	for _, wf := range existing {
		known[wf.Name] = struct{}{}
	}
	for _, tpl := range models.Templates() {
		if _, ok := known[tpl.Name]; ok {
			continue
		}
		if _, err := s.CreateWorkflow(tpl); err != nil {
			return errors.Wrapf(err, "register template '%s'", tpl.Name)
		}
	}
	return nil
}
