package storage

import (
	"github.com/pkg/errors"
	"github.com/stackagent/conductor/pkg/models"
)

// ErrNotFound is returned when a catalog entity does not exist.
var ErrNotFound = errors.New("not found")

// Store is the workflow catalog: persisted definitions plus finished
// execution summaries. Live per-task execution state is owned by the
// engine's in-memory state store, not by this interface.
type Store interface {
	Begin() (Store, error)
	Commit() error
	Rollback() error
	Close() error

	// Workflow definitions
	SaveWorkflow(wf models.WorkflowDefinition) (int64, error)
	GetWorkflow(id int64) (models.WorkflowDefinition, error)
	ListWorkflows() ([]models.WorkflowDefinition, error)

	// Execution summaries
	SaveExecution(rec models.ExecutionRecord) error
	UpdateExecution(rec models.ExecutionRecord) error
	GetExecution(id string) (models.ExecutionRecord, error)
	ListExecutions(workflowID int64) ([]models.ExecutionRecord, error)
}
