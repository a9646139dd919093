package storage

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/stackagent/conductor/pkg/models"
)

// mockStore implements Store with in-memory storage for tests.
type mockStore struct {
	mu         *sync.Mutex
	workflows  map[int64]models.WorkflowDefinition
	executions map[string]models.ExecutionRecord
	nextID     *int64
	committed  bool
}

// NewMockStore returns an empty in-memory catalog store.
func NewMockStore() Store {
	var nextID int64
	return &mockStore{
		mu:         &sync.Mutex{},
		workflows:  make(map[int64]models.WorkflowDefinition),
		executions: make(map[string]models.ExecutionRecord),
		nextID:     &nextID,
	}
}

func (m *mockStore) Begin() (Store, error) {
	return &mockStore{
		mu:         m.mu,
		workflows:  m.workflows,
		executions: m.executions,
		nextID:     m.nextID,
	}, nil
}

func (m *mockStore) Commit() error {
	if m.committed {
		return errors.New("already committed")
	}
	m.committed = true
	return nil
}

func (m *mockStore) Rollback() error {
	if m.committed {
		return errors.New("cannot rollback committed transaction")
	}
	return nil
}

func (m *mockStore) Close() error {
	return nil
}

func (m *mockStore) SaveWorkflow(wf models.WorkflowDefinition) (int64, error) {
	if m.committed {
		return 0, errors.New("transaction already committed")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	*m.nextID++
	wf.ID = *m.nextID
	now := time.Now()
	wf.CreatedAt = now
	wf.UpdatedAt = now
	m.workflows[wf.ID] = wf
	return wf.ID, nil
}

func (m *mockStore) GetWorkflow(id int64) (models.WorkflowDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wf, ok := m.workflows[id]
	if !ok {
		return models.WorkflowDefinition{}, ErrNotFound
	}
	return wf, nil
}

func (m *mockStore) ListWorkflows() ([]models.WorkflowDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.WorkflowDefinition, 0, len(m.workflows))
	for id := int64(1); id <= *m.nextID; id++ {
		if wf, ok := m.workflows[id]; ok {
			out = append(out, wf)
		}
	}
	return out, nil
}

func (m *mockStore) SaveExecution(rec models.ExecutionRecord) error {
	if m.committed {
		return errors.New("transaction already committed")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.executions[rec.ID]; ok {
		return errors.New("execution already exists")
	}
	m.executions[rec.ID] = rec
	return nil
}

func (m *mockStore) UpdateExecution(rec models.ExecutionRecord) error {
	if m.committed {
		return errors.New("transaction already committed")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.executions[rec.ID]; !ok {
		return ErrNotFound
	}
	m.executions[rec.ID] = rec
	return nil
}

func (m *mockStore) GetExecution(id string) (models.ExecutionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.executions[id]
	if !ok {
		return models.ExecutionRecord{}, ErrNotFound
	}
	return rec, nil
}

func (m *mockStore) ListExecutions(workflowID int64) ([]models.ExecutionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ExecutionRecord
	for _, rec := range m.executions {
		if workflowID == 0 || rec.WorkflowID == workflowID {
			out = append(out, rec)
		}
	}
	return out, nil
}
