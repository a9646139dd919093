package engine

import (
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/stackagent/conductor/pkg/models"
)

// ErrExecutionNotFound is returned for lookups of unknown execution ids.
var ErrExecutionNotFound = errors.New("execution not found")

// StateStore keeps live execution records in memory for the lifetime of each
// run. The engine is the sole writer and publishes every transition
// synchronously; readers always get snapshots and never observe a record
// mid-mutation. Task records are partitioned by task name, so concurrent
// sibling tasks never touch the same record.
type StateStore struct {
	mu         sync.RWMutex
	executions map[string]*models.Execution
	order      []string
}

func NewStateStore() *StateStore {
	return &StateStore{executions: make(map[string]*models.Execution)}
}

// Get returns a point-in-time snapshot of one execution.
func (s *StateStore) Get(id string) (models.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	exec, ok := s.executions[id]
	if !ok {
		return models.Execution{}, ErrExecutionNotFound
	}
	return snapshot(exec), nil
}

// List returns snapshots of all known executions in creation order.
func (s *StateStore) List() []models.Execution {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Execution, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, snapshot(s.executions[id]))
	}
	return out
}

// Logs returns every log entry of an execution merged across its tasks and
// ordered by timestamp.
func (s *StateStore) Logs(id string) ([]models.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	exec, ok := s.executions[id]
	if !ok {
		return nil, ErrExecutionNotFound
	}
	var entries []models.LogEntry
	for _, task := range exec.Tasks {
		entries = append(entries, task.Logs...)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries, nil
}

func (s *StateStore) add(exec *models.Execution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executions[exec.ID] = exec
	s.order = append(s.order, exec.ID)
}

// update applies fn to an execution record under the store lock and
// recomputes progress afterwards.
func (s *StateStore) update(id string, fn func(*models.Execution)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exec, ok := s.executions[id]
	if !ok {
		return
	}
	fn(exec)
	recomputeProgress(exec)
}

// updateTask applies fn to a single task record under the store lock.
func (s *StateStore) updateTask(id, taskName string, fn func(*models.TaskExecution)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exec, ok := s.executions[id]
	if !ok {
		return
	}
	task, ok := exec.Tasks[taskName]
	if !ok {
		return
	}
	fn(task)
	recomputeProgress(exec)
}

func (s *StateStore) appendLog(id, taskName, message string) {
	s.updateTask(id, taskName, func(t *models.TaskExecution) {
		t.Logs = append(t.Logs, models.LogEntry{
			TaskName:  taskName,
			Timestamp: time.Now(),
			Message:   message,
		})
	})
}

// progress = terminal tasks / total tasks, clamped so the published value
// never decreases: a failed task re-entering RUNNING during a retry pass
// stops being terminal for a moment, and pollers must not see that dip.
// An empty workflow reaches 1.0 when its execution settles.
func recomputeProgress(exec *models.Execution) {
	if len(exec.Tasks) == 0 {
		if exec.Status.Terminal() {
			exec.Progress = 1.0
		}
		return
	}
	terminal := 0
	for _, task := range exec.Tasks {
		if task.Status.Terminal() {
			terminal++
		}
	}
	if p := float64(terminal) / float64(len(exec.Tasks)); p > exec.Progress {
		exec.Progress = p
	}
}

func snapshot(exec *models.Execution) models.Execution {
	out := *exec
	out.Tasks = make(map[string]*models.TaskExecution, len(exec.Tasks))
	for name, task := range exec.Tasks {
		copied := *task
		copied.Logs = append([]models.LogEntry(nil), task.Logs...)
		out.Tasks[name] = &copied
	}
	out.TaskOrder = append([]string(nil), exec.TaskOrder...)
	return out
}
