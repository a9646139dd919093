package models

import "time"

type ExecutionStatus string

const (
	PendingExecutionStatus   ExecutionStatus = "PENDING"
	RunningExecutionStatus   ExecutionStatus = "RUNNING"
	CompletedExecutionStatus ExecutionStatus = "COMPLETED"
	FailedExecutionStatus    ExecutionStatus = "FAILED"
	CancelledExecutionStatus ExecutionStatus = "CANCELLED"
)

// Terminal reports whether the execution has settled.
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case CompletedExecutionStatus, FailedExecutionStatus, CancelledExecutionStatus:
		return true
	}
	return false
}

type TaskStatus string

const (
	PendingTaskStatus   TaskStatus = "PENDING"
	RunningTaskStatus   TaskStatus = "RUNNING"
	SucceededTaskStatus TaskStatus = "SUCCEEDED"
	FailedTaskStatus    TaskStatus = "FAILED"
	SkippedTaskStatus   TaskStatus = "SKIPPED"
)

// Terminal reports whether the task has settled.
func (s TaskStatus) Terminal() bool {
	switch s {
	case SucceededTaskStatus, FailedTaskStatus, SkippedTaskStatus:
		return true
	}
	return false
}

// LogEntry is one timestamped line produced while a task ran, tagged with the
// owning task name for traceability.
type LogEntry struct {
	TaskName  string    `json:"task_name"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// TaskExecution is one task's run record within an execution. It is created
// when the task's level begins and mutated only by the worker running it.
type TaskExecution struct {
	Name       string     `json:"name"`
	Status     TaskStatus `json:"status"`
	Attempts   int        `json:"attempts"`
	Result     any        `json:"result,omitempty"`
	ErrorMsg   string     `json:"error,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Logs       []LogEntry `json:"logs,omitempty"`
}

// Execution is one run of a workflow definition. The engine owns the record
// while it is running; readers observe snapshots through the state store.
type Execution struct {
	ID           string                    `json:"id"`
	WorkflowID   int64                     `json:"workflow_id,omitempty"`
	WorkflowName string                    `json:"workflow_name"`
	Status       ExecutionStatus           `json:"status"`
	Progress     float64                   `json:"progress"`
	ErrorMsg     string                    `json:"error,omitempty"`
	StartedAt    *time.Time                `json:"started_at,omitempty"`
	FinishedAt   *time.Time                `json:"finished_at,omitempty"`
	Tasks        map[string]*TaskExecution `json:"tasks"`
	TaskOrder    []string                  `json:"task_order"`
}

// Record condenses the execution into its persisted catalog summary.
func (e *Execution) Record() ExecutionRecord {
	return ExecutionRecord{
		ID:           e.ID,
		WorkflowID:   e.WorkflowID,
		WorkflowName: e.WorkflowName,
		Status:       e.Status,
		Progress:     e.Progress,
		ErrorMsg:     e.ErrorMsg,
		StartedAt:    e.StartedAt,
		FinishedAt:   e.FinishedAt,
	}
}

// ExecutionRecord is the durable summary of an execution kept in the catalog
// store. Live per-task state stays in memory for the lifetime of the run.
type ExecutionRecord struct {
	ID           string          `json:"id" db:"id"`
	WorkflowID   int64           `json:"workflow_id" db:"workflow_id"`
	WorkflowName string          `json:"workflow_name" db:"workflow_name"`
	Status       ExecutionStatus `json:"status" db:"status"`
	Progress     float64         `json:"progress" db:"progress"`
	ErrorMsg     string          `json:"error,omitempty" db:"error_msg"`
	StartedAt    *time.Time      `json:"started_at,omitempty" db:"started_at"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty" db:"finished_at"`
}
