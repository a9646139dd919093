package models

import "time"

// ErrorPolicy controls how the engine reacts when a task inside a level fails.
type ErrorPolicy string

const (
	// StopOnError aborts the execution and skips every unstarted task.
	StopOnError ErrorPolicy = "stop"
	// ContinueOnError proceeds to the next level; the failed task's output
	// is simply absent for substitution purposes.
	ContinueOnError ErrorPolicy = "continue"
	// RetryOnError re-runs the failed tasks of a level once more after the
	// level settles, then falls back to StopOnError if they fail again.
	RetryOnError ErrorPolicy = "retry"
)

// Valid reports whether the policy is one of the known values.
func (p ErrorPolicy) Valid() bool {
	switch p {
	case StopOnError, ContinueOnError, RetryOnError:
		return true
	}
	return false
}

// TaskSpec declares one unit of work inside a workflow. The name doubles as
// the graph-node id and as the substitution key ${name} through which later
// tasks reference this task's output.
type TaskSpec struct {
	Name       string         `json:"name"`
	AgentType  string         `json:"agent_type"`
	Action     string         `json:"action"`
	Parameters map[string]any `json:"parameters,omitempty"`
	DependsOn  []string       `json:"depends_on,omitempty"`
	MaxRetries int            `json:"max_retries,omitempty"`
}

// WorkflowDefinition is the declarative task graph a client submits.
// Task order is declaration order, not execution order. The definition is
// treated as immutable once an execution has been started from it.
type WorkflowDefinition struct {
	ID          int64          `json:"id,omitempty"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Tasks       []TaskSpec     `json:"tasks"`
	Variables   map[string]any `json:"variables,omitempty"`
	OnError     ErrorPolicy    `json:"on_error,omitempty"`
	CreatedAt   time.Time      `json:"created_at,omitempty"`
	UpdatedAt   time.Time      `json:"updated_at,omitempty"`
}

// Policy returns the configured error policy, defaulting to StopOnError.
func (w WorkflowDefinition) Policy() ErrorPolicy {
	if w.OnError == "" {
		return StopOnError
	}
	return w.OnError
}
