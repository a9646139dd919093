package agent

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"
)

// Agent is the single capability contract every executor implements. The
// engine treats actions and parameters as opaque: timeouts, external I/O and
// in-call retries are the agent's own business, and the orchestration layer
// only ever sees the returned result or error.
type Agent interface {
	Execute(ctx context.Context, action string, params map[string]any) (any, error)
}

// NotFoundError reports a lookup for an agent type nobody registered. It is
// a configuration error, never retried.
type NotFoundError struct {
	AgentType string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no agent registered for type %q", e.AgentType)
}

// Registry maps agent-type identifiers to executors. It is populated once at
// process start and never mutated while executions run, so lookups take no
// lock.
type Registry struct {
	agents map[string]Agent
}

func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]Agent)}
}

// Register binds an agent to a type identifier. Call only during bootstrap,
// before any execution starts.
func (r *Registry) Register(agentType string, a Agent) {
	r.agents[agentType] = a
}

func (r *Registry) Lookup(agentType string) (Agent, error) {
	a, ok := r.agents[agentType]
	if !ok {
		return nil, &NotFoundError{AgentType: agentType}
	}
	return a, nil
}

// Types returns the registered type identifiers, sorted.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.agents))
	for t := range r.agents {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Builtin returns a registry pre-populated with the built-in agent table.
func Builtin() *Registry {
	r := NewRegistry()
	r.Register("browser", NewBrowserAgent(DefaultActionTimeout))
	r.Register("extract", NewExtractAgent())
	r.Register("analyze", NewAnalyzeAgent())
	r.Register("http", NewHTTPAgent(DefaultActionTimeout))
	r.Register("file", NewFileAgent(os.TempDir()))
	return r
}

// DefaultActionTimeout bounds a single built-in agent call. The engine never
// preempts a stuck agent, so agents fail explicitly instead of hanging.
const DefaultActionTimeout = 30 * time.Second
