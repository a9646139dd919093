package engine

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/stackagent/conductor/pkg/agent"
	"github.com/stackagent/conductor/pkg/graph"
	"github.com/stackagent/conductor/pkg/models"
	"github.com/stackagent/conductor/pkg/resolve"
)

// Logger is the logging interface the engine writes through.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Metrics receives engine instrumentation events. Implementations must be
// safe for concurrent use.
type Metrics interface {
	ExecutionFinished(status models.ExecutionStatus)
	TaskAttempt(agentType string, failed bool)
	TaskFinished(agentType string, status models.TaskStatus, elapsed time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) ExecutionFinished(models.ExecutionStatus)              {}
func (noopMetrics) TaskAttempt(string, bool)                              {}
func (noopMetrics) TaskFinished(string, models.TaskStatus, time.Duration) {}

// Config tunes the engine.
type Config struct {
	// MaxConcurrency bounds how many tasks of one level run at once.
	// Zero means runtime.NumCPU.
	MaxConcurrency int
	// RetryBaseDelay is the first backoff delay between task attempts; it
	// doubles per attempt up to RetryMaxDelay.
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	Metrics        Metrics
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = runtime.NumCPU()
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = time.Second
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 30 * time.Second
	}
	if c.Metrics == nil {
		c.Metrics = noopMetrics{}
	}
	return c
}

// run holds everything the engine needs to drive one accepted execution.
type run struct {
	wf     models.WorkflowDefinition
	levels []graph.Level
	specs  map[string]models.TaskSpec
	cancel chan struct{}
	once   sync.Once
}

func (r *run) cancelled() bool {
	select {
	case <-r.cancel:
		return true
	default:
		return false
	}
}

// Engine drives workflow executions level by level: each level is dispatched
// as a bounded concurrent set, the level barrier is the only synchronization
// point, and the workflow's error policy is applied after every level
// settles.
type Engine struct {
	registry *agent.Registry
	store    *StateStore
	logger   Logger
	cfg      Config

	mu   sync.Mutex
	runs map[string]*run
}

func New(registry *agent.Registry, store *StateStore, logger Logger, cfg Config) *Engine {
	return &Engine{
		registry: registry,
		store:    store,
		logger:   logger,
		cfg:      cfg.withDefaults(),
		runs:     make(map[string]*run),
	}
}

// Submit validates the definition's task graph and creates a pending
// execution for it. Graph errors reject the submission before any execution
// state is created. The returned id is live immediately for status polling;
// the run itself starts when the caller invokes Run.
func (e *Engine) Submit(wf models.WorkflowDefinition) (string, error) {
	levels, err := graph.Build(wf.Tasks)
	if err != nil {
		return "", err
	}

	execID := uuid.NewString()
	exec := &models.Execution{
		ID:           execID,
		WorkflowID:   wf.ID,
		WorkflowName: wf.Name,
		Status:       models.PendingExecutionStatus,
		Tasks:        make(map[string]*models.TaskExecution, len(wf.Tasks)),
	}
	specs := make(map[string]models.TaskSpec, len(wf.Tasks))
	for _, spec := range wf.Tasks {
		exec.Tasks[spec.Name] = &models.TaskExecution{
			Name:   spec.Name,
			Status: models.PendingTaskStatus,
		}
		exec.TaskOrder = append(exec.TaskOrder, spec.Name)
		specs[spec.Name] = spec
	}
	e.store.add(exec)

	e.mu.Lock()
	e.runs[execID] = &run{
		wf:     wf,
		levels: levels,
		specs:  specs,
		cancel: make(chan struct{}),
	}
	e.mu.Unlock()

	e.logger.Infof("Accepted workflow '%s' as execution %s (%d tasks, %d levels)",
		wf.Name, execID, len(wf.Tasks), len(levels))
	return execID, nil
}

// Cancel requests cancellation of a submitted execution. It is honored at
// the next level boundary; tasks already in flight run to completion.
func (e *Engine) Cancel(execID string) error {
	e.mu.Lock()
	r, ok := e.runs[execID]
	e.mu.Unlock()
	if !ok {
		return ErrExecutionNotFound
	}
	r.once.Do(func() { close(r.cancel) })
	e.logger.Infof("Cancellation requested for execution %s", execID)
	return nil
}

// Run drives a submitted execution to a terminal status and blocks until it
// settles.
func (e *Engine) Run(ctx context.Context, execID string) error {
	e.mu.Lock()
	r, ok := e.runs[execID]
	e.mu.Unlock()
	if !ok {
		return ErrExecutionNotFound
	}
	defer func() {
		e.mu.Lock()
		delete(e.runs, execID)
		e.mu.Unlock()
	}()

	started := time.Now()
	e.store.update(execID, func(ex *models.Execution) {
		ex.Status = models.RunningExecutionStatus
		ex.StartedAt = &started
	})

	// outputs of settled prior levels; mutated only at level barriers
	results := make(map[string]any)

	for _, level := range r.levels {
		if r.cancelled() || ctx.Err() != nil {
			e.skipPending(execID)
			e.finish(execID, models.CancelledExecutionStatus, "execution cancelled")
			return nil
		}

		failed := e.runLevel(ctx, execID, r, level, results, false)
		if len(failed) == 0 {
			continue
		}

		switch r.wf.Policy() {
		case models.ContinueOnError:
			e.logger.Infof("Execution %s: continuing past failed tasks %v", execID, failed)
		case models.RetryOnError:
			e.logger.Infof("Execution %s: re-running failed tasks %v", execID, failed)
			failed = e.runLevel(ctx, execID, r, failed, results, true)
			if len(failed) == 0 {
				continue
			}
			fallthrough
		default: // StopOnError
			e.skipPending(execID)
			e.finish(execID, models.FailedExecutionStatus,
				fmt.Sprintf("task(s) failed: %s", strings.Join(failed, ", ")))
			return nil
		}
	}

	e.finish(execID, models.CompletedExecutionStatus, "")
	return nil
}

// Execute submits the definition and runs it to completion, returning the
// final execution snapshot.
func (e *Engine) Execute(ctx context.Context, wf models.WorkflowDefinition) (models.Execution, error) {
	execID, err := e.Submit(wf)
	if err != nil {
		return models.Execution{}, err
	}
	if err := e.Run(ctx, execID); err != nil {
		return models.Execution{}, err
	}
	return e.store.Get(execID)
}

// runLevel dispatches every named task concurrently, bounded by
// MaxConcurrency, and blocks until the whole set settles. Sibling outputs
// are staged and merged into results only once the barrier is crossed, so a
// task can never observe a sibling's output. A failure never cancels
// siblings; the error policy is applied by the caller. Returns the names of
// failed tasks in level order.
func (e *Engine) runLevel(
	ctx context.Context,
	execID string,
	r *run,
	names []string,
	results map[string]any,
	finalAttempt bool,
) []string {
	g := new(errgroup.Group)
	g.SetLimit(e.cfg.MaxConcurrency)

	var mu sync.Mutex
	staged := make(map[string]any, len(names))
	failedSet := make(map[string]struct{})

	for _, name := range names {
		spec := r.specs[name]
		g.Go(func() error {
			result, err := e.runTask(ctx, execID, spec, r.wf.Variables, results, finalAttempt)
			mu.Lock()
			if err != nil {
				failedSet[spec.Name] = struct{}{}
			} else {
				staged[spec.Name] = result
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for name, result := range staged {
		results[name] = result
	}

	var failed []string
	for _, name := range names {
		if _, ok := failedSet[name]; ok {
			failed = append(failed, name)
		}
	}
	return failed
}

// runTask resolves the task's parameters against the results of settled
// prior levels, dispatches it to its agent for up to MaxRetries+1 attempts
// with exponential backoff, and records the outcome. When finalAttempt is
// set (workflow-level retry pass) the task gets exactly one more attempt.
// The results map is read-only while a level is in flight.
func (e *Engine) runTask(
	ctx context.Context,
	execID string,
	spec models.TaskSpec,
	variables map[string]any,
	results map[string]any,
	finalAttempt bool,
) (any, error) {
	started := time.Now()
	e.store.updateTask(execID, spec.Name, func(t *models.TaskExecution) {
		t.Status = models.RunningTaskStatus
		t.StartedAt = &started
		t.ErrorMsg = ""
	})
	e.store.appendLog(execID, spec.Name,
		fmt.Sprintf("dispatching action %q to agent %q", spec.Action, spec.AgentType))

	fail := func(err error) (any, error) {
		finished := time.Now()
		e.store.updateTask(execID, spec.Name, func(t *models.TaskExecution) {
			t.Status = models.FailedTaskStatus
			t.ErrorMsg = err.Error()
			t.FinishedAt = &finished
		})
		e.store.appendLog(execID, spec.Name, "failed: "+err.Error())
		e.cfg.Metrics.TaskFinished(spec.AgentType, models.FailedTaskStatus, time.Since(started))
		e.logger.Errorf("Execution %s: task %s failed: %v", execID, spec.Name, err)
		return nil, err
	}

	params, err := resolve.Resolve(spec.Parameters, variables, results)
	if err != nil {
		return fail(err)
	}

	executor, err := e.registry.Lookup(spec.AgentType)
	if err != nil {
		return fail(err)
	}

	attempts := spec.MaxRetries + 1
	if finalAttempt {
		attempts = 1
	}

	var result any
	var lastErr error
	delay := e.cfg.RetryBaseDelay
	for attempt := 1; ; attempt++ {
		e.store.updateTask(execID, spec.Name, func(t *models.TaskExecution) {
			t.Attempts++
		})
		result, lastErr = executor.Execute(ctx, spec.Action, params)
		e.cfg.Metrics.TaskAttempt(spec.AgentType, lastErr != nil)
		if lastErr == nil || attempt >= attempts {
			break
		}

		e.store.appendLog(execID, spec.Name,
			fmt.Sprintf("attempt %d/%d failed: %v; retrying in %s", attempt, attempts, lastErr, delay))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			lastErr = ctx.Err()
		}
		if ctx.Err() != nil {
			break
		}
		delay *= 2
		if delay > e.cfg.RetryMaxDelay {
			delay = e.cfg.RetryMaxDelay
		}
	}
	if lastErr != nil {
		return fail(lastErr)
	}

	finished := time.Now()
	e.store.updateTask(execID, spec.Name, func(t *models.TaskExecution) {
		t.Status = models.SucceededTaskStatus
		t.Result = result
		t.FinishedAt = &finished
	})
	e.store.appendLog(execID, spec.Name, "succeeded")
	e.cfg.Metrics.TaskFinished(spec.AgentType, models.SucceededTaskStatus, time.Since(started))
	return result, nil
}

// skipPending marks every task that never started as skipped, so the full
// intended graph remains inspectable after an abort.
func (e *Engine) skipPending(execID string) {
	e.store.update(execID, func(ex *models.Execution) {
		for _, task := range ex.Tasks {
			if task.Status == models.PendingTaskStatus {
				task.Status = models.SkippedTaskStatus
			}
		}
	})
}

func (e *Engine) finish(execID string, status models.ExecutionStatus, errMsg string) {
	finished := time.Now()
	e.store.update(execID, func(ex *models.Execution) {
		ex.Status = status
		ex.ErrorMsg = errMsg
		ex.FinishedAt = &finished
	})
	e.cfg.Metrics.ExecutionFinished(status)
	e.logger.Infof("Execution %s finished with status %s", execID, status)
}
