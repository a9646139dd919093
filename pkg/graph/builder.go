package graph

import (
	"fmt"
	"strings"

	"github.com/stackagent/conductor/pkg/models"
)

// Level is a set of task names with no unresolved dependency among
// themselves, safe to dispatch concurrently. Names within a level follow
// declaration order for display purposes only; the engine treats a level as
// an unordered concurrent set.
type Level []string

// DuplicateTaskError reports a task name declared more than once.
type DuplicateTaskError struct {
	Name string
}

func (e *DuplicateTaskError) Error() string {
	return fmt.Sprintf("duplicate task name %q", e.Name)
}

// UnknownDependencyError reports a depends_on entry that names no declared task.
type UnknownDependencyError struct {
	Task       string
	Dependency string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("task %q depends on unknown task %q", e.Task, e.Dependency)
}

// CycleError reports a dependency cycle as the ordered sequence of task names
// forming it.
type CycleError struct {
	Cycle []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle: %s", strings.Join(e.Cycle, " -> "))
}

// IsValidationError reports whether err is one of the submission-time graph
// errors, which are fatal to the submission and never retried.
func IsValidationError(err error) bool {
	switch err.(type) {
	case *DuplicateTaskError, *UnknownDependencyError, *CycleError:
		return true
	}
	return false
}

// Build validates the task list and partitions it into an ordered sequence of
// levels using Kahn's algorithm: repeatedly extract every zero-in-degree node
// as one level and decrement the in-degrees of its dependents. A task in
// level i can therefore only reference outputs of tasks in levels < i. A
// non-empty remainder that yields no zero-in-degree node is a cycle.
func Build(tasks []models.TaskSpec) ([]Level, error) {
	declared := make(map[string]struct{}, len(tasks))
	for _, t := range tasks {
		if _, ok := declared[t.Name]; ok {
			return nil, &DuplicateTaskError{Name: t.Name}
		}
		declared[t.Name] = struct{}{}
	}

	inDegree := make(map[string]int, len(tasks))
	dependents := make(map[string][]string, len(tasks))
	for _, t := range tasks {
		inDegree[t.Name] = len(t.DependsOn)
		for _, dep := range t.DependsOn {
			if _, ok := declared[dep]; !ok {
				return nil, &UnknownDependencyError{Task: t.Name, Dependency: dep}
			}
			dependents[dep] = append(dependents[dep], t.Name)
		}
	}

	var levels []Level
	remaining := len(tasks)
	for remaining > 0 {
		var level Level
		for _, t := range tasks {
			if inDegree[t.Name] == 0 {
				level = append(level, t.Name)
			}
		}
		if len(level) == 0 {
			return nil, &CycleError{Cycle: findCycle(tasks, inDegree)}
		}
		for _, name := range level {
			inDegree[name] = -1
			for _, dependent := range dependents[name] {
				inDegree[dependent]--
			}
		}
		remaining -= len(level)
		levels = append(levels, level)
	}
	return levels, nil
}

// findCycle walks unresolved dependency edges among the stuck nodes until a
// node repeats. Every stuck node keeps at least one unresolved dependency, so
// the walk always closes.
func findCycle(tasks []models.TaskSpec, inDegree map[string]int) []string {
	deps := make(map[string][]string, len(tasks))
	var start string
	for _, t := range tasks {
		if inDegree[t.Name] <= 0 {
			continue
		}
		if start == "" {
			start = t.Name
		}
		for _, dep := range t.DependsOn {
			if inDegree[dep] > 0 {
				deps[t.Name] = append(deps[t.Name], dep)
			}
		}
	}

	seen := make(map[string]int)
	var path []string
	curr := start
	for {
		if at, ok := seen[curr]; ok {
			return path[at:]
		}
		seen[curr] = len(path)
		path = append(path, curr)
		curr = deps[curr][0]
	}
}
