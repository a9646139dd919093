package graph_test

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stackagent/conductor/pkg/graph"
	"github.com/stackagent/conductor/pkg/models"
	"github.com/stretchr/testify/assert"
)

func task(name string, deps ...string) models.TaskSpec {
	return models.TaskSpec{Name: name, AgentType: "noop", Action: "noop", DependsOn: deps}
}

func TestBuild_Levels(t *testing.T) {
	tests := []struct {
		name     string
		tasks    []models.TaskSpec
		expected []graph.Level
	}{
		{
			name:     "SingleTask",
			tasks:    []models.TaskSpec{task("a")},
			expected: []graph.Level{{"a"}},
		},
		{
			name:     "Diamond",
			tasks:    []models.TaskSpec{task("a"), task("b", "a"), task("c", "a"), task("d", "b", "c")},
			expected: []graph.Level{{"a"}, {"b", "c"}, {"d"}},
		},
		{
			name:     "FanOut",
			tasks:    []models.TaskSpec{task("a"), task("b", "a"), task("c", "a")},
			expected: []graph.Level{{"a"}, {"b", "c"}},
		},
		{
			name:     "IndependentRoots",
			tasks:    []models.TaskSpec{task("x"), task("y"), task("z", "x", "y")},
			expected: []graph.Level{{"x", "y"}, {"z"}},
		},
		{
			name:     "Chain",
			tasks:    []models.TaskSpec{task("a"), task("b", "a"), task("c", "b")},
			expected: []graph.Level{{"a"}, {"b"}, {"c"}},
		},
		{
			name: "DependencyDeclaredLater",
			tasks: []models.TaskSpec{
				task("late", "early"),
				task("early"),
			},
			expected: []graph.Level{{"early"}, {"late"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			levels, err := graph.Build(tt.tasks)
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, levels)
		})
	}
}

func TestBuild_EmptyTaskList(t *testing.T) {
	levels, err := graph.Build(nil)
	assert.NoError(t, err)
	assert.Empty(t, levels)
}

func TestBuild_DeclarationOrderWithinLevel(t *testing.T) {
	tasks := []models.TaskSpec{task("c"), task("a"), task("b")}
	levels, err := graph.Build(tasks)
	assert.NoError(t, err)
	assert.Equal(t, []graph.Level{{"c", "a", "b"}}, levels)
}

func TestBuild_DuplicateTaskName(t *testing.T) {
	_, err := graph.Build([]models.TaskSpec{task("a"), task("a")})
	var dup *graph.DuplicateTaskError
	assert.ErrorAs(t, err, &dup)
	assert.Equal(t, "a", dup.Name)
	assert.True(t, graph.IsValidationError(err))
}

func TestBuild_UnknownDependency(t *testing.T) {
	_, err := graph.Build([]models.TaskSpec{task("a"), task("b", "ghost")})
	var unknown *graph.UnknownDependencyError
	assert.ErrorAs(t, err, &unknown)
	assert.Equal(t, "b", unknown.Task)
	assert.Equal(t, "ghost", unknown.Dependency)
}

func TestBuild_TwoNodeCycle(t *testing.T) {
	_, err := graph.Build([]models.TaskSpec{task("a", "b"), task("b", "a")})
	var cycle *graph.CycleError
	assert.ErrorAs(t, err, &cycle)
	assert.ElementsMatch(t, []string{"a", "b"}, cycle.Cycle)
}

func TestBuild_CycleBehindValidPrefix(t *testing.T) {
	tasks := []models.TaskSpec{
		task("root"),
		task("x", "root", "z"),
		task("y", "x"),
		task("z", "y"),
	}
	_, err := graph.Build(tasks)
	var cycle *graph.CycleError
	assert.ErrorAs(t, err, &cycle)
	assert.ElementsMatch(t, []string{"x", "y", "z"}, cycle.Cycle)
}

func TestBuild_SelfDependency(t *testing.T) {
	_, err := graph.Build([]models.TaskSpec{task("a", "a")})
	var cycle *graph.CycleError
	assert.ErrorAs(t, err, &cycle)
	assert.Equal(t, []string{"a"}, cycle.Cycle)
}

// Level soundness: every dependency of a task in level i must appear in some
// level j < i, checked against randomly generated DAGs.
func TestBuild_LevelSoundnessRandomDAGs(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 50; round++ {
		n := 2 + rng.Intn(30)
		tasks := make([]models.TaskSpec, n)
		for i := 0; i < n; i++ {
			name := fmt.Sprintf("t%d", i)
			var deps []string
			// edges only point at earlier declarations, so the graph is a DAG
			for j := 0; j < i; j++ {
				if rng.Intn(4) == 0 {
					deps = append(deps, fmt.Sprintf("t%d", j))
				}
			}
			tasks[i] = task(name, deps...)
		}

		levels, err := graph.Build(tasks)
		assert.NoError(t, err)

		settled := make(map[string]int)
		total := 0
		for i, level := range levels {
			for _, name := range level {
				settled[name] = i
				total++
			}
		}
		assert.Equal(t, n, total)

		for _, spec := range tasks {
			for _, dep := range spec.DependsOn {
				assert.Less(t, settled[dep], settled[spec.Name],
					"dependency %s of %s must settle in an earlier level", dep, spec.Name)
			}
		}
	}
}
