package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/stackagent/conductor/pkg/models"
)

var (
	executionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "conductor",
		Name:      "executions_total",
		Help:      "Workflow executions by terminal status.",
	}, []string{"status"})

	taskAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "conductor",
		Name:      "task_attempts_total",
		Help:      "Agent dispatch attempts by agent type and outcome.",
	}, []string{"agent_type", "outcome"})

	taskDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "conductor",
		Name:      "task_duration_seconds",
		Help:      "Wall-clock task duration from first attempt to terminal status.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
	}, []string{"agent_type", "status"})
)

// EngineMetrics publishes engine events as prometheus series. It satisfies
// the engine's Metrics interface.
type EngineMetrics struct{}

func NewEngineMetrics() *EngineMetrics {
	return &EngineMetrics{}
}

func (*EngineMetrics) ExecutionFinished(status models.ExecutionStatus) {
	executionsTotal.WithLabelValues(string(status)).Inc()
}

func (*EngineMetrics) TaskAttempt(agentType string, failed bool) {
	outcome := "success"
	if failed {
		outcome = "failure"
	}
	taskAttemptsTotal.WithLabelValues(agentType, outcome).Inc()
}

func (*EngineMetrics) TaskFinished(agentType string, status models.TaskStatus, elapsed time.Duration) {
	taskDurationSeconds.WithLabelValues(agentType, string(status)).Observe(elapsed.Seconds())
}
