package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/mohammad-safakhou/climarisk/internal/executor"
	"github.com/mohammad-safakhou/climarisk/internal/llm"
	"github.com/mohammad-safakhou/climarisk/internal/planner"
)

// Metrics holds the pipeline instruments.
type Metrics struct {
	attempts     otelmetric.Int64Counter
	taskDuration otelmetric.Float64Histogram
	tasks        otelmetric.Int64Counter
}

// NewMetrics registers the instruments on meter.
func NewMetrics(meter otelmetric.Meter) (*Metrics, error) {
	attempts, err := meter.Int64Counter("llm_attempts_total",
		otelmetric.WithDescription("Model calls per stage and outcome"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("task_duration_seconds",
		otelmetric.WithDescription("Task handler latency"),
		otelmetric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	tasks, err := meter.Int64Counter("tasks_total",
		otelmetric.WithDescription("Executed tasks per type and outcome"))
	if err != nil {
		return nil, err
	}
	return &Metrics{attempts: attempts, taskDuration: duration, tasks: tasks}, nil
}

// ObserveAttempt implements llm.Observer.
func (m *Metrics) ObserveAttempt(stage llm.Stage, attempt int, err error) {
	m.attempts.Add(context.Background(), 1, otelmetric.WithAttributes(
		attribute.String("stage", string(stage)),
		attribute.Bool("retry", attempt > 1),
		attribute.String("outcome", attemptOutcome(err)),
	))
}

func attemptOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, llm.ErrDeadline):
		return "deadline"
	case llm.IsRetryable(err):
		return "invalid"
	default:
		return "error"
	}
}

// Executor returns the executor callbacks recording task metrics.
func (m *Metrics) Executor() executor.Metrics {
	return executor.Metrics{
		Duration: func(ctx context.Context, task planner.SubTask, d time.Duration) {
			m.taskDuration.Record(ctx, d.Seconds(), otelmetric.WithAttributes(attribute.String("task", string(task.Task))))
		},
		Outcome: func(ctx context.Context, task planner.SubTask, err error) {
			outcome := "ok"
			if err != nil {
				outcome = "error"
			}
			m.tasks.Add(ctx, 1, otelmetric.WithAttributes(
				attribute.String("task", string(task.Task)),
				attribute.String("outcome", outcome),
			))
		},
	}
}
