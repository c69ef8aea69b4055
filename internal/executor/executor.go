// Package executor replays a plan one task at a time, publishing each task's
// result under its output slot so later tasks can read it.
package executor

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/climarisk/internal/planner"
)

// ErrUnknownTaskType is returned when a plan names a task type without a
// handler. It is never retried.
var ErrUnknownTaskType = errors.New("unknown task type")

// ErrSequenceConsumed is yielded when a RunAll sequence is ranged over twice.
var ErrSequenceConsumed = errors.New("progress sequence already consumed")

// ErrRunInProgress is returned by RunOne and Reset while a RunAll sequence is
// being ranged over, including from inside its loop body.
var ErrRunInProgress = errors.New("run in progress")

// TaskError locates a failure within the plan.
type TaskError struct {
	Index int
	Task  planner.TaskType
	Err   error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %d (%s): %v", e.Index, e.Task, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

// Progress is yielded once per completed task.
type Progress struct {
	Index       int              `json:"index"`
	Total       int              `json:"total"`
	Task        planner.TaskType `json:"task"`
	Description string           `json:"description"`
	Out         string           `json:"out,omitempty"`
	Duration    time.Duration    `json:"duration"`
}

// Metrics aggregates optional telemetry callbacks.
type Metrics struct {
	Duration func(context.Context, planner.SubTask, time.Duration)
	Outcome  func(context.Context, planner.SubTask, error)
}

// Executor runs plans against a registry. It owns a single Run. RunAll
// sequences from different goroutines run one after the other; RunOne and
// Reset fail with ErrRunInProgress while one is active.
type Executor struct {
	registry *Registry
	run      *Run
	mu       sync.Mutex
	idle     *sync.Cond
	running  bool
	metrics  Metrics
	tracer   trace.Tracer
	logger   *zap.Logger
}

// Option configures executor behaviour.
type Option func(*Executor)

// WithMetrics sets executor metrics callbacks.
func WithMetrics(m Metrics) Option {
	return func(ex *Executor) {
		ex.metrics = m
	}
}

// WithTracer sets the tracer used for task spans.
func WithTracer(t trace.Tracer) Option {
	return func(ex *Executor) {
		ex.tracer = t
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(ex *Executor) {
		if l != nil {
			ex.logger = l.Named("executor")
		}
	}
}

// WithRunID names the run, e.g. after a request ID.
func WithRunID(id string) Option {
	return func(ex *Executor) {
		ex.run.ID = id
	}
}

// New creates a new Executor instance with an empty run.
func New(registry *Registry, opts ...Option) *Executor {
	ex := &Executor{
		registry: registry,
		run:      NewRun(uuid.NewString()),
		tracer:   otel.Tracer("climarisk/executor"),
		logger:   zap.NewNop(),
	}
	ex.idle = sync.NewCond(&ex.mu)
	for _, opt := range opts {
		opt(ex)
	}
	return ex
}

// Run returns the run owned by the executor.
func (e *Executor) Run() *Run { return e.run }

// ReadOutput reads a slot of the current run.
func (e *Executor) ReadOutput(name string) (any, error) { return e.run.ReadOutput(name) }

// Reset clears the outputs of the previous run.
func (e *Executor) Reset() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return ErrRunInProgress
	}
	e.run.Reset()
	return nil
}

// RunOne executes a single task and publishes its result.
func (e *Executor) RunOne(ctx context.Context, task planner.SubTask) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return ErrRunInProgress
	}
	return e.runOne(ctx, 0, task)
}

// acquire waits for any other RunAll to finish and marks the executor busy.
func (e *Executor) acquire() {
	e.mu.Lock()
	for e.running {
		e.idle.Wait()
	}
	e.running = true
	e.mu.Unlock()
}

func (e *Executor) release() {
	e.mu.Lock()
	e.running = false
	e.idle.Broadcast()
	e.mu.Unlock()
}

func (e *Executor) runOne(ctx context.Context, index int, task planner.SubTask) error {
	handler, ok := e.registry.Lookup(task.Task)
	if !ok {
		err := &TaskError{Index: index, Task: task.Task, Err: fmt.Errorf("%w: %q", ErrUnknownTaskType, task.Task)}
		e.outcome(ctx, task, err)
		return err
	}
	ctx, span := e.tracer.Start(ctx, "task "+string(task.Task), trace.WithAttributes(
		attribute.String("run.id", e.run.ID),
		attribute.Int("task.index", index),
		attribute.String("task.type", string(task.Task)),
		attribute.String("task.out", task.Out),
	))
	defer span.End()

	args := task.Args
	if args == nil {
		args = planner.Args{}
	}
	start := time.Now()
	value, err := handler.Execute(ctx, e.run, args)
	if e.metrics.Duration != nil {
		e.metrics.Duration(ctx, task, time.Since(start))
	}
	e.outcome(ctx, task, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return &TaskError{Index: index, Task: task.Task, Err: err}
	}
	if task.Out != "" && !absent(value) {
		e.run.store(task.Out, value)
	}
	return nil
}

func (e *Executor) outcome(ctx context.Context, task planner.SubTask, err error) {
	if e.metrics.Outcome != nil {
		e.metrics.Outcome(ctx, task, err)
	}
}

// RunAll returns a single-pass sequence that executes tasks in order as it is
// advanced, yielding one Progress per completed task. The first failure is
// yielded with its error and ends the sequence; already stored outputs are
// kept. Stopping the range early leaves the remaining tasks unexecuted.
// The lock is not held while the loop body runs, but starting another RunAll
// from inside the body blocks until this one ends.
func (e *Executor) RunAll(ctx context.Context, tasks []planner.SubTask) iter.Seq2[Progress, error] {
	var consumed atomic.Bool
	return func(yield func(Progress, error) bool) {
		if !consumed.CompareAndSwap(false, true) {
			yield(Progress{}, ErrSequenceConsumed)
			return
		}
		e.acquire()
		defer e.release()

		total := len(tasks)
		e.logger.Info("run started", zap.String("run_id", e.run.ID), zap.Int("tasks", total))
		for i, task := range tasks {
			p := Progress{Index: i, Total: total, Task: task.Task, Description: task.Description, Out: task.Out}
			e.run.transition(Running, i)
			if err := ctx.Err(); err != nil {
				e.run.transition(Failed, i)
				yield(p, err)
				return
			}
			start := time.Now()
			if err := e.runOne(ctx, i, task); err != nil {
				e.run.transition(Failed, i)
				e.logger.Error("task failed",
					zap.String("run_id", e.run.ID),
					zap.Int("index", i),
					zap.String("task", string(task.Task)),
					zap.Error(err))
				yield(p, err)
				return
			}
			p.Duration = time.Since(start)
			e.logger.Debug("task complete",
				zap.String("run_id", e.run.ID),
				zap.Int("index", i),
				zap.String("task", string(task.Task)),
				zap.Duration("duration", p.Duration))
			if !yield(p, nil) {
				return
			}
		}
		e.run.transition(Complete, max(total-1, 0))
		e.logger.Info("run complete", zap.String("run_id", e.run.ID))
	}
}
