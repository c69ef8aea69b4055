// Package planner turns a validated request into an ordered list of typed
// sub-tasks. Malformed plans are sent back to the model together with a
// corrective instruction until one passes the schema and dependency checks.
package planner

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mohammad-safakhou/climarisk/internal/llm"
	"github.com/mohammad-safakhou/climarisk/internal/prompts"
	"github.com/mohammad-safakhou/climarisk/internal/validator"
)

// ErrNotValidated is returned when Plan is given a rejected request.
var ErrNotValidated = errors.New("request was not validated")

// Planner generates plans with the self-repair loop.
type Planner struct {
	client   llm.Client
	settings llm.ModelSettings
	policy   llm.Policy
	types    []TaskType
	known    func(TaskType) bool
	examples []prompts.PlanExample
	observer llm.Observer
	logger   *zap.Logger
}

// Option configures a Planner.
type Option func(*Planner)

// WithTaskTypes restricts plans to the given task types. They are listed in
// the prompt and checked on every attempt.
func WithTaskTypes(types ...TaskType) Option {
	return func(p *Planner) {
		p.types = append([]TaskType(nil), types...)
		set := make(map[TaskType]struct{}, len(types))
		for _, t := range types {
			set[t] = struct{}{}
		}
		p.known = func(t TaskType) bool {
			_, ok := set[t]
			return ok
		}
	}
}

// WithExamples replaces the few-shot plans.
func WithExamples(examples []prompts.PlanExample) Option {
	return func(p *Planner) { p.examples = examples }
}

// WithObserver reports every attempt.
func WithObserver(o llm.Observer) Option {
	return func(p *Planner) { p.observer = o }
}

// New creates a Planner.
func New(client llm.Client, settings llm.ModelSettings, policy llm.Policy, logger *zap.Logger, opts ...Option) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Planner{
		client:   client,
		settings: settings,
		policy:   policy,
		types:    CanonicalTypes(),
		examples: DefaultExamples(),
		logger:   logger.Named("planner"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Plan asks the model for a plan. The model's order is the execution order.
// After the configured number of attempts the last validation error is
// returned wrapped in an *llm.AttemptsError; no partial plan is returned.
func (p *Planner) Plan(ctx context.Context, v validator.UserRequestValidation) ([]SubTask, error) {
	if !v.Valid {
		return nil, ErrNotValidated
	}
	types := make([]string, len(p.types))
	for i, t := range p.types {
		types[i] = string(t)
	}
	prompt, err := prompts.Planning(prompts.PlanningData{
		Request:   v.Message,
		Risks:     v.Risks,
		Places:    v.Locations,
		Level:     v.AdminLevel,
		TaskTypes: types,
		Examples:  p.examples,
	})
	if err != nil {
		return nil, err
	}

	tasks, calls, err := llm.Repair(ctx, p.client, []llm.Message{llm.System(prompt)}, llm.RepairOptions[[]SubTask]{
		Stage:    llm.StagePlanning,
		Settings: p.settings,
		Policy:   p.policy,
		Decode:   p.decode,
		Correction: func(err error) string {
			return prompts.PlanningCorrection(err, planSchema.Source())
		},
		Logger:   p.logger,
		Observer: p.observer,
	})
	if err != nil {
		return nil, fmt.Errorf("generate plan: %w", err)
	}
	p.logger.Info("plan generated", zap.Int("tasks", len(tasks)), zap.Int("calls", calls))
	return tasks, nil
}

func (p *Planner) decode(text string) ([]SubTask, error) {
	tasks, err := ParsePlan(text)
	if err != nil {
		return nil, err
	}
	if err := VerifyPlan(tasks, p.known); err != nil {
		return nil, err
	}
	return tasks, nil
}
