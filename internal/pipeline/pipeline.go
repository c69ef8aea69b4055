// Package pipeline chains request validation, planning and plan execution,
// and assembles the outcome of a run into a Report.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/climarisk/internal/analysis"
	"github.com/mohammad-safakhou/climarisk/internal/dataviz"
	"github.com/mohammad-safakhou/climarisk/internal/executor"
	"github.com/mohammad-safakhou/climarisk/internal/llm"
	"github.com/mohammad-safakhou/climarisk/internal/planner"
	"github.com/mohammad-safakhou/climarisk/internal/prompts"
	"github.com/mohammad-safakhou/climarisk/internal/validator"
	"github.com/mohammad-safakhou/climarisk/models"
)

// ErrAnalysisFailed is returned when a validated request could not be planned
// or executed. The underlying error stays reachable with errors.Is/As.
var ErrAnalysisFailed = errors.New("the analysis could not be completed")

// FailureMessage is shown to users when ErrAnalysisFailed is returned.
const FailureMessage = "Nous n'avons pas pu mener cette analyse à son terme. Veuillez réessayer plus tard."

// RejectionError carries the message of a rejected request.
type RejectionError struct {
	Message string
}

func (e *RejectionError) Error() string { return "request rejected: " + e.Message }

// Submission is the result of Submit: either Error or Tasks is set.
type Submission struct {
	Error      string                          `json:"error,omitempty"`
	Tasks      []planner.SubTask               `json:"tasks,omitempty"`
	Validation validator.UserRequestValidation `json:"-"`
}

// Rejected reports whether the request was refused.
func (s Submission) Rejected() bool { return s.Error != "" }

// DocumentRef identifies a document collected during a run.
type DocumentRef struct {
	URL    string                `json:"url"`
	Title  string                `json:"title,omitempty"`
	Kind   string                `json:"kind,omitempty"`
	Place  string                `json:"place,omitempty"`
	Source models.DocumentSource `json:"source,omitempty"`
}

// Report is the persisted outcome of a completed run.
type Report struct {
	ID            string                          `json:"id"`
	Request       string                          `json:"request"`
	Validation    validator.UserRequestValidation `json:"validation"`
	Plan          []planner.SubTask               `json:"plan"`
	Documents     []DocumentRef                   `json:"documents"`
	Analyses      []analysis.RiskAnalysisOutput   `json:"analyses"`
	Skipped       []models.Skipped                `json:"skipped"`
	Synthesis     string                          `json:"synthesis,omitempty"`
	Visualization *dataviz.Result                 `json:"visualization,omitempty"`
	CreatedAt     time.Time                       `json:"created_at"`
}

// ReportStore persists completed reports.
type ReportStore interface {
	SaveReport(ctx context.Context, r Report) error
}

// Validator classifies raw requests.
type Validator interface {
	Validate(ctx context.Context, request string) validator.UserRequestValidation
}

// Planner turns a validated request into sub-tasks.
type Planner interface {
	Plan(ctx context.Context, v validator.UserRequestValidation) ([]planner.SubTask, error)
}

// Pipeline is safe for concurrent use: every Run gets its own executor.
type Pipeline struct {
	validator Validator
	planner   Planner
	registry  *executor.Registry
	store     ReportStore
	execOpts  []executor.Option

	rephrase         llm.Client
	rephraseSettings llm.ModelSettings
	rephraseTimeout  time.Duration

	now    func() time.Time
	logger *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithReportStore saves every completed report.
func WithReportStore(s ReportStore) Option {
	return func(p *Pipeline) { p.store = s }
}

// WithExecutorOptions is applied to the executor of every run.
func WithExecutorOptions(opts ...executor.Option) Option {
	return func(p *Pipeline) { p.execOpts = append(p.execOpts, opts...) }
}

// WithConversationalRejections has the model phrase rejection messages.
func WithConversationalRejections(client llm.Client, settings llm.ModelSettings, timeout time.Duration) Option {
	return func(p *Pipeline) {
		p.rephrase = client
		p.rephraseSettings = settings
		p.rephraseTimeout = timeout
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l.Named("pipeline")
		}
	}
}

// New creates a Pipeline executing plans against registry.
func New(v Validator, pl Planner, registry *executor.Registry, opts ...Option) *Pipeline {
	p := &Pipeline{
		validator: v,
		planner:   pl,
		registry:  registry,
		now:       time.Now,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Submit validates and plans raw. A rejected request is reported in
// Submission.Error with a nil error; planning exhaustion returns
// ErrAnalysisFailed.
func (p *Pipeline) Submit(ctx context.Context, raw string) (Submission, error) {
	v := p.validator.Validate(ctx, raw)
	if !v.Valid {
		p.logger.Info("request rejected", zap.String("message", v.Message))
		return Submission{Error: p.rejection(ctx, v.Message), Validation: v}, nil
	}
	tasks, err := p.planner.Plan(ctx, v)
	if err != nil {
		p.logger.Error("planning failed", zap.Error(err))
		return Submission{Validation: v}, fmt.Errorf("%w: %w", ErrAnalysisFailed, err)
	}
	return Submission{Tasks: tasks, Validation: v}, nil
}

func (p *Pipeline) rejection(ctx context.Context, message string) string {
	if p.rephrase == nil {
		return message
	}
	prompt, err := prompts.Rejection(message)
	if err != nil {
		return message
	}
	reply, err := llm.WithDeadline(p.rephrase, p.rephraseTimeout).Converse(ctx, p.rephraseSettings.Request(llm.User(prompt)))
	if err != nil || strings.TrimSpace(reply.Content) == "" {
		p.logger.Warn("rejection rephrasing failed", zap.Error(err))
		return message
	}
	return strings.TrimSpace(reply.Content)
}

// Run submits raw and executes the plan, calling progress after every task.
// A rejected request returns a *RejectionError. Execution failures return
// ErrAnalysisFailed together with the report assembled so far.
func (p *Pipeline) Run(ctx context.Context, raw string, progress func(executor.Progress)) (Report, error) {
	sub, err := p.Submit(ctx, raw)
	report := Report{
		ID:         uuid.NewString(),
		Request:    raw,
		Validation: sub.Validation,
		Plan:       sub.Tasks,
		CreatedAt:  p.now().UTC(),
	}
	if err != nil {
		return report, err
	}
	if sub.Rejected() {
		return report, &RejectionError{Message: sub.Error}
	}

	opts := append([]executor.Option{executor.WithRunID(report.ID), executor.WithLogger(p.logger)}, p.execOpts...)
	ex := executor.New(p.registry, opts...)
	for step, err := range ex.RunAll(ctx, sub.Tasks) {
		if err != nil {
			collect(&report, sub.Tasks, ex.Run())
			p.logger.Error("run failed", zap.String("run_id", report.ID), zap.Error(err))
			return report, fmt.Errorf("%w: %w", ErrAnalysisFailed, err)
		}
		if progress != nil {
			progress(step)
		}
	}
	collect(&report, sub.Tasks, ex.Run())
	p.logger.Info("run complete",
		zap.String("run_id", report.ID),
		zap.Int("documents", len(report.Documents)),
		zap.Int("analyses", len(report.Analyses)),
		zap.Int("skipped", len(report.Skipped)))

	if p.store != nil {
		if err := p.store.SaveReport(ctx, report); err != nil {
			return report, fmt.Errorf("save report: %w", err)
		}
	}
	return report, nil
}

// collect copies the outputs of the plan into r, keyed on their type. A slot
// written by several tasks is read once, as left by its last writer.
func collect(r *Report, tasks []planner.SubTask, run *executor.Run) {
	r.Documents, r.Analyses, r.Skipped = []DocumentRef{}, []analysis.RiskAnalysisOutput{}, []models.Skipped{}
	var slots []string
	writer := make(map[string]planner.TaskType)
	for _, task := range tasks {
		if task.Out == "" {
			continue
		}
		if _, seen := writer[task.Out]; !seen {
			slots = append(slots, task.Out)
		}
		writer[task.Out] = task.Task
	}
	for _, slot := range slots {
		v, ok := run.Output(slot)
		if !ok {
			continue
		}
		switch out := v.(type) {
		case []models.Document:
			for _, d := range out {
				r.Documents = append(r.Documents, DocumentRef{URL: d.URL, Title: d.Title, Kind: d.Kind, Place: d.Place, Source: d.Source})
			}
		case analysis.Set:
			r.Analyses = append(r.Analyses, out.Analyses...)
			r.Skipped = append(r.Skipped, out.Skipped...)
		case dataviz.Result:
			viz := out
			r.Visualization = &viz
		case string:
			if writer[slot] == planner.Synthesize {
				r.Synthesis = out
			}
		}
	}
}
