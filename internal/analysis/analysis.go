// Package analysis extracts, for one document at a time, the risks it
// identifies and the adaptation plans it describes.
package analysis

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mohammad-safakhou/climarisk/internal/jsonout"
	"github.com/mohammad-safakhou/climarisk/internal/llm"
	"github.com/mohammad-safakhou/climarisk/internal/prompts"
	"github.com/mohammad-safakhou/climarisk/internal/taxonomy"
	"github.com/mohammad-safakhou/climarisk/models"
)

// DefaultMaxChars bounds the document text sent to the model.
const DefaultMaxChars = 100000

//go:embed analysis_schema.json
var schemaJSON string

var schema = jsonout.NewSchema("analysis_schema.json", schemaJSON)

// AnalyzedRisk is one risk found in a document. Excerpts are nil when the
// document has no matching passage.
type AnalyzedRisk struct {
	RiskName              string  `json:"nom_risque"`
	IdentificationExcerpt *string `json:"identification_risque"`
	AdaptationPlanExcerpt *string `json:"plan_adaptation_risque"`
}

// RiskAnalysisOutput is the analysis of one document.
type RiskAnalysisOutput struct {
	Risks       []AnalyzedRisk `json:"risques"`
	Score       float64        `json:"note"`
	Explanation string         `json:"explication"`
	SourceURL   string         `json:"url,omitempty"`
	Truncated   bool           `json:"tronque,omitempty"`
}

// Set is the result of AnalyzeAll: the analyses in input order and the
// documents that were left out.
type Set struct {
	Analyses []RiskAnalysisOutput `json:"analyses"`
	Skipped  []models.Skipped     `json:"skipped"`
}

// RiskNames lists the distinct risk names across analyses, in first-seen order.
func (s Set) RiskNames() []string {
	seen := map[string]struct{}{}
	var out []string
	for _, a := range s.Analyses {
		for _, r := range a.Risks {
			if _, ok := seen[r.RiskName]; ok {
				continue
			}
			seen[r.RiskName] = struct{}{}
			out = append(out, r.RiskName)
		}
	}
	return out
}

// Analyzer runs the per-document analysis with the self-repair loop.
type Analyzer struct {
	client   llm.Client
	settings llm.ModelSettings
	policy   llm.Policy
	maxChars int
	observer llm.Observer
	logger   *zap.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithMaxChars overrides DefaultMaxChars.
func WithMaxChars(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.maxChars = n
		}
	}
}

// WithObserver reports every attempt.
func WithObserver(o llm.Observer) Option {
	return func(a *Analyzer) { a.observer = o }
}

// New creates an Analyzer.
func New(client llm.Client, settings llm.ModelSettings, policy llm.Policy, logger *zap.Logger, opts ...Option) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Analyzer{
		client:   client,
		settings: settings,
		policy:   policy,
		maxChars: DefaultMaxChars,
		logger:   logger.Named("analysis"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze analyses one document against risks (every risk when empty).
// Text beyond the character budget is dropped before the call.
func (a *Analyzer) Analyze(ctx context.Context, doc models.Document, risks []string) (RiskAnalysisOutput, error) {
	text, truncated := truncate(doc.Text, a.maxChars)
	if truncated {
		a.logger.Info("document truncated", zap.String("url", doc.URL), zap.Int("max_chars", a.maxChars))
	}
	prompt, err := prompts.Analysis(prompts.AnalysisData{Risks: taxonomy.Expand(risks), Document: text})
	if err != nil {
		return RiskAnalysisOutput{}, err
	}
	out, _, err := llm.Repair(ctx, a.client, []llm.Message{llm.User(prompt)}, llm.RepairOptions[RiskAnalysisOutput]{
		Stage:      llm.StageAnalysis,
		Settings:   a.settings,
		Policy:     a.policy,
		Decode:     decode,
		Correction: prompts.AnalysisCorrection,
		Logger:     a.logger,
		Observer:   a.observer,
	})
	if err != nil {
		return RiskAnalysisOutput{}, fmt.Errorf("analyse %s: %w", doc.URL, err)
	}
	out.SourceURL = doc.URL
	out.Truncated = truncated
	return out, nil
}

// AnalyzeAll analyses docs in order. Documents without text and documents
// whose analysis exhausted its attempts are recorded in Skipped; transport
// failures and cancellation abort the whole call.
func (a *Analyzer) AnalyzeAll(ctx context.Context, docs []models.Document, risks []string) (Set, error) {
	set := Set{Analyses: []RiskAnalysisOutput{}, Skipped: []models.Skipped{}}
	for _, doc := range docs {
		if doc.WordCount() == 0 {
			set.Skipped = append(set.Skipped, models.Skipped{URL: doc.URL, Reason: "document sans texte"})
			continue
		}
		out, err := a.Analyze(ctx, doc, risks)
		if err != nil {
			var exhausted *llm.AttemptsError
			if errors.As(err, &exhausted) {
				a.logger.Warn("document skipped", zap.String("url", doc.URL), zap.Error(err))
				set.Skipped = append(set.Skipped, models.Skipped{URL: doc.URL, Reason: exhausted.Error()})
				continue
			}
			return set, err
		}
		set.Analyses = append(set.Analyses, out)
	}
	return set, nil
}

func decode(text string) (RiskAnalysisOutput, error) {
	var out RiskAnalysisOutput
	if err := jsonout.Decode(text, schema, &out); err != nil {
		return RiskAnalysisOutput{}, err
	}
	out.Score = min(max(out.Score, 1), 10)
	if out.Risks == nil {
		out.Risks = []AnalyzedRisk{}
	}
	return out, nil
}

// truncate keeps at most n runes.
func truncate(s string, n int) (string, bool) {
	if n <= 0 || len(s) <= n {
		return s, false
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i], true
		}
		count++
	}
	return s, false
}
