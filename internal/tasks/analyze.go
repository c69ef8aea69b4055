package tasks

import (
	"context"
	"fmt"

	"github.com/mohammad-safakhou/climarisk/internal/analysis"
	"github.com/mohammad-safakhou/climarisk/internal/executor"
	"github.com/mohammad-safakhou/climarisk/internal/planner"
	"github.com/mohammad-safakhou/climarisk/models"
)

// Analyze implements ANALYZE_DOCS over the documents of its "in" slot.
type Analyze struct {
	Analyzer *analysis.Analyzer
}

func (a *Analyze) Type() planner.TaskType { return planner.AnalyzeDocs }

func (a *Analyze) Execute(ctx context.Context, run *executor.Run, args planner.Args) (any, error) {
	ref, err := args.RequireRef()
	if err != nil {
		return nil, err
	}
	risks, err := args.StringsOr("risques", nil)
	if err != nil {
		return nil, err
	}
	input, err := run.ReadOutput(ref)
	if err != nil {
		return nil, err
	}
	var docs []models.Document
	switch v := input.(type) {
	case []models.Document:
		docs = v
	case models.Document:
		docs = []models.Document{v}
	default:
		return nil, &planner.ArgError{Arg: planner.RefKey, Reason: fmt.Sprintf("%q holds %T, expected documents", ref, input)}
	}
	if len(docs) == 0 {
		return analysis.Set{Analyses: []analysis.RiskAnalysisOutput{}, Skipped: []models.Skipped{}}, nil
	}
	return a.Analyzer.AnalyzeAll(ctx, docs, risks)
}

// analysesOf narrows an ANALYZE_DOCS output.
func analysesOf(ref string, v any) (analysis.Set, error) {
	switch s := v.(type) {
	case analysis.Set:
		return s, nil
	case *analysis.Set:
		return *s, nil
	case []analysis.RiskAnalysisOutput:
		return analysis.Set{Analyses: s}, nil
	default:
		return analysis.Set{}, &planner.ArgError{Arg: planner.RefKey, Reason: fmt.Sprintf("%q holds %T, expected analyses", ref, v)}
	}
}
