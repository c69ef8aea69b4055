package planner

import (
	"encoding/json"
	"strings"

	"github.com/mohammad-safakhou/climarisk/internal/prompts"
	"github.com/mohammad-safakhou/climarisk/internal/taxonomy"
	"github.com/mohammad-safakhou/climarisk/internal/validator"
)

// Output slot names used by the standard pipeline.
const (
	SearchOutput     = "search_docs_output"
	AnalysisOutput   = "analyze_docs_output"
	DatavizOutput    = "dataviz_output"
	SynthesizeOutput = "synthesize_output"
)

// CanonicalPlan builds the four-stage plan for a validated request. It is
// used for the few-shot examples and as a reference in tests.
func CanonicalPlan(v validator.UserRequestValidation) []SubTask {
	places := strings.Join(v.Locations, ", ")
	risks := v.Risks
	if risks == nil {
		risks = []string{}
	}
	return []SubTask{
		{
			Task:        SearchDocs,
			Description: "Recherche des documents de référence pour " + places,
			Args: Args{
				"lieux":  v.Locations,
				"docs":   taxonomy.DocumentCodes(v.AdminLevel),
				"niveau": string(v.AdminLevel),
			},
			Out: SearchOutput,
		},
		{
			Task:        AnalyzeDocs,
			Description: "Analyse des risques et des plans d'adaptation dans les documents",
			Args:        Args{"in": SearchOutput, "risques": risks},
			Out:         AnalysisOutput,
		},
		{
			Task:        DataViz,
			Description: "Visualisation des données de risques pour " + places,
			Args:        Args{"in": AnalysisOutput, "risques": risks, "lieux": v.Locations},
			Out:         DatavizOutput,
		},
		{
			Task:        Synthesize,
			Description: "Synthèse des risques et des plans de mitigation",
			Args:        Args{"in": AnalysisOutput},
			Out:         SynthesizeOutput,
		},
	}
}

// DefaultExamples renders canonical plans for two representative requests.
func DefaultExamples() []prompts.PlanExample {
	requests := []validator.UserRequestValidation{
		{
			Valid:      true,
			Message:    "Quelles sont les mesures prises contre les inondations à Paris, Bordeaux et Lyon ?",
			Risks:      []string{"Inondation"},
			Locations:  []string{"Paris", "Bordeaux", "Lyon"},
			AdminLevel: taxonomy.Commune,
		},
		{
			Valid:      true,
			Message:    "Comment le département du Var se prépare-t-il aux feux de forêt et à la sécheresse ?",
			Risks:      []string{"Feu de forêt", "Sécheresse"},
			Locations:  []string{"Var"},
			AdminLevel: taxonomy.Departement,
		},
	}
	out := make([]prompts.PlanExample, 0, len(requests))
	for _, r := range requests {
		b, err := json.MarshalIndent(CanonicalPlan(r), "", "  ")
		if err != nil {
			continue
		}
		out = append(out, prompts.PlanExample{Request: r.Message, Plan: string(b)})
	}
	return out
}
