package prompts

import (
	"errors"
	"strings"
	"testing"

	"github.com/mohammad-safakhou/climarisk/internal/taxonomy"
)

func TestValidationEmbedsTaxonomyAndExamples(t *testing.T) {
	out, err := Validation(ValidationData{
		Request: "Quels risques d'inondation pour Paris ?",
		Examples: []ValidationExample{{
			Request: "Comment la France gère-t-elle le stress hydrique ?",
			Result:  map[string]any{"requete_valide": false, "message": "lieu manquant"},
		}},
	})
	if err != nil {
		t.Fatalf("Validation: %v", err)
	}
	for _, r := range taxonomy.Risks() {
		if !strings.Contains(out, r.Name) {
			t.Fatalf("prompt misses risk %q", r.Name)
		}
	}
	for _, want := range []string{"Risques physiques aigus", "groupement de communes", `"requete_valide": false`, "**Requête utilisateur :** Quels risques d'inondation pour Paris ?"} {
		if !strings.Contains(out, want) {
			t.Fatalf("prompt misses %q:\n%s", want, out)
		}
	}
}

func TestPlanningEmbedsCatalog(t *testing.T) {
	out, err := Planning(PlanningData{
		Request:   "Quels risques d'inondation pour Paris ?",
		Risks:     []string{"Inondation"},
		Places:    []string{"Paris"},
		Level:     taxonomy.Commune,
		TaskTypes: []string{"SEARCH_DOCS", "ANALYZE_DOCS"},
		Examples:  []PlanExample{{Request: "r", Plan: `[{"task":"SEARCH_DOCS"}]`}},
	})
	if err != nil {
		t.Fatalf("Planning: %v", err)
	}
	for _, want := range []string{"DICRIM", "SRADDET", taxonomy.CatNatSource, "SEARCH_DOCS, ANALYZE_DOCS", "**Lieux :** Paris", `[{"task":"SEARCH_DOCS"}]`} {
		if !strings.Contains(out, want) {
			t.Fatalf("prompt misses %q:\n%s", want, out)
		}
	}
	out, err = Planning(PlanningData{Places: []string{"Lyon"}, Level: taxonomy.Commune})
	if err != nil {
		t.Fatalf("Planning: %v", err)
	}
	if !strings.Contains(out, "tous les risques") {
		t.Fatalf("empty risk list should read as all risks")
	}
}

func TestCorrectionsQuoteTheError(t *testing.T) {
	if got := PlanningCorrection(errors.New("missing task"), `{"type":"array"}`); !strings.Contains(got, "missing task") || !strings.Contains(got, `{"type":"array"}`) {
		t.Fatalf("planning correction = %q", got)
	}
	if got := AnalysisCorrection(nil); !strings.Contains(got, "réponse invalide") {
		t.Fatalf("analysis correction = %q", got)
	}
}

func TestSmallPrompts(t *testing.T) {
	out, err := DatavizChoice(DatavizChoiceData{
		Risks: []string{"Inondation"}, Places: []string{"Paris"},
		Kinds: []string{"histogram", "map"}, Sources: taxonomy.DataSources(taxonomy.Commune),
	})
	if err != nil || !strings.Contains(out, "- histogram") || !strings.Contains(out, taxonomy.CatNatSource) {
		t.Fatalf("dataviz choice = %q, %v", out, err)
	}
	out, err = RelevanceTopic("PCS", "texte")
	if err != nil || !strings.Contains(out, "parle-t-il bien de PCS") {
		t.Fatalf("relevance = %q, %v", out, err)
	}
}
