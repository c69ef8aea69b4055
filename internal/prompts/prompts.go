// Package prompts renders the instructions sent to the language model.
// Templates are embedded French text/template files executed with typed data.
package prompts

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/mohammad-safakhou/climarisk/internal/taxonomy"
)

//go:embed templates/*.tmpl
var files embed.FS

var funcs = template.FuncMap{
	"join": func(items any, sep string) string {
		switch v := items.(type) {
		case []string:
			return strings.Join(v, sep)
		case []taxonomy.AdminLevel:
			parts := make([]string, len(v))
			for i, l := range v {
				parts[i] = string(l)
			}
			return strings.Join(parts, sep)
		default:
			return fmt.Sprint(items)
		}
	},
	"json": func(v any) (string, error) {
		b, err := json.MarshalIndent(v, "", "    ")
		if err != nil {
			return "", err
		}
		return string(b), nil
	},
}

var templates = template.Must(template.New("prompts").Funcs(funcs).ParseFS(files, "templates/*.tmpl"))

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name+".tmpl", data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// CategoryGroup lists the risks of one category.
type CategoryGroup struct {
	Name  string
	Risks []string
}

// Groups returns the taxonomy grouped by category, in canonical order.
func Groups() []CategoryGroup {
	out := make([]CategoryGroup, 0, 3)
	for _, c := range taxonomy.Categories() {
		out = append(out, CategoryGroup{Name: string(c), Risks: taxonomy.InCategory(c)})
	}
	return out
}

// ValidationExample is one few-shot accept/reject decision. Result is
// rendered as JSON with the wire keys.
type ValidationExample struct {
	Request string
	Result  any
}

// ValidationData feeds the request validation prompt.
type ValidationData struct {
	Request    string
	Categories []CategoryGroup
	Levels     []taxonomy.AdminLevel
	Examples   []ValidationExample
}

// Validation renders the request validation prompt.
func Validation(d ValidationData) (string, error) {
	if d.Categories == nil {
		d.Categories = Groups()
	}
	if d.Levels == nil {
		d.Levels = taxonomy.AdminLevels()
	}
	return render("validation", d)
}

// LevelCatalog is one row of the admin level lookup table.
type LevelCatalog struct {
	Level     taxonomy.AdminLevel
	Documents []taxonomy.DocType
	Sources   []taxonomy.DataSource
}

// Catalog builds the lookup table for every admin level.
func Catalog() []LevelCatalog {
	levels := taxonomy.AdminLevels()
	out := make([]LevelCatalog, 0, len(levels))
	for _, l := range levels {
		out = append(out, LevelCatalog{Level: l, Documents: taxonomy.Documents(l), Sources: taxonomy.DataSources(l)})
	}
	return out
}

// PlanExample pairs a request with a rendered JSON plan.
type PlanExample struct {
	Request string
	Plan    string
}

// PlanningData feeds the planning prompt.
type PlanningData struct {
	Request   string
	Risks     []string
	Places    []string
	Level     taxonomy.AdminLevel
	TaskTypes []string
	Catalog   []LevelCatalog
	Examples  []PlanExample
}

// Planning renders the planning prompt.
func Planning(d PlanningData) (string, error) {
	if d.Catalog == nil {
		d.Catalog = Catalog()
	}
	return render("planning", d)
}

// PlanningCorrection renders the corrective instruction appended after a
// malformed plan.
func PlanningCorrection(cause error, schema string) string {
	out, err := render("planning_correction", struct {
		Error  string
		Schema string
	}{errorText(cause), schema})
	if err != nil {
		return "Reformulez la réponse en un tableau JSON valide."
	}
	return out
}

// AnalysisData feeds the document analysis prompt.
type AnalysisData struct {
	Risks    []string
	Document string
}

// Analysis renders the per-document analysis prompt.
func Analysis(d AnalysisData) (string, error) {
	return render("analysis", d)
}

// AnalysisCorrection renders the instruction appended after an invalid analysis.
func AnalysisCorrection(cause error) string {
	out, err := render("analysis_correction", struct{ Error string }{errorText(cause)})
	if err != nil {
		return "Réponds uniquement avec un objet JSON valide."
	}
	return out
}

// SynthesisData feeds the synthesis prompt. Analyses is pre-serialised JSON.
type SynthesisData struct {
	Analyses string
	Places   []string
}

// Synthesis renders the synthesis prompt.
func Synthesis(d SynthesisData) (string, error) {
	return render("synthesis", d)
}

// DatavizChoiceData feeds the visualisation selection prompt.
type DatavizChoiceData struct {
	Risks   []string
	Places  []string
	Kinds   []string
	Sources []taxonomy.DataSource
}

// DatavizChoice renders the visualisation and source selection prompt.
func DatavizChoice(d DatavizChoiceData) (string, error) {
	return render("dataviz_choice", d)
}

// DatavizColumnData feeds the label column selection prompt.
type DatavizColumnData struct {
	Source  string
	Kind    string
	Columns []string
	Risks   []string
}

// DatavizColumn renders the label column selection prompt.
func DatavizColumn(d DatavizColumnData) (string, error) {
	return render("dataviz_column", d)
}

// RelevanceGibberish asks whether a text sample is readable.
func RelevanceGibberish(sample string) (string, error) {
	return render("relevance_gibberish", struct{ Text string }{sample})
}

// RelevanceTopic asks whether text is about subject.
func RelevanceTopic(subject, text string) (string, error) {
	return render("relevance_topic", struct{ Subject, Text string }{subject, text})
}

// Rejection asks the model to phrase a rejection for the user.
func Rejection(message string) (string, error) {
	return render("rejection", struct{ Message string }{message})
}

func errorText(err error) string {
	if err == nil {
		return "réponse invalide"
	}
	return err.Error()
}
