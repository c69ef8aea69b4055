package planner

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/mohammad-safakhou/climarisk/internal/jsonout"
)

//go:embed plan_schema.json
var planSchemaJSON string

var planSchema = jsonout.NewSchema("plan_schema.json", planSchemaJSON)

// PlanSchema returns the JSON Schema every generated plan must satisfy.
func PlanSchema() *jsonout.Schema { return planSchema }

// TaskType tags a sub-task with the handler that executes it.
type TaskType string

const (
	SearchDocs  TaskType = "SEARCH_DOCS"
	AnalyzeDocs TaskType = "ANALYZE_DOCS"
	DataViz     TaskType = "DATAVIZ"
	Synthesize  TaskType = "SYNTHESIZE"
)

// CanonicalTypes lists the task types of the standard pipeline in order.
func CanonicalTypes() []TaskType {
	return []TaskType{SearchDocs, AnalyzeDocs, DataViz, Synthesize}
}

// SubTask is one step of a plan. Out names the slot the result is published
// under; an empty Out discards it.
type SubTask struct {
	Task        TaskType `json:"task"`
	Description string   `json:"description"`
	Args        Args     `json:"args"`
	Out         string   `json:"out,omitempty"`
}

// In returns the output slot the task reads, if any.
func (t SubTask) In() (string, bool) { return t.Args.Ref() }

// ParsePlan decodes and schema-checks a plan embedded in model text.
func ParsePlan(text string) ([]SubTask, error) {
	var tasks []SubTask
	if err := jsonout.Decode(text, planSchema, &tasks); err != nil {
		return nil, err
	}
	for i := range tasks {
		tasks[i].Task = TaskType(strings.TrimSpace(string(tasks[i].Task)))
		tasks[i].Out = strings.TrimSpace(tasks[i].Out)
		if tasks[i].Args == nil {
			tasks[i].Args = Args{}
		}
	}
	return tasks, nil
}

// Args is the loosely typed argument bag of a sub-task. Values are strings,
// numbers, lists of strings or, under the "in" key, an output reference.
// Handlers narrow the subset they need on entry.
type Args map[string]any

// RefKey is the argument naming the output slot a task reads.
const RefKey = "in"

// ArgError reports a missing or ill-typed argument.
type ArgError struct {
	Arg    string
	Reason string
}

func (e *ArgError) Error() string {
	return fmt.Sprintf("argument %q: %s", e.Arg, e.Reason)
}

// Has reports whether key is present and non-null.
func (a Args) Has(key string) bool {
	v, ok := a[key]
	return ok && v != nil
}

// Ref returns the output reference, if any.
func (a Args) Ref() (string, bool) {
	s, ok := a[RefKey].(string)
	s = strings.TrimSpace(s)
	return s, ok && s != ""
}

// RequireRef returns the output reference or an ArgError.
func (a Args) RequireRef() (string, error) {
	ref, ok := a.Ref()
	if !ok {
		return "", &ArgError{Arg: RefKey, Reason: "output reference required"}
	}
	return ref, nil
}

// String returns a required string argument.
func (a Args) String(key string) (string, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return "", &ArgError{Arg: key, Reason: "required"}
	}
	s, ok := v.(string)
	if !ok {
		return "", &ArgError{Arg: key, Reason: fmt.Sprintf("expected a string, got %T", v)}
	}
	return s, nil
}

// StringOr returns an optional string argument.
func (a Args) StringOr(key, fallback string) (string, error) {
	if !a.Has(key) {
		return fallback, nil
	}
	return a.String(key)
}

// Strings returns a list argument. A single string is accepted as a list of
// one; blank entries are dropped.
func (a Args) Strings(key string) ([]string, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return nil, &ArgError{Arg: key, Reason: "required"}
	}
	var out []string
	switch items := v.(type) {
	case string:
		out = []string{items}
	case []string:
		out = slices.Clone(items)
	case []any:
		out = make([]string, 0, len(items))
		for i, item := range items {
			s, ok := item.(string)
			if !ok {
				return nil, &ArgError{Arg: key, Reason: fmt.Sprintf("item %d: expected a string, got %T", i, item)}
			}
			out = append(out, s)
		}
	default:
		return nil, &ArgError{Arg: key, Reason: fmt.Sprintf("expected a list of strings, got %T", v)}
	}
	return slices.DeleteFunc(out, func(s string) bool { return strings.TrimSpace(s) == "" }), nil
}

// StringsOr returns an optional list argument.
func (a Args) StringsOr(key string, fallback []string) ([]string, error) {
	if !a.Has(key) {
		return fallback, nil
	}
	return a.Strings(key)
}

// Number returns an optional numeric argument.
func (a Args) Number(key string, fallback float64) (float64, error) {
	if !a.Has(key) {
		return fallback, nil
	}
	switch n := a[key].(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, &ArgError{Arg: key, Reason: err.Error()}
		}
		return f, nil
	default:
		return 0, &ArgError{Arg: key, Reason: fmt.Sprintf("expected a number, got %T", a[key])}
	}
}
