// Package dataviz picks a chart for a set of risks and places, loads the
// matching dataset and renders it. Both model calls are single attempts; any
// unusable answer yields a Result of KindNone instead of an error.
package dataviz

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mohammad-safakhou/climarisk/internal/jsonout"
	"github.com/mohammad-safakhou/climarisk/internal/llm"
	"github.com/mohammad-safakhou/climarisk/internal/prompts"
	"github.com/mohammad-safakhou/climarisk/internal/taxonomy"
)

// Kind is a visualisation type.
type Kind string

const (
	KindHistogram Kind = "histogram"
	KindMap       Kind = "map"
	KindNone      Kind = "none"
)

// Kinds lists the visualisations the model may choose from.
func Kinds() []Kind { return []Kind{KindHistogram, KindMap} }

func parseKind(s string) (Kind, bool) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds() {
		if k == known {
			return k, true
		}
	}
	return KindNone, false
}

// Point is one aggregated value.
type Point struct {
	Label string `json:"label"`
	Value int    `json:"value"`
}

// Result is the visualisation artifact. HTML holds the rendered chart page
// and is empty for KindNone.
type Result struct {
	Kind        Kind    `json:"kind"`
	Source      string  `json:"source,omitempty"`
	Column      string  `json:"column,omitempty"`
	Description string  `json:"description"`
	Series      []Point `json:"series,omitempty"`
	HTML        string  `json:"html,omitempty"`
}

func none(description string) Result { return Result{Kind: KindNone, Description: description} }

// Request describes what to visualise.
type Request struct {
	Risks  []string
	Places []string
	Level  taxonomy.AdminLevel
}

// Loader returns the rows of a data source for places, keyed by column.
type Loader interface {
	Load(ctx context.Context, source string, places []string) ([]map[string]string, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, source string, places []string) ([]map[string]string, error)

func (f LoaderFunc) Load(ctx context.Context, source string, places []string) ([]map[string]string, error) {
	return f(ctx, source, places)
}

//go:embed choice_schema.json
var choiceSchemaJSON string

//go:embed column_schema.json
var columnSchemaJSON string

var (
	choiceSchema = jsonout.NewSchema("choice_schema.json", choiceSchemaJSON)
	columnSchema = jsonout.NewSchema("column_schema.json", columnSchemaJSON)
)

type choice struct {
	Visualization string `json:"visualization"`
	Source        string `json:"source"`
}

type columnChoice struct {
	Column string `json:"column"`
}

type Generator struct {
	client   llm.Client
	settings llm.ModelSettings
	timeout  time.Duration
	loader   Loader
	observer llm.Observer
	logger   *zap.Logger
}

type Option func(*Generator)

// WithTimeout bounds each model call.
func WithTimeout(d time.Duration) Option {
	return func(g *Generator) { g.timeout = d }
}

// WithObserver reports both model calls.
func WithObserver(o llm.Observer) Option {
	return func(g *Generator) { g.observer = o }
}

func New(client llm.Client, settings llm.ModelSettings, loader Loader, logger *zap.Logger, opts ...Option) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Generator{client: client, settings: settings, loader: loader, logger: logger.Named("dataviz")}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns an error only for transport failures and cancellation.
func (g *Generator) Generate(ctx context.Context, req Request) (Result, error) {
	sources := taxonomy.DataSources(req.Level)
	if len(sources) == 0 {
		return none("Aucune source de données n'est disponible pour ce niveau administratif."), nil
	}
	kinds := make([]string, 0, len(Kinds()))
	for _, k := range Kinds() {
		kinds = append(kinds, string(k))
	}
	risks := taxonomy.Expand(req.Risks)
	prompt, err := prompts.DatavizChoice(prompts.DatavizChoiceData{Risks: risks, Places: req.Places, Kinds: kinds, Sources: sources})
	if err != nil {
		return Result{}, err
	}
	var picked choice
	if ok, err := g.ask(ctx, prompt, choiceSchema, &picked); err != nil || !ok {
		return none("Le modèle n'a pas proposé de visualisation exploitable."), err
	}
	kind, ok := parseKind(picked.Visualization)
	if !ok {
		g.logger.Info("unknown visualization", zap.String("visualization", picked.Visualization))
		return none(fmt.Sprintf("La visualisation %q ne fait pas partie du catalogue.", picked.Visualization)), nil
	}
	source, ok := findSource(sources, picked.Source)
	if !ok {
		g.logger.Info("unknown data source", zap.String("source", picked.Source))
		return none(fmt.Sprintf("La source de données %q n'est pas disponible.", picked.Source)), nil
	}

	rows, err := g.loader.Load(ctx, source.ID, req.Places)
	if err != nil {
		return Result{}, fmt.Errorf("load %s: %w", source.ID, err)
	}
	if len(rows) == 0 {
		return Result{Kind: KindNone, Source: source.ID, Description: "Aucune donnée disponible pour " + strings.Join(req.Places, ", ") + "."}, nil
	}

	prompt, err = prompts.DatavizColumn(prompts.DatavizColumnData{Source: source.ID, Kind: string(kind), Columns: source.Columns, Risks: risks})
	if err != nil {
		return Result{}, err
	}
	var col columnChoice
	if ok, err := g.ask(ctx, prompt, columnSchema, &col); err != nil || !ok {
		return Result{Kind: KindNone, Source: source.ID, Description: "Le modèle n'a pas choisi de colonne exploitable."}, err
	}
	column, ok := findColumn(source.Columns, col.Column)
	if !ok {
		return Result{Kind: KindNone, Source: source.ID, Description: fmt.Sprintf("La colonne %q n'existe pas dans %s.", col.Column, source.ID)}, nil
	}

	series := Aggregate(rows, column)
	res := Result{
		Kind:        kind,
		Source:      source.ID,
		Column:      column,
		Series:      series,
		Description: describe(kind, source, column, req.Places),
	}
	html, err := Render(res)
	if err != nil {
		g.logger.Warn("render chart", zap.Error(err))
		return Result{Kind: KindNone, Source: source.ID, Column: column, Series: series, Description: "Le graphique n'a pas pu être généré."}, nil
	}
	res.HTML = html
	return res, nil
}

// ask makes a single model call. A malformed answer returns ok=false with a
// nil error.
func (g *Generator) ask(ctx context.Context, prompt string, schema *jsonout.Schema, v any) (bool, error) {
	reply, err := llm.WithDeadline(g.client, g.timeout).Converse(ctx, g.settings.Request(llm.User(prompt)))
	if err != nil {
		g.observe(err)
		if errors.Is(err, llm.ErrDeadline) || errors.Is(err, llm.ErrInvalidOption) {
			g.logger.Warn("dataviz call failed", zap.Error(err))
			return false, nil
		}
		return false, err
	}
	err = jsonout.Decode(reply.Content, schema, v)
	g.observe(err)
	if err != nil {
		g.logger.Info("dataviz answer rejected", zap.Error(err))
		return false, nil
	}
	return true, nil
}

func (g *Generator) observe(err error) {
	if g.observer != nil {
		g.observer.ObserveAttempt(llm.StageDataViz, 1, err)
	}
}

func findSource(sources []taxonomy.DataSource, id string) (taxonomy.DataSource, bool) {
	id = strings.TrimSpace(id)
	for _, s := range sources {
		if strings.EqualFold(s.ID, id) {
			return s, true
		}
	}
	return taxonomy.DataSource{}, false
}

func findColumn(columns []string, name string) (string, bool) {
	name = strings.TrimSpace(name)
	for _, c := range columns {
		if strings.EqualFold(c, name) {
			return c, true
		}
	}
	return "", false
}

// Aggregate counts rows per value of column, largest counts first. Rows
// without a value are ignored.
func Aggregate(rows []map[string]string, column string) []Point {
	counts := map[string]int{}
	for _, row := range rows {
		label := strings.TrimSpace(row[column])
		if label == "" {
			continue
		}
		counts[label]++
	}
	out := make([]Point, 0, len(counts))
	for label, n := range counts {
		out = append(out, Point{Label: label, Value: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].Label < out[j].Label
	})
	return out
}

func describe(kind Kind, source taxonomy.DataSource, column string, places []string) string {
	what := "Histogramme"
	if kind == KindMap {
		what = "Carte"
	}
	return fmt.Sprintf("%s du nombre d'enregistrements par %s (%s) pour %s.", what, column, source.Label, strings.Join(places, ", "))
}
