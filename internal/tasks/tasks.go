// Package tasks holds the SEARCH_DOCS, ANALYZE_DOCS, DATAVIZ and SYNTHESIZE
// handlers and the wiring that builds them from configuration.
package tasks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mohammad-safakhou/climarisk/config"
	"github.com/mohammad-safakhou/climarisk/internal/analysis"
	"github.com/mohammad-safakhou/climarisk/internal/dataviz"
	"github.com/mohammad-safakhou/climarisk/internal/executor"
	"github.com/mohammad-safakhou/climarisk/internal/llm"
	"github.com/mohammad-safakhou/climarisk/internal/taxonomy"
	"github.com/mohammad-safakhou/climarisk/tools/doccache"
	"github.com/mohammad-safakhou/climarisk/tools/docindex"
	"github.com/mohammad-safakhou/climarisk/tools/georisques"
	"github.com/mohammad-safakhou/climarisk/tools/web_fetch"
	"github.com/mohammad-safakhou/climarisk/tools/web_search"
)

// Deps are the collaborators shared by the handlers.
type Deps struct {
	Config     *config.Config
	Client     llm.Client
	Georisques *georisques.Client
	Web        web_search.WebSearcher
	Fetcher    web_fetch.WebFetcher
	Cache      *doccache.Cache
	Observer   llm.Observer
	Logger     *zap.Logger
}

// Handlers builds the four standard handlers.
func Handlers(d Deps) []executor.Handler {
	cfg := d.Config
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	routing := cfg.LLM.Routing
	analysisCfg := cfg.Analysis.Normalize()

	relevance := Relevance{MinWords: cfg.Sources.MinWords, Index: docindex.New()}
	if cfg.Sources.LLMRelevance {
		relevance.Judge = &Judge{
			Client:   d.Client,
			Settings: routing.Stage(llm.StageRelevance),
			Timeout:  cfg.LLM.Timeout,
			Logger:   logger.Named("relevance"),
		}
	}

	search := &Search{
		Web:           d.Web,
		Fetcher:       d.Fetcher,
		Cache:         d.Cache,
		Relevance:     relevance,
		Allow:         cfg.Sources.Domains.Allows,
		ResultsPerDoc: cfg.Sources.WebSearch.ResultsPerDoc,
		Logger:        logger.Named("search"),
	}
	if d.Georisques != nil {
		search.Reports = d.Georisques
	}

	analyzer := analysis.New(d.Client, routing.Stage(llm.StageAnalysis), analysisCfg.Policy(cfg.LLM.Timeout), logger,
		analysis.WithMaxChars(analysisCfg.MaxChars),
		analysis.WithObserver(d.Observer))

	generator := dataviz.New(d.Client, routing.Stage(llm.StageDataViz), CatNatLoader(d.Georisques), logger,
		dataviz.WithTimeout(cfg.LLM.Timeout),
		dataviz.WithObserver(d.Observer))

	return []executor.Handler{
		search,
		&Analyze{Analyzer: analyzer},
		&Dataviz{Generator: generator},
		&Synthesize{
			Client:   d.Client,
			Settings: routing.Stage(llm.StageSynthesis),
			Timeout:  cfg.LLM.Timeout,
			Logger:   logger.Named("synthesis"),
		},
	}
}

// CatNatLoader serves the CatNat data source from Géorisques.
func CatNatLoader(c *georisques.Client) dataviz.Loader {
	return dataviz.LoaderFunc(func(ctx context.Context, source string, places []string) ([]map[string]string, error) {
		if source != taxonomy.CatNatSource {
			return nil, fmt.Errorf("unknown data source %q", source)
		}
		if c == nil {
			return nil, nil
		}
		return c.CatNatRows(ctx, places)
	})
}
