package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mohammad-safakhou/climarisk/internal/executor"
	"github.com/mohammad-safakhou/climarisk/internal/helpers"
	"github.com/mohammad-safakhou/climarisk/internal/planner"
	"github.com/mohammad-safakhou/climarisk/internal/taxonomy"
	"github.com/mohammad-safakhou/climarisk/models"
	"github.com/mohammad-safakhou/climarisk/tools/doccache"
	"github.com/mohammad-safakhou/climarisk/tools/web_fetch"
	"github.com/mohammad-safakhou/climarisk/tools/web_search"
	searchmodels "github.com/mohammad-safakhou/climarisk/tools/web_search/models"
)

// Source names accepted in the "sources" argument of SEARCH_DOCS.
const (
	SourceGeorisques = "georisques"
	SourceWeb        = "web"
)

const DefaultResultsPerDoc = 3

// ReportSource returns the official risk report of a place.
type ReportSource interface {
	Report(ctx context.Context, place string) (models.Document, error)
}

// Search implements SEARCH_DOCS: the Géorisques report of every place plus,
// per place and document type, the first relevant PDF results of a web search.
// Individual failures drop the document; only cancellation fails the task.
type Search struct {
	Reports       ReportSource
	Web           web_search.WebSearcher
	Fetcher       web_fetch.WebFetcher
	Cache         *doccache.Cache
	Relevance     Relevance
	Allow         func(rawURL string) bool
	ResultsPerDoc int
	Logger        *zap.Logger
}

func (s *Search) Type() planner.TaskType { return planner.SearchDocs }

func (s *Search) Execute(ctx context.Context, _ *executor.Run, args planner.Args) (any, error) {
	places, err := args.Strings("lieux")
	if err != nil {
		return nil, err
	}
	if len(places) == 0 {
		return nil, &planner.ArgError{Arg: "lieux", Reason: "at least one place required"}
	}
	levelName, err := args.StringOr("niveau", "")
	if err != nil {
		return nil, err
	}
	level, ok := taxonomy.ParseAdminLevel(levelName)
	if !ok {
		level = taxonomy.Commune
	}
	codes, err := args.StringsOr("docs", taxonomy.DocumentCodes(level))
	if err != nil {
		return nil, err
	}
	sources, err := args.StringsOr("sources", []string{SourceGeorisques, SourceWeb})
	if err != nil {
		return nil, err
	}

	logger := s.logger()
	seen := map[string]struct{}{}
	docs := []models.Document{}
	keep := func(doc models.Document) {
		key, err := helpers.CanonicalURL(doc.URL)
		if err != nil {
			key = doc.URL
		}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		docs = append(docs, doc)
	}

	for _, place := range places {
		if hasSource(sources, SourceGeorisques) && s.Reports != nil {
			doc, err := s.Reports.Report(ctx, place)
			switch {
			case err == nil:
				keep(doc)
			case ctx.Err() != nil:
				return nil, ctx.Err()
			case errors.Is(err, models.ErrDocumentNotFound):
				logger.Info("no georisques report", zap.String("place", place))
			default:
				logger.Warn("georisques report failed", zap.String("place", place), zap.Error(err))
			}
		}
		if !hasSource(sources, SourceWeb) || s.Web == nil || s.Fetcher == nil {
			continue
		}
		for _, code := range codes {
			found, err := s.searchWeb(ctx, place, code, seen)
			if err != nil {
				return nil, err
			}
			for _, doc := range found {
				keep(doc)
			}
		}
	}
	logger.Info("documents found", zap.Strings("places", places), zap.Int("count", len(docs)))
	return docs, nil
}

func (s *Search) searchWeb(ctx context.Context, place, code string, seen map[string]struct{}) ([]models.Document, error) {
	logger := s.logger()
	limit := s.ResultsPerDoc
	if limit <= 0 {
		limit = DefaultResultsPerDoc
	}
	q := searchmodels.Query{Text: fmt.Sprintf(`%s %s "%s"`, place, code, code), FileType: "pdf", K: limit * 3}
	results, err := s.Web.Discover(ctx, q)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Warn("web search failed", zap.String("query", q.String()), zap.Error(err))
		return nil, nil
	}
	if s.Allow != nil {
		results = web_search.Filter(results, s.Allow)
	}

	var out []models.Document
	for _, r := range results {
		if len(out) >= limit {
			break
		}
		if key, err := helpers.CanonicalURL(r.URL); err == nil {
			if _, dup := seen[key]; dup {
				continue
			}
		}
		doc, err := s.fetch(ctx, r.URL)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Info("document dropped", zap.String("url", r.URL), zap.Error(err))
			continue
		}
		doc.Kind, doc.Place = code, place
		if doc.Title == "" {
			doc.Title = helpers.PlainText(r.Title)
		}
		reason, err := s.Relevance.Check(ctx, doc, code)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn("relevance check failed", zap.String("url", r.URL), zap.Error(err))
			continue
		}
		if reason != "" {
			logger.Info("document not relevant", zap.String("url", r.URL), zap.String("reason", reason))
			continue
		}
		out = append(out, doc)
	}
	return out, nil
}

func (s *Search) fetch(ctx context.Context, rawURL string) (models.Document, error) {
	load := func(ctx context.Context) (models.Document, error) {
		res, err := s.Fetcher.Exec(ctx, rawURL)
		if err != nil {
			return models.Document{}, err
		}
		return models.Document{URL: rawURL, Text: res.Text, Title: res.Title, Source: models.SourceWebSearch}, nil
	}
	if s.Cache == nil {
		return load(ctx)
	}
	return s.Cache.Fetch(ctx, rawURL, load)
}

func (s *Search) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func hasSource(sources []string, name string) bool {
	for _, s := range sources {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return true
		}
	}
	return false
}
