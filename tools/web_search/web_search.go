package web_search

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/mohammad-safakhou/climarisk/config"
	"github.com/mohammad-safakhou/climarisk/tools/web_search/brave"
	"github.com/mohammad-safakhou/climarisk/tools/web_search/models"
	"github.com/mohammad-safakhou/climarisk/tools/web_search/serper"
)

type WebSearcher interface {
	Discover(ctx context.Context, q models.Query) ([]models.Result, error)
}

type Provider string

const (
	SerperProvider Provider = "serper"
	BraveProvider  Provider = "brave"
	NoProvider     Provider = "none"
)

type Error struct{ msg string }

func (e *Error) Error() string { return e.msg }

var ErrUnsupportedProvider = &Error{"unsupported provider"}

// NewWebSearcher builds the searcher selected by cfg. The "none" provider
// returns a searcher that never finds anything.
func NewWebSearcher(cfg config.WebSearchConfig, client *http.Client) (WebSearcher, error) {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	switch Provider(strings.ToLower(strings.TrimSpace(cfg.Provider))) {
	case SerperProvider:
		return serper.Search{APIKey: cfg.APIKey(), Client: client}, nil
	case BraveProvider:
		return brave.Search{APIKey: cfg.APIKey(), Client: client}, nil
	case NoProvider, "":
		return Disabled{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, cfg.Provider)
	}
}

// Disabled is the searcher used when no provider is configured.
type Disabled struct{}

func (Disabled) Discover(context.Context, models.Query) ([]models.Result, error) { return nil, nil }

// Filter drops results whose URL does not satisfy keep, preserving order.
func Filter(results []models.Result, keep func(rawURL string) bool) []models.Result {
	out := results[:0:0]
	for _, r := range results {
		if keep(r.URL) {
			out = append(out, r)
		}
	}
	return out
}
