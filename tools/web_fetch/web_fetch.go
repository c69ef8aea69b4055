package web_fetch

import (
	"context"
	"net/http"

	"github.com/mohammad-safakhou/climarisk/config"
	"github.com/mohammad-safakhou/climarisk/tools/web_fetch/chromedp"
	"github.com/mohammad-safakhou/climarisk/tools/web_fetch/httpfetch"
	"github.com/mohammad-safakhou/climarisk/tools/web_fetch/models"
)

type WebFetcher interface {
	Exec(ctx context.Context, url string) (models.Result, error)
}

// NewWebFetcher builds the document downloader. HTML pages are rendered with
// headless chrome when cfg.Browser is set.
func NewWebFetcher(cfg config.FetchConfig, client *http.Client) WebFetcher {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	f := httpfetch.Fetch{Client: client, MaxBytes: cfg.MaxBytes, UserAgent: chromedp.DefaultUserAgent}
	if cfg.Browser {
		f.Renderer = chromedp.Render{Timeout: cfg.Timeout}
	}
	return f
}
