// Package httpfetch downloads a URL and turns PDF, HTML or plain text bodies
// into document text.
package httpfetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"

	"github.com/mohammad-safakhou/climarisk/internal/helpers"
	"github.com/mohammad-safakhou/climarisk/tools/web_fetch/models"
	"github.com/mohammad-safakhou/climarisk/tools/web_fetch/pdf"
)

const DefaultMaxBytes = 50 << 20

var (
	ErrInvalidURL         = errors.New("invalid url")
	ErrTooLarge           = errors.New("document exceeds size limit")
	ErrUnsupportedContent = errors.New("unsupported content type")
)

// StatusError reports a non-2xx upstream answer.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string { return fmt.Sprintf("fetch %s: status %d", e.URL, e.Code) }

// Renderer returns the rendered HTML of a page, typically through a headless
// browser.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
}

type Fetch struct {
	Client    *http.Client
	MaxBytes  int64
	UserAgent string
	// Renderer, when set, re-renders HTML pages before extraction.
	Renderer Renderer
}

func (f Fetch) Exec(ctx context.Context, rawURL string) (models.Result, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return models.Result{}, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	t0 := time.Now()
	body, contentType, err := f.download(ctx, u.String())
	if err != nil {
		return models.Result{URL: rawURL}, err
	}
	res := models.Result{URL: rawURL, Status: http.StatusOK, Bytes: len(body)}

	switch {
	case pdf.IsPDF(body):
		text, err := pdf.Text(body)
		if err != nil {
			return res, err
		}
		res.ContentType = models.ContentPDF
		res.Text = text
	case isHTML(contentType, body):
		html := string(body)
		if f.Renderer != nil {
			if rendered, err := f.Renderer.Render(ctx, u.String()); err == nil {
				html = rendered
			}
		}
		article, err := readability.FromReader(strings.NewReader(html), u)
		res.ContentType = models.ContentHTML
		if err != nil {
			res.Text = helpers.PlainText(html)
		} else {
			res.Title = strings.TrimSpace(article.Title)
			res.Text = strings.TrimSpace(article.TextContent)
		}
	case strings.HasPrefix(contentType, "text/"):
		res.ContentType = models.ContentText
		res.Text = strings.TrimSpace(string(body))
	default:
		return res, fmt.Errorf("%w: %q", ErrUnsupportedContent, contentType)
	}
	res.ContentHash = helpers.ContentHash(res.Text)
	res.RenderMS = int(time.Since(t0) / time.Millisecond)
	return res, nil
}

func (f Fetch) download(ctx context.Context, target string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", err
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", &StatusError{URL: target, Code: resp.StatusCode}
	}
	limit := f.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, "", err
	}
	if int64(len(body)) > limit {
		return nil, "", fmt.Errorf("%w: more than %d bytes", ErrTooLarge, limit)
	}
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType == "" {
		mediaType, _, _ = mime.ParseMediaType(http.DetectContentType(body))
	}
	return body, mediaType, nil
}

func isHTML(contentType string, body []byte) bool {
	if contentType == "text/html" || contentType == "application/xhtml+xml" {
		return true
	}
	head := bytes.ToLower(bytes.TrimSpace(body[:min(len(body), 512)]))
	return bytes.HasPrefix(head, []byte("<!doctype html")) || bytes.HasPrefix(head, []byte("<html"))
}
