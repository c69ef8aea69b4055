// Package georisques talks to the national risk portal: commune lookup on
// geo.api.gouv.fr, the per-commune risk report PDF and the CatNat register.
package georisques

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/agnivade/levenshtein"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/climarisk/config"
	"github.com/mohammad-safakhou/climarisk/internal/taxonomy"
	"github.com/mohammad-safakhou/climarisk/models"
	"github.com/mohammad-safakhou/climarisk/tools/web_fetch/pdf"
)

const (
	DefaultBaseURL    = "https://georisques.gouv.fr/api/v1"
	DefaultGeoBaseURL = "https://geo.api.gouv.fr"

	// ReportKind tags documents produced by Report.
	ReportKind = "RAPPORT_GEORISQUES"

	maxCatNatPages = 20
	catNatPageSize = 100
	maxReportBytes = 50 << 20
)

var placePrefixes = []string{"metropole de ", "metropole du ", "ville de ", "ville du ", "commune de ", "commune du "}

// Commune is one geo.api.gouv.fr match.
type Commune struct {
	Code string `json:"code"`
	Name string `json:"nom"`
}

// CatNatEvent is one natural disaster decree.
type CatNatEvent struct {
	Code        string `json:"code_national_catnat"`
	Start       string `json:"date_debut_evt"`
	End         string `json:"date_fin_evt"`
	Published   string `json:"date_publication_jo"`
	Risk        string `json:"libelle_risque_jo"`
	INSEE       string `json:"code_insee"`
	CommuneName string `json:"libelle_commune"`
}

// Year returns the start year of the event, parsed from a dd/mm/yyyy or
// yyyy-mm-dd date.
func (e CatNatEvent) Year() string {
	s := strings.TrimSpace(e.Start)
	switch {
	case len(s) == 10 && s[2] == '/' && s[5] == '/':
		return s[6:]
	case len(s) >= 10 && s[4] == '-':
		return s[:4]
	}
	return ""
}

// Row returns the event keyed by the CatNat data source columns.
func (e CatNatEvent) Row() map[string]string {
	return map[string]string{
		"libelle_risque_jo": e.Risk,
		"annee_debut_evt":   e.Year(),
		"libelle_commune":   e.CommuneName,
	}
}

type Client struct {
	baseURL    string
	geoBaseURL string
	http       *http.Client
	extract    func([]byte) (string, error)
	logger     *zap.Logger
}

type Option func(*Client)

// WithExtractor replaces the PDF text extractor.
func WithExtractor(fn func([]byte) (string, error)) Option {
	return func(c *Client) { c.extract = fn }
}

func New(cfg config.GeorisquesConfig, client *http.Client, logger *zap.Logger, opts ...Option) *Client {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		baseURL:    strings.TrimRight(orDefault(cfg.BaseURL, DefaultBaseURL), "/"),
		geoBaseURL: strings.TrimRight(orDefault(cfg.GeoBaseURL, DefaultGeoBaseURL), "/"),
		http:       client,
		extract:    pdf.Text,
		logger:     logger.Named("georisques"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LookupCommune resolves a place name to the closest commune by edit
// distance on the folded names.
func (c *Client) LookupCommune(ctx context.Context, place string) (Commune, error) {
	name := communeName(place)
	if name == "" {
		return Commune{}, fmt.Errorf("lookup commune %q: %w", place, models.ErrDocumentNotFound)
	}
	q := url.Values{}
	q.Set("nom", name)
	q.Set("fields", "code,nom")
	q.Set("boost", "population")
	q.Set("limit", "10")
	var candidates []Commune
	if err := c.getJSON(ctx, c.geoBaseURL+"/communes?"+q.Encode(), &candidates); err != nil {
		return Commune{}, fmt.Errorf("lookup commune %q: %w", place, err)
	}
	if len(candidates) == 0 {
		return Commune{}, fmt.Errorf("lookup commune %q: %w", place, models.ErrDocumentNotFound)
	}
	target := taxonomy.Fold(name)
	best, bestDist := candidates[0], -1
	for _, cand := range candidates {
		d := levenshtein.ComputeDistance(target, taxonomy.Fold(cand.Name))
		if bestDist < 0 || d < bestDist {
			best, bestDist = cand, d
		}
	}
	c.logger.Debug("commune resolved", zap.String("place", place), zap.String("insee", best.Code), zap.String("name", best.Name))
	return best, nil
}

// ReportURL is the risk report address for an INSEE code.
func (c *Client) ReportURL(code string) string {
	return c.baseURL + "/rapport_pdf?code_insee=" + url.QueryEscape(code)
}

// Report downloads the Géorisques report of place. Bodies that are not PDF
// files are reported as ErrDocumentNotFound.
func (c *Client) Report(ctx context.Context, place string) (models.Document, error) {
	commune, err := c.LookupCommune(ctx, place)
	if err != nil {
		return models.Document{}, err
	}
	target := c.ReportURL(commune.Code)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return models.Document{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return models.Document{}, fmt.Errorf("georisques report %s: %w", commune.Code, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return models.Document{}, fmt.Errorf("georisques report %s: status %d: %w", commune.Code, resp.StatusCode, models.ErrDocumentNotFound)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReportBytes))
	if err != nil {
		return models.Document{}, fmt.Errorf("georisques report %s: %w", commune.Code, err)
	}
	if !pdf.IsPDF(body) {
		return models.Document{}, fmt.Errorf("georisques report %s: not a PDF: %w", commune.Code, models.ErrDocumentNotFound)
	}
	text, err := c.extract(body)
	if err != nil {
		return models.Document{}, fmt.Errorf("georisques report %s: %w", commune.Code, err)
	}
	return models.Document{
		URL:    target,
		Text:   text,
		Title:  "Rapport Géorisques " + commune.Name,
		Kind:   ReportKind,
		Place:  place,
		Source: models.SourceGeorisques,
	}, nil
}

type catNatPage struct {
	Data []CatNatEvent `json:"data"`
	Next *string       `json:"next"`
}

// CatNat lists the natural disaster decrees of an INSEE code, following
// pagination.
func (c *Client) CatNat(ctx context.Context, code string) ([]CatNatEvent, error) {
	q := url.Values{}
	q.Set("code_insee", code)
	q.Set("page", "1")
	q.Set("page_size", fmt.Sprint(catNatPageSize))
	next := c.baseURL + "/gaspar/catnat?" + q.Encode()
	var out []CatNatEvent
	for page := 0; next != "" && page < maxCatNatPages; page++ {
		var p catNatPage
		if err := c.getJSON(ctx, next, &p); err != nil {
			return nil, fmt.Errorf("catnat %s: %w", code, err)
		}
		out = append(out, p.Data...)
		next = ""
		if p.Next != nil {
			next = *p.Next
		}
	}
	return out, nil
}

// CatNatRows resolves each place and returns its decrees as rows keyed by
// the data source columns. Places that cannot be resolved are skipped.
func (c *Client) CatNatRows(ctx context.Context, places []string) ([]map[string]string, error) {
	var rows []map[string]string
	for _, place := range places {
		commune, err := c.LookupCommune(ctx, place)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Warn("catnat place skipped", zap.String("place", place), zap.Error(err))
			continue
		}
		events, err := c.CatNat(ctx, commune.Code)
		if err != nil {
			return nil, err
		}
		for _, e := range events {
			rows = append(rows, e.Row())
		}
	}
	return rows, nil
}

func (c *Client) getJSON(ctx context.Context, target string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", target, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func communeName(place string) string {
	name := strings.TrimSpace(place)
	folded := taxonomy.Fold(name)
	for _, p := range placePrefixes {
		if strings.HasPrefix(folded, p) {
			return strings.TrimSpace(folded[len(p):])
		}
	}
	return name
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
