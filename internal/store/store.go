// Package store persists run reports in Postgres.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/otel"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/mohammad-safakhou/climarisk/config"
	"github.com/mohammad-safakhou/climarisk/internal/pipeline"
)

// ErrReportNotFound is returned by GetReport for unknown ids.
var ErrReportNotFound = errors.New("report not found")

// DefaultListLimit bounds ListReports when no limit is given.
const DefaultListLimit = 20

const maxListLimit = 200

type Store struct {
	DB *sql.DB
}

// ReportSummary is one row of ListReports.
type ReportSummary struct {
	ID        string    `json:"id"`
	Request   string    `json:"request"`
	Synthesis string    `json:"synthesis,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

var (
	metricsOnce    sync.Once
	savedCounter   otelmetric.Int64Counter
	metricsInitErr error
)

func initStoreMetrics() {
	meter := otel.Meter("store")
	savedCounter, metricsInitErr = meter.Int64Counter("reports_saved_total")
}

// New opens the database described by cfg.
func New(ctx context.Context, cfg config.PostgresConfig) (*Store, error) {
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}
	return NewWithDSN(ctx, dsn)
}

// NewWithDSN constructs the Store using an explicit Postgres DSN
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{DB: db}, nil
}

func (s *Store) Close() error { return s.DB.Close() }

// SaveReport inserts r, replacing a report with the same id.
func (s *Store) SaveReport(ctx context.Context, r pipeline.Report) error {
	if _, err := uuid.Parse(r.ID); err != nil {
		return fmt.Errorf("report id %q: %w", r.ID, err)
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err = s.DB.ExecContext(ctx, `
INSERT INTO reports (id, request, payload, created_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (id) DO UPDATE SET
  request = EXCLUDED.request,
  payload = EXCLUDED.payload;
`, r.ID, r.Request, payload, createdAt)
	if err != nil {
		return fmt.Errorf("save report %s: %w", r.ID, err)
	}
	metricsOnce.Do(initStoreMetrics)
	if metricsInitErr == nil {
		savedCounter.Add(ctx, 1)
	}
	return nil
}

// GetReport loads one report.
func (s *Store) GetReport(ctx context.Context, id string) (pipeline.Report, error) {
	if _, err := uuid.Parse(id); err != nil {
		return pipeline.Report{}, fmt.Errorf("%w: %s", ErrReportNotFound, id)
	}
	var payload []byte
	err := s.DB.QueryRowContext(ctx, `SELECT payload FROM reports WHERE id=$1`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return pipeline.Report{}, fmt.Errorf("%w: %s", ErrReportNotFound, id)
	}
	if err != nil {
		return pipeline.Report{}, err
	}
	var r pipeline.Report
	if err := json.Unmarshal(payload, &r); err != nil {
		return pipeline.Report{}, fmt.Errorf("decode report %s: %w", id, err)
	}
	return r, nil
}

// ListReports returns the most recent reports first.
func (s *Store) ListReports(ctx context.Context, limit int) ([]ReportSummary, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	limit = min(limit, maxListLimit)
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, request, COALESCE(payload->>'synthesis', ''), created_at
FROM reports
ORDER BY created_at DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []ReportSummary{}
	for rows.Next() {
		var r ReportSummary
		if err := rows.Scan(&r.ID, &r.Request, &r.Synthesis, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
