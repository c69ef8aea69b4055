// Package server exposes the pipeline over HTTP with echo.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/climarisk/internal/executor"
	"github.com/mohammad-safakhou/climarisk/internal/pipeline"
	"github.com/mohammad-safakhou/climarisk/internal/store"
)

// Pipeline is the request pipeline served by the API.
type Pipeline interface {
	Submit(ctx context.Context, raw string) (pipeline.Submission, error)
	Run(ctx context.Context, raw string, progress func(executor.Progress)) (pipeline.Report, error)
}

// Reports reads stored reports.
type Reports interface {
	GetReport(ctx context.Context, id string) (pipeline.Report, error)
	ListReports(ctx context.Context, limit int) ([]store.ReportSummary, error)
}

// Options are the collaborators of the HTTP server. Reports may be nil when
// no database is configured; JWTSecret empty disables authentication.
type Options struct {
	Pipeline  Pipeline
	Reports   Reports
	Metrics   http.Handler
	JWTSecret []byte
	Logger    *zap.Logger
}

// New builds the echo instance with every route registered.
func New(opts Options) *echo.Echo {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("http")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		logger.Info("request failed",
			zap.Int("status", code),
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.String("remote", c.RealIP()),
			zap.Error(err))
		if !c.Response().Committed {
			_ = c.JSON(code, HTTPError{Error: msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	if opts.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(opts.Metrics))
	}

	api := e.Group("/api")
	if len(opts.JWTSecret) > 0 {
		api.Use(AuthMiddleware(opts.JWTSecret))
	}
	h := &handler{pipeline: opts.Pipeline, reports: opts.Reports, logger: logger}
	h.Register(api)
	return e
}

// Run serves e on addr until ctx is done, then shuts down gracefully.
func Run(ctx context.Context, e *echo.Echo, addr string) error {
	errCh := make(chan error, 1)
	go func() { errCh <- e.Start(addr) }()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	}
}
