package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mohammad-safakhou/climarisk/config"
	"github.com/mohammad-safakhou/climarisk/internal/executor"
	"github.com/mohammad-safakhou/climarisk/internal/llm"
	"github.com/mohammad-safakhou/climarisk/internal/pipeline"
	"github.com/mohammad-safakhou/climarisk/internal/planner"
	"github.com/mohammad-safakhou/climarisk/internal/store"
	"github.com/mohammad-safakhou/climarisk/internal/tasks"
	"github.com/mohammad-safakhou/climarisk/internal/telemetry"
	"github.com/mohammad-safakhou/climarisk/internal/validator"
	"github.com/mohammad-safakhou/climarisk/provider"
	"github.com/mohammad-safakhou/climarisk/tools/doccache"
	"github.com/mohammad-safakhou/climarisk/tools/georisques"
	"github.com/mohammad-safakhou/climarisk/tools/web_fetch"
	"github.com/mohammad-safakhou/climarisk/tools/web_search"
)

// app holds the wired components shared by the subcommands.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	telemetry *telemetry.Telemetry
	pipeline  *pipeline.Pipeline
	store     *store.Store
	redis     *redis.Client
}

func newLogger(cfg config.GeneralConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Debug {
		zc = zap.NewDevelopmentConfig()
	}
	if lvl := strings.TrimSpace(cfg.LogLevel); lvl != "" {
		level, err := zapcore.ParseLevel(lvl)
		if err != nil {
			return nil, fmt.Errorf("general.log_level: %w", err)
		}
		zc.Level = zap.NewAtomicLevelAt(level)
	}
	return zc.Build()
}

func loadApp(ctx context.Context, cfgPath string) (*app, error) {
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg.General)
	if err != nil {
		return nil, err
	}
	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return a, nil
}

func buildApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	tel, err := telemetry.Setup(ctx, cfg.Telemetry, telemetry.Options{ServiceName: "climarisk", ServiceVersion: version, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	a.telemetry = tel
	metrics, err := telemetry.NewMetrics(tel.Meter)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("metrics: %w", err)
	}

	client, err := provider.NewClient(cfg.LLM, logger)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	if cfg.Storage.Redis.Enabled() {
		a.redis = redis.NewClient(&redis.Options{
			Addr:        cfg.Storage.Redis.Addr(),
			Password:    cfg.Storage.Redis.Password,
			DB:          cfg.Storage.Redis.DB,
			DialTimeout: cfg.Storage.Redis.Timeout,
		})
	}

	web, err := web_search.NewWebSearcher(cfg.Sources.WebSearch, nil)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	handlers := tasks.Handlers(tasks.Deps{
		Config:     cfg,
		Client:     client,
		Georisques: georisques.New(cfg.Sources.Georisques, nil, logger),
		Web:        web,
		Fetcher:    web_fetch.NewWebFetcher(cfg.Sources.Fetch, nil),
		Cache:      doccache.New(doccache.NewStore(a.redis), cfg.Sources.CacheTTL),
		Observer:   metrics,
		Logger:     logger,
	})
	registry := executor.NewRegistry(handlers...)

	routing := cfg.LLM.Routing
	v := validator.New(client, routing.Stage(llm.StageValidation), logger,
		validator.WithTimeout(cfg.LLM.Timeout),
		validator.WithObserver(metrics))
	pl := planner.New(client, routing.Stage(llm.StagePlanning), cfg.Planner.Policy(cfg.LLM.Timeout), logger,
		planner.WithTaskTypes(registry.Types()...),
		planner.WithObserver(metrics))

	opts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithExecutorOptions(
			executor.WithMetrics(metrics.Executor()),
			executor.WithTracer(tel.Tracer),
		),
	}
	if cfg.Pipeline.ConversationalRejections {
		opts = append(opts, pipeline.WithConversationalRejections(client, routing.Stage(llm.StageValidation), cfg.LLM.Timeout))
	}
	if cfg.Storage.Postgres.Enabled() {
		st, err := store.New(ctx, cfg.Storage.Postgres)
		if err != nil {
			a.Close(ctx)
			return nil, fmt.Errorf("storage: %w", err)
		}
		a.store = st
		opts = append(opts, pipeline.WithReportStore(st))
	}
	a.pipeline = pipeline.New(v, pl, registry, opts...)
	return a, nil
}

// metricsHandler returns nil when telemetry is disabled so the route is not mounted.
func (a *app) metricsHandler() http.Handler {
	if !a.cfg.Telemetry.Enabled {
		return nil
	}
	return a.telemetry.Handler()
}

// Close releases every connection opened by buildApp.
func (a *app) Close(ctx context.Context) {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.telemetry != nil {
		errs = append(errs, a.telemetry.Shutdown(ctx))
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("shutdown", zap.Error(err))
	}
	_ = a.logger.Sync()
}
