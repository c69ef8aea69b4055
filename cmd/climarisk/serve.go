package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/climarisk/internal/scheduler"
	srv "github.com/mohammad-safakhou/climarisk/internal/server"
)

func serveCMD(cfgPath *string) *cobra.Command {
	var serveAddr string
	var withWatches bool
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := loadApp(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))

			addr := serveAddr
			if addr == "" {
				addr = a.cfg.Server.Address
			}
			opts := srv.Options{
				Pipeline:  a.pipeline,
				Metrics:   a.metricsHandler(),
				JWTSecret: []byte(a.cfg.Server.JWTSecret),
				Logger:    a.logger,
			}
			if a.store != nil {
				opts.Reports = a.store
			}
			if withWatches && len(a.cfg.Watches) > 0 {
				go a.scheduler().Start(ctx)
			}
			a.logger.Info("listening", zap.String("addr", addr), zap.Bool("auth", a.cfg.Server.JWTSecret != ""))
			return srv.Run(ctx, srv.New(opts), addr)
		},
	}
	serve.Flags().StringVar(&serveAddr, "addr", "", "listen address (default server.address)")
	serve.Flags().BoolVar(&withWatches, "watches", true, "run configured watches in the background")
	return serve
}

func (a *app) scheduler() *scheduler.Scheduler {
	s := &scheduler.Scheduler{
		Watches: a.cfg.Watches,
		Runner:  a.pipeline,
		Logger:  a.logger,
	}
	if a.redis != nil {
		s.Redis = a.redis
	}
	return s
}
