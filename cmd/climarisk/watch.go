package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func watchCMD(cfgPath *string) *cobra.Command {
	var interval time.Duration
	var once bool
	watch := &cobra.Command{
		Use:   "watch",
		Short: "Re-run the configured watches on their cron schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := loadApp(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))
			if len(a.cfg.Watches) == 0 {
				return errors.New("no watches configured")
			}

			s := a.scheduler()
			s.Interval = interval
			if once {
				ran := s.Tick(ctx)
				a.logger.Info("watches checked", zap.Int("ran", ran), zap.Int("total", len(a.cfg.Watches)))
				return nil
			}
			s.Start(ctx)
			return nil
		},
	}
	watch.Flags().DurationVar(&interval, "interval", time.Minute, "how often schedules are checked")
	watch.Flags().BoolVar(&once, "once", false, "check the schedules once and exit")
	return watch
}
