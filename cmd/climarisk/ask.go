package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/climarisk/internal/executor"
	"github.com/mohammad-safakhou/climarisk/internal/pipeline"
)

func askCMD(cfgPath *string) *cobra.Command {
	var asJSON bool
	ask := &cobra.Command{
		Use:   "ask <request>",
		Short: "Run the full analysis for a request and print the synthesis",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := loadApp(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))

			raw := strings.Join(args, " ")
			report, err := a.pipeline.Run(ctx, raw, func(p executor.Progress) {
				fmt.Fprintf(os.Stderr, "[%d/%d] %s (%s)\n", p.Index+1, p.Total, p.Description, p.Duration.Round(time.Millisecond))
			})
			var rejected *pipeline.RejectionError
			if errors.As(err, &rejected) {
				fmt.Fprintln(cmd.OutOrStdout(), rejected.Message)
				return errors.New("request rejected")
			}
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			fmt.Fprintln(cmd.OutOrStdout(), report.Synthesis)
			if report.Visualization != nil && report.Visualization.HTML != "" {
				fmt.Fprintln(os.Stderr, "visualization available with --json")
			}
			return nil
		},
	}
	ask.Flags().BoolVar(&asJSON, "json", false, "print the whole report as JSON")
	return ask
}

func planCMD(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "plan <request>",
		Short: "Validate a request and print its plan without running it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := loadApp(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))

			sub, err := a.pipeline.Submit(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(sub); err != nil {
				return err
			}
			if sub.Rejected() {
				return errors.New("request rejected")
			}
			return nil
		},
	}
}
