package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/climarisk/config"
	srv "github.com/mohammad-safakhou/climarisk/internal/server"
)

func tokenCMD(cfgPath *string) *cobra.Command {
	var ttl time.Duration
	token := &cobra.Command{
		Use:   "token <subject>",
		Short: "Issue an API token signed with server.jwt_secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(*cfgPath)
			if err != nil {
				return err
			}
			if cfg.Server.JWTSecret == "" {
				return errors.New("server.jwt_secret not set")
			}
			tok, err := srv.SignJWT(args[0], []byte(cfg.Server.JWTSecret), ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	token.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return token
}
