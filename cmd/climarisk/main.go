package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	// a missing .env is normal outside development
	_ = godotenv.Load()

	var cfgPath string
	root := &cobra.Command{
		Use:           "climarisk",
		Short:         "Climate risk analysis for French territories",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config/config.json)")

	root.AddCommand(
		serveCMD(&cfgPath),
		askCMD(&cfgPath),
		planCMD(&cfgPath),
		watchCMD(&cfgPath),
		migrateCMD(&cfgPath),
		tokenCMD(&cfgPath),
	)
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
