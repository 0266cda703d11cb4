// Package cmd is the CLI entrypoint: the root command runs the engine, the
// subcommands run one-shot maintenance batches.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/trainops/instructor-dispatch/app"
	"github.com/trainops/instructor-dispatch/config"
	"github.com/trainops/instructor-dispatch/infra/logger"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "instructor-dispatch",
	Short: "Instructor-unit assignment and dispatch engine",
	RunE:  run,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "configuration file")
}

// Execute runs the CLI.
func Execute() error {
	_ = godotenv.Load()
	return rootCmd.Execute()
}

func run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := newService(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("main").Errorf("service close: %v", err)
		}
	}()
	return svc.Run(ctx)
}

func newService(ctx context.Context) (*app.Service, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return app.New(ctx, cfg)
}
