package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oriys/pulsar/batch"
	"github.com/oriys/pulsar/internal/config"
	"github.com/oriys/pulsar/internal/logging"
	"github.com/oriys/pulsar/internal/metrics"
)

// exitDispatcherUnreachable distinguishes "the dispatcher went away" from
// ordinary failures, so a supervisor can treat it differently.
const exitDispatcherUnreachable = 255

func batchCmd() *cobra.Command {
	var (
		baseURL  string
		logLevel string
	)

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Pull jobs from a batch dispatcher until none remain",
		Long:  "Fetch jobs one at a time from the dispatcher named by IVCAP_BASE_URL, execute them, and push results back",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultConfig()
			if configFile != "" {
				var err error
				cfg, err = config.LoadFromFile(configFile)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
			}
			config.LoadFromEnv(cfg)

			if cmd.Flags().Changed("base-url") {
				cfg.Dispatcher.BaseURL = baseURL
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Server.LogLevel = logLevel
			}

			logging.InitStructured(cfg.Server.LogFormat, cfg.Server.LogLevel)
			metrics.Init("pulsar")

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			loop := batch.New(echoTool(), batch.Config{
				BaseURL:   cfg.Dispatcher.BaseURL,
				AuthToken: cfg.Dispatcher.AuthToken,
			})
			if err := loop.Run(ctx); err != nil {
				if errors.Is(err, batch.ErrDispatcherUnreachable) {
					logging.Op().Error("dispatcher unreachable", "error", err)
					os.Exit(exitDispatcherUnreachable)
				}
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&baseURL, "base-url", "", "Dispatcher base URL (overrides IVCAP_BASE_URL)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level")

	return cmd
}
