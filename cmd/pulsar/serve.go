package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oriys/pulsar/executor"
	"github.com/oriys/pulsar/internal/cache"
	"github.com/oriys/pulsar/internal/config"
	"github.com/oriys/pulsar/internal/logging"
	"github.com/oriys/pulsar/internal/metrics"
	"github.com/oriys/pulsar/internal/observability"
	"github.com/oriys/pulsar/tooldef"
	"github.com/oriys/pulsar/toolserver"
)

func serveCmd() *cobra.Command {
	var (
		listenAddr   string
		logLevel     string
		maxWait      time.Duration
		manifestPath string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the tool over the request/poll HTTP protocol",
		Long:  "Run the HTTP adapter: POST submits a job, GET collects its result, 204 defers the caller to the poll path",
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

			if cmd.Flags().Changed("listen") {
				cfg.Server.Addr = listenAddr
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Server.LogLevel = logLevel
			}
			if cmd.Flags().Changed("max-wait") {
				cfg.Executor.MaxWait = maxWait
			}

			logging.InitStructured(cfg.Server.LogFormat, cfg.Server.LogLevel)
			if cfg.Server.JobLog != "" {
				if err := logging.Default().SetOutput(cfg.Server.JobLog); err != nil {
					logging.Op().Warn("cannot open job log", "path", cfg.Server.JobLog, "error", err)
				}
				defer logging.Default().Close()
			}

			if err := observability.Init(context.Background(), observability.Config{
				Enabled:     cfg.Telemetry.Enabled,
				Endpoint:    cfg.Telemetry.Endpoint,
				ServiceName: cfg.Telemetry.ServiceName,
				SampleRate:  cfg.Telemetry.SampleRate,
			}); err != nil {
				return fmt.Errorf("init tracing: %w", err)
			}
			defer observability.Shutdown(context.Background())

			metrics.Init("pulsar")

			tool := echoTool()
			opts := []executor.Option{
				executor.WithMaxWait(cfg.Executor.MaxWait),
				executor.WithRefreshInterval(cfg.Executor.RefreshInterval),
				executor.WithRetention(cfg.Executor.Retention),
				executor.WithMaxEntries(cfg.Executor.MaxCachedJobs),
				executor.WithMaxConcurrent(cfg.Executor.MaxConcurrent),
			}
			if manifestPath != "" {
				manifest, err := tooldef.LoadManifest(manifestPath)
				if err != nil {
					return fmt.Errorf("load manifest: %w", err)
				}
				manifest.Apply(tool)
				extra, err := manifest.ExecutorOptions()
				if err != nil {
					return fmt.Errorf("manifest options: %w", err)
				}
				opts = append(opts, extra...)
			}

			mirror, err := openMirror(cfg)
			if err != nil {
				return err
			}
			if mirror != nil {
				opts = append(opts, executor.WithMirror(mirror))
				defer mirror.Close()
			}

			exec := executor.New(tool.Name, tool.Worker, opts...)
			defer exec.Close()

			serverCfg := toolserver.ServerConfig{
				Version:    version,
				EnableCORS: cfg.Server.CORS,
			}
			mux := toolserver.NewMux(serverCfg)
			toolserver.Register(mux, "/"+tool.Name, tool, exec)

			server := toolserver.StartServer(cfg.Server.Addr, mux, serverCfg)
			logging.Op().Info("tool server started",
				"tool", tool.Name, "addr", cfg.Server.Addr, "max_wait", cfg.Executor.MaxWait)

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh
			logging.Op().Info("shutdown signal received")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			server.Shutdown(shutdownCtx)

			return nil
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", ":8080", "HTTP listen address")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level")
	cmd.Flags().DurationVar(&maxWait, "max-wait", 5*time.Second, "How long a request waits before being deferred")
	cmd.Flags().StringVar(&manifestPath, "manifest", "", "Path to tool manifest (YAML)")

	return cmd
}

func openMirror(cfg *config.Config) (cache.Cache, error) {
	switch cfg.Cache.Backend {
	case "", "none":
		return nil, nil
	case "inmemory":
		return cache.NewInMemory(), nil
	case "redis":
		r := cache.NewRedis(cache.RedisConfig{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		})
		if err := r.Ping(context.Background()); err != nil {
			return nil, fmt.Errorf("redis at %s: %w", cfg.Cache.Redis.Addr, err)
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}
