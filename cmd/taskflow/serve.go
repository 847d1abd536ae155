package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/taskflow/internal/archive"
	"github.com/alfredjeanlab/taskflow/internal/bus"
	"github.com/alfredjeanlab/taskflow/internal/config"
	"github.com/alfredjeanlab/taskflow/internal/extract"
	"github.com/alfredjeanlab/taskflow/internal/ingest"
	"github.com/alfredjeanlab/taskflow/internal/pipeline"
	"github.com/alfredjeanlab/taskflow/internal/platform"
	"github.com/alfredjeanlab/taskflow/internal/server"
	"github.com/alfredjeanlab/taskflow/internal/store"
	"github.com/alfredjeanlab/taskflow/internal/store/postgres"
)

var serveServices string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the taskflow server and consumers",
	// Override PersistentPreRunE so serve doesn't build an API client.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		runExtractor, runManager, err := parseServices(serveServices)
		if err != nil {
			return err
		}

		// Storage: Postgres when configured, otherwise in-process.
		var st store.Store
		if cfg.DatabaseURL != "" {
			st, err = postgres.New(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			logger.Info("postgres store connected")
		} else {
			st = store.NewMemoryStore()
			logger.Info("in-memory store (TASKFLOW_DATABASE_URL not set)")
		}

		// Bus: JetStream when configured, otherwise in-process.
		policy := bus.Policy{
			MaxAttempts: cfg.MaxAttempts,
			BaseBackoff: cfg.RetryBackoff,
			MaxBackoff:  bus.DefaultPolicy().MaxBackoff,
		}
		var msgBus bus.Bus
		if cfg.NATSURL != "" {
			msgBus, err = bus.NewNATSBus(cfg.NATSURL, policy, cfg.Concurrency, logger)
			if err != nil {
				st.Close()
				return err
			}
			logger.Info("NATS bus connected", "nats_url", cfg.NATSURL)
		} else {
			msgBus = bus.NewMemoryBus(policy, logger)
			logger.Info("in-process bus (TASKFLOW_NATS_URL not set)")
		}

		// Consumers.
		opts := pipeline.Options{
			RunExtractor:       runExtractor,
			RunPlatformManager: runManager,
		}
		if runExtractor {
			if opts.Strategy, err = buildStrategy(cfg); err != nil {
				msgBus.Close()
				st.Close()
				return err
			}
			logger.Info("extractor strategy", "strategy", cfg.Extractor)
		}
		if runManager {
			opts.Sink = buildSink(cfg)
			logger.Info("platform sink", "platform", cfg.Platform)
		}
		pipe := pipeline.New(msgBus, st, opts, logger)
		if err := pipe.Start(); err != nil {
			msgBus.Close()
			st.Close()
			return err
		}

		// Ingestion HTTP API.
		ingestor := ingest.New(msgBus, logger)
		httpServer := &http.Server{
			Addr:    cfg.HTTPAddr,
			Handler: server.New(ingestor, st, logger).NewHTTPHandler(cfg.AuthToken),
		}
		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		// Slack intake.
		var slackCancel context.CancelFunc
		if cfg.SlackBotToken != "" {
			intake := ingest.NewSlackIntake(cfg.SlackBotToken, cfg.SlackAppToken, ingestor, logger)
			var slackCtx context.Context
			slackCtx, slackCancel = context.WithCancel(context.Background())
			go func() {
				if err := intake.Run(slackCtx); err != nil && slackCtx.Err() == nil {
					logger.Error("slack intake error", "err", err)
				}
			}()
			logger.Info("slack intake started")
		}

		// Archive scheduler.
		var scheduler *archive.Scheduler
		if cfg.ArchiveInterval > 0 {
			var dests []archive.Destination
			if cfg.ArchiveS3Bucket != "" {
				s3Dest, err := archive.NewS3Destination(
					context.Background(),
					cfg.ArchiveS3Bucket,
					cfg.ArchiveS3Key,
					cfg.ArchiveS3Region,
					cfg.ArchiveS3Endpoint,
				)
				if err != nil {
					logger.Error("failed to create S3 archive destination", "err", err)
				} else {
					dests = append(dests, s3Dest)
					logger.Info("archive S3 destination enabled", "bucket", cfg.ArchiveS3Bucket, "key", cfg.ArchiveS3Key)
				}
			}
			if cfg.ArchiveFile != "" {
				dests = append(dests, archive.NewFileDestination(cfg.ArchiveFile))
				logger.Info("archive file destination enabled", "path", cfg.ArchiveFile)
			}
			if len(dests) > 0 {
				scheduler = archive.NewScheduler(st, dests, cfg.ArchiveInterval, logger)
				scheduler.Start()
				logger.Info("archive scheduler started", "interval", cfg.ArchiveInterval)
			}
		}

		logger.Info("taskflow started",
			"http_addr", cfg.HTTPAddr,
			"extractor", runExtractor,
			"platform_manager", runManager,
		)

		// Wait for SIGINT or SIGTERM.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		// Graceful shutdown. Stop intake first so no new work enters, then
		// give in-flight deliveries the grace period.
		if slackCancel != nil {
			slackCancel()
			logger.Info("slack intake stopped")
		}
		if scheduler != nil {
			scheduler.Stop()
			logger.Info("archive scheduler stopped")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		if err := msgBus.Close(); err != nil {
			logger.Error("error closing bus", "err", err)
		}
		if err := st.Close(); err != nil {
			logger.Error("error closing store", "err", err)
		}

		logger.Info("shutdown complete")
		return nil
	},
}

// parseServices splits the --services flag into consumer toggles.
func parseServices(s string) (extractor, manager bool, err error) {
	for _, name := range strings.Split(s, ",") {
		switch strings.TrimSpace(name) {
		case "all":
			extractor, manager = true, true
		case "extractor":
			extractor = true
		case "platform-manager":
			manager = true
		case "":
		default:
			return false, false, fmt.Errorf("unknown service %q (must be all, extractor, or platform-manager)", name)
		}
	}
	return extractor, manager, nil
}

func buildStrategy(cfg *config.Config) (extract.Strategy, error) {
	switch cfg.Extractor {
	case "rules":
		return extract.NewRulesStrategy(), nil
	case "llm":
		return extract.NewLLMStrategy(cfg.OpenAIKey, cfg.OpenAIModel), nil
	}
	return nil, fmt.Errorf("unknown extractor %q", cfg.Extractor)
}

func buildSink(cfg *config.Config) platform.Sink {
	switch cfg.Platform {
	case "trello":
		return platform.NewTrelloSink(cfg.TrelloKey, cfg.TrelloToken, cfg.TrelloListID)
	case "clickup":
		return platform.NewClickUpSink(cfg.ClickUpToken, cfg.ClickUpListID)
	}
	return platform.NewMockSink()
}

func init() {
	serveCmd.Flags().StringVar(&serveServices, "services", "all", "comma-separated consumers to run (all, extractor, platform-manager)")
}
