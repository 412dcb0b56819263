package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ideascope/ideascope/internal/backend"
	"github.com/ideascope/ideascope/internal/config"
	"github.com/ideascope/ideascope/internal/logger"
	"github.com/ideascope/ideascope/internal/notify"
	"github.com/ideascope/ideascope/internal/server"
	"github.com/ideascope/ideascope/internal/sources"
	"github.com/ideascope/ideascope/internal/storage"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	store, err := storage.New(
		cfg.Storage.MaxSessions,
		cfg.Storage.DBPath,
	)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	backendClient := backend.New(
		cfg.Backend.BaseURL,
		cfg.Backend.APIKey,
		cfg.Backend.Timeout,
	)

	var reporter sources.Reporter
	var telegramClient *notify.Client
	if cfg.Telegram.Enabled {
		telegramClient, err = notify.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		reporter = telegramClient
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	aggregatorConfig := sources.DefaultConfig()
	aggregatorConfig.Sources = cfg.EnabledSources()
	aggregator := sources.New(backendClient, store, reporter, aggregatorConfig)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cleaning up...")
		cancel()
	}()

	if cfg.Telegram.Enabled && telegramClient != nil {
		telegramClient.ListenForCommands(ctx)
	}

	go rotateSessions(ctx, store, cfg.Storage.RotateInterval)

	srv := server.New(server.Config{
		ListenAddr:      cfg.Server.ListenAddr,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		SSEHeartbeat:    cfg.Server.SSEHeartbeat,
		AdvisorTarget:   cfg.Advisor.TargetScore,
	}, aggregator, store)

	logger.Info("Starting validation service (sources: %d, advisor target: %.0f)",
		len(aggregatorConfig.Sources), cfg.Advisor.TargetScore)

	if err := srv.Start(ctx); err != nil {
		logger.Fatal("Server error: %v", err)
	}
	logger.Info("Service stopped")
}

// rotateSessions periodically trims old validation sessions so the
// database stays within the configured cap.
func rotateSessions(ctx context.Context, store *storage.Storage, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := store.RotateSessions(); err != nil {
				logger.Warn("Failed to rotate sessions: %v", err)
			}
		}
	}
}
