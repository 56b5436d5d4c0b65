// Kestrel - Return eligibility scoring that deploys in 60 seconds.
// Copyright (c) 2025 opensource.commerce
// Licensed under the Apache License 2.0

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
	"time"

	"github.com/joho/godotenv"
	"github.com/opensource-commerce/kestrel/internal/api"
	"github.com/opensource-commerce/kestrel/internal/bus"
	"github.com/opensource-commerce/kestrel/internal/cache"
	"github.com/opensource-commerce/kestrel/internal/domain"
	"github.com/opensource-commerce/kestrel/internal/engine"
	"github.com/opensource-commerce/kestrel/internal/predict"
	"github.com/opensource-commerce/kestrel/internal/recency"
	"github.com/opensource-commerce/kestrel/internal/repository"
	"github.com/opensource-commerce/kestrel/internal/rules"
	"github.com/opensource-commerce/kestrel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Optional .env for local development
	_ = godotenv.Load()

	// Load configuration
	cfg := domain.DefaultConfig()
	if os.Getenv("KESTREL_TIER") == "pro" {
		cfg = domain.ProConfig()
	}
	cfg.ApplyEnv()

	// Initialize structured logger
	slog.SetDefault(buildLogger(cfg.Logging))

	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"model_path", cfg.Model.Path,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize Predictor. A missing or invalid model artifact is not fatal:
	// the deterministic rules fallback serves until a model is reloaded.
	predictor := predict.NewPredictor(cfg.Model.Path)
	if v := predictor.ModelVersion(); v != "" {
		slog.Info("model loaded", "model_version", v)
	} else {
		slog.Warn("no model loaded, using rules fallback", "model_path", cfg.Model.Path)
	}

	// Initialize Flag Rule Engine
	flagRules, err := rules.NewEngine()
	if err != nil {
		slog.Error("failed to initialize flag rule engine", "error", err)
		os.Exit(1)
	}
	defer flagRules.Close()

	// Load global flag rules from the database (merchant-specific rules load
	// on demand via POST /flag-rules/reload)
	if err := loadGlobalFlagRules(ctx, repo, flagRules); err != nil {
		slog.Error("failed to load flag rules", "error", err)
		os.Exit(1)
	}
	slog.Info("flag rule engine initialized", "global_rules", flagRules.RulesCount(rules.GlobalMerchantID))

	// Initialize Recency Service
	recentSvc := recency.NewService(repo, cacheImpl)

	// Initialize Scoring Engine
	eng := engine.New(repo, predictor, flagRules, recentSvc.Getter(), busImpl)
	slog.Info("scoring engine initialized")

	// Initialize async Worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("KESTREL_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, repo, eng)

		var merchantIDs []string
		if envMerchants := os.Getenv("KESTREL_MERCHANTS"); envMerchants != "" {
			merchantIDs = strings.Split(envMerchants, ",")
		}

		if err := asyncWorker.Start(worker.Config{MerchantIDs: merchantIDs}); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "merchant_count", len(merchantIDs))
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, eng, flagRules, predictor, cfg.Model.Path, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

// buildLogger constructs the process logger from config.
func buildLogger(cfg domain.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// loadGlobalFlagRules loads the global rule set from the database. Rules are
// configured via POST /flag-rules - no hardcoded defaults.
func loadGlobalFlagRules(ctx context.Context, repo domain.Repository, eng *rules.Engine) error {
	configs, err := repo.ListFlagRules(ctx, rules.GlobalMerchantID)
	if err != nil {
		slog.Warn("failed to list flag rules from database", "error", err)
		return nil // Start with empty rules - they can be added via API
	}

	if len(configs) > 0 {
		slog.Info("loading global flag rules from database", "count", len(configs))
		return eng.ReloadRules(rules.GlobalMerchantID, configs)
	}

	slog.Info("no flag rules in database - configure via POST /flag-rules API")
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               KESTREL                     ║")
	fmt.Println("  ║     Return Eligibility Scoring Engine     ║")
	fmt.Println("  ║      Every return, scored in flight.      ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /score             - Score a return request")
	fmt.Println("    POST /score/async       - Queue a return request for scoring")
	fmt.Println("    GET  /returns/{id}      - Get a scored decision by ID")
	fmt.Println("    GET  /buyers/{id}       - Get buyer aggregates")
	fmt.Println("    GET  /policy            - Get merchant policy")
	fmt.Println("    PUT  /policy            - Update merchant policy")
	fmt.Println("    GET  /flag-rules        - List custom flag rules")
	fmt.Println("    POST /flag-rules        - Create a custom flag rule")
	fmt.Println("    POST /flag-rules/reload - Hot-reload flag rules from database")
	fmt.Println("    POST /model/reload      - Hot-reload the scoring model")
	fmt.Println("    GET  /dashboard/stats   - Dashboard statistics")
	fmt.Println("    GET  /health            - Health check")
	fmt.Println()
}
