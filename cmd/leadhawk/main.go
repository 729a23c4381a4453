// Leadhawk - Sales lead scoring and alerting for CRM exports.
// Copyright (c) 2025 opensource-crm
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opensource-crm/leadhawk/internal/alerts"
	"github.com/opensource-crm/leadhawk/internal/analyzer"
	"github.com/opensource-crm/leadhawk/internal/api"
	"github.com/opensource-crm/leadhawk/internal/bus"
	"github.com/opensource-crm/leadhawk/internal/cache"
	"github.com/opensource-crm/leadhawk/internal/domain"
	"github.com/opensource-crm/leadhawk/internal/repository"
	"github.com/opensource-crm/leadhawk/internal/scoring"
	"github.com/opensource-crm/leadhawk/internal/stats"
	"github.com/opensource-crm/leadhawk/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("LEADHAWK_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting leadhawk",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("LEADHAWK_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	if path := os.Getenv("LEADHAWK_SCORING_CONFIG"); path != "" {
		cfg.ScoringConfigPath = path
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
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

	// Initialize Scoring Engine, optionally with YAML weight overrides
	scoringCfg := scoring.DefaultConfig()
	if cfg.ScoringConfigPath != "" {
		scoringCfg, err = scoring.LoadConfigFile(cfg.ScoringConfigPath)
		if err != nil {
			slog.Error("failed to load scoring config", "path", cfg.ScoringConfigPath, "error", err)
			os.Exit(1)
		}
		slog.Info("scoring config loaded", "path", cfg.ScoringConfigPath)
	}
	scorer := scoring.NewEngine(scoringCfg)
	slog.Info("scoring engine initialized")

	// Initialize Custom Rule Engine
	custom, err := alerts.NewCustomEngine()
	if err != nil {
		slog.Error("failed to initialize custom rule engine", "error", err)
		os.Exit(1)
	}

	// Load custom alert rules from database (no hardcoded defaults - configure via API)
	if err := loadRulesFromDatabase(ctx, repo, custom); err != nil {
		slog.Error("failed to load alert rules", "error", err)
		os.Exit(1)
	}
	slog.Info("custom rule engine initialized", "rules_count", custom.RulesCount())

	// Initialize Alert Engine with the built-in rule suite
	alertEngine := alerts.NewEngine(alerts.DefaultConfig(), custom)
	slog.Info("alert engine initialized")

	// Initialize the analysis pipeline
	pipeline := analyzer.New(scorer, alertEngine, stats.NewCalculator(stats.DefaultConfig()))
	slog.Info("analysis pipeline initialized")

	// Initialize async Worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("LEADHAWK_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, repo, cacheImpl, pipeline)
		if err := asyncWorker.Start(); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started")
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, pipeline, custom, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("leadhawk is ready",
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

	slog.Info("leadhawk shutdown complete")
}

// loadRulesFromDatabase loads custom alert rules from the database into
// the engine. All rules are configured via POST /rules - no hardcoded defaults.
func loadRulesFromDatabase(ctx context.Context, repo domain.Repository, engine *alerts.CustomEngine) error {
	dbRules, err := repo.ListAlertRules(ctx)
	if err != nil {
		slog.Warn("failed to list alert rules from database", "error", err)
		return nil // Start with empty rules - they can be added via API
	}

	if len(dbRules) > 0 {
		slog.Info("loading alert rules from database", "count", len(dbRules))
		return engine.LoadRules(dbRules)
	}

	slog.Info("no alert rules in database - configure via POST /rules API")
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               🦅 LEADHAWK                 ║")
	fmt.Println("  ║      Sales Lead Analytics Engine          ║")
	fmt.Println("  ║       Eyes on every lead.                 ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /runs               - Analyze a lead batch (JSON or CSV)")
	fmt.Println("    GET  /runs               - List recent runs")
	fmt.Println("    GET  /runs/{id}          - Get a run by ID")
	fmt.Println("    GET  /runs/{id}/leads    - Scored leads, filter by ?level=")
	fmt.Println("    GET  /runs/{id}/alerts   - Alerts, filter by ?severity=")
	fmt.Println("    GET  /runs/{id}/stats    - Channel and salesperson summaries")
	fmt.Println("    GET  /rules              - List custom alert rules")
	fmt.Println("    POST /rules              - Create a custom alert rule")
	fmt.Println("    DELETE /rules/{id}       - Delete a custom alert rule")
	fmt.Println("    POST /rules/reload       - Hot-reload rules from database")
	fmt.Println("    GET  /health             - Health check")
	fmt.Println()
}
