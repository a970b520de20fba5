// Kestrel - AI-assisted fraud detection for financial transactions.
// Copyright (c) 2025 opensource.finance
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

	"github.com/opensource-finance/kestrel/internal/api"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/config"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/engine"
	"github.com/opensource-finance/kestrel/internal/ensemble"
	"github.com/opensource-finance/kestrel/internal/llm"
	"github.com/opensource-finance/kestrel/internal/pattern"
	"github.com/opensource-finance/kestrel/internal/prescreen"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/similarity"
	"github.com/opensource-finance/kestrel/internal/worker"
	"github.com/opensource-finance/kestrel/internal/workflow"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	initLogger(cfg.Logging)

	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"vector_store", cfg.VectorStore.Driver,
		"model_api_key", config.MaskSecret(cfg.Backends.ModelAPIKey),
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

	// Initialize Similarity Store
	store, err := similarity.NewStore(cfg.VectorStore)
	if err != nil {
		slog.Error("failed to initialize similarity store", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	if err := similarity.Seed(ctx, store); err != nil {
		slog.Warn("failed to seed fraud patterns", "error", err)
	}
	slog.Info("similarity store initialized",
		"driver", cfg.VectorStore.Driver,
		"mode", store.Mode(),
	)

	// Initialize Prescreen Engine with the built-in checks
	pre, err := prescreen.NewEngine(100)
	if err != nil {
		slog.Error("failed to initialize prescreen engine", "error", err)
		os.Exit(1)
	}
	if err := pre.LoadRules(prescreen.BuiltinRules()); err != nil {
		slog.Error("failed to load prescreen rules", "error", err)
		os.Exit(1)
	}
	slog.Info("prescreen engine initialized", "rules_count", pre.RulesCount())

	// Initialize AI collaborators. Missing credentials select the
	// degraded variants, the full surface stays available.
	chatBackend := llm.NewChatBackend(cfg.Backends)
	visionBackend := llm.NewVisionBackend(cfg.Backends)
	embedBackend := llm.NewEmbeddingBackend(cfg.Backends)
	workflowBackend := workflow.NewBackend(cfg.Backends)
	slog.Info("collaborators initialized",
		"chat", chatBackend.Mode(),
		"vision", visionBackend.Mode(),
		"embedder", embedBackend.Mode(),
		"workflow", workflowBackend.Mode(),
	)

	dispatcher := workflow.NewDispatcher(workflowBackend)

	// Initialize the analysis engine
	eng := engine.New(engine.Deps{
		Ensemble:       ensemble.NewAnalyzer(chatBackend, 10),
		Pattern:        pattern.NewAnalyzer(visionBackend),
		Prescreen:      pre,
		Dispatcher:     dispatcher,
		Embedder:       embedBackend,
		Store:          store,
		Repo:           repo,
		Cache:          cacheImpl,
		Bus:            busImpl,
		EnsembleModels: cfg.Backends.EnsembleModels,
	})

	// Start the alert worker. Publish-only buses (kafka) cannot be
	// consumed in-process; alerts then flow to external consumers only.
	alertWorker := worker.NewAlertWorker(busImpl)
	if err := alertWorker.Start(); err != nil {
		slog.Warn("alert worker not started", "error", err)
		alertWorker = nil
	}

	modes := api.Modes{
		Chat:     chatBackend.Mode(),
		Vision:   visionBackend.Mode(),
		Embedder: embedBackend.Mode(),
		Workflow: workflowBackend.Mode(),
		Store:    store.Mode(),
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, eng, dispatcher, repo, cacheImpl, busImpl, modes, Version)

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

	if alertWorker != nil {
		if err := alertWorker.Stop(); err != nil {
			slog.Error("failed to stop alert worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

func initLogger(cfg domain.LoggingConfig) {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               🦅 KESTREL                  ║")
	fmt.Println("  ║       Fraud Detection Orchestrator        ║")
	fmt.Println("  ║      Small hawk, sharp eyes.              ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /analyze/transaction    - Score a transaction for fraud")
	fmt.Println("    POST /analyze/document       - Inspect a document image")
	fmt.Println("    GET  /verdicts/{caseId}      - Get a stored verdict")
	fmt.Println("    POST /workflows              - Open an investigation workflow")
	fmt.Println("    GET  /workflows/{id}         - Get workflow progress")
	fmt.Println("    GET  /patterns/similar       - Search known fraud patterns")
	fmt.Println("    GET  /patterns/statistics    - Pattern index statistics")
	fmt.Println("    POST /demo/sample-transaction - Run a demo analysis")
	fmt.Println("    GET  /health                 - Health check")
	fmt.Println()
}
