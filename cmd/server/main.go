package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dennisdiepolder/breakroster/internal/api"
	"github.com/dennisdiepolder/breakroster/internal/config"
	"github.com/dennisdiepolder/breakroster/internal/distribution"
	"github.com/dennisdiepolder/breakroster/internal/rules"
	"github.com/dennisdiepolder/breakroster/internal/storage"
	"github.com/dennisdiepolder/breakroster/internal/sweep"
	"github.com/dennisdiepolder/breakroster/internal/warnings"
	"github.com/dennisdiepolder/breakroster/internal/workflow"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Configure logger
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("port", cfg.Port).
		Str("store", string(cfg.Store.Driver)).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Str("log_level", cfg.LogLevel).
		Msg("starting breakroster server")

	// Create context for services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Open the store
	store, err := storage.NewStore(ctx, cfg.Store, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer store.Close()

	// Load the rule set and keep it hot reloaded
	ruleStore := rules.NewStore(cfg.RulesPath, log.Logger)
	if err := ruleStore.Load(); err != nil {
		log.Warn().Err(err).Str("path", cfg.RulesPath).Msg("failed to load rules file, using defaults")
	}
	go func() {
		if err := ruleStore.Watch(ctx); err != nil {
			log.Warn().Err(err).Msg("rules watcher stopped")
		}
	}()

	// Wire the services
	tracker := warnings.NewTracker(store, log.Logger)
	workflowSvc := workflow.NewService(store, tracker, log.Logger)
	distributionSvc := distribution.NewService(store, ruleStore, rules.NewEngine(log.Logger), log.Logger)

	// Start the invalidation sweep
	sweeper := sweep.NewSweeper(store, tracker, sweep.Config{
		Schedule: cfg.SweepSchedule,
		Horizon:  cfg.SweepHorizon,
	}, log.Logger)
	if err := sweeper.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start invalidation sweep")
	}

	// Create router
	router := api.NewRouter(api.Deps{
		Distribution:   distributionSvc,
		Workflow:       workflowSvc,
		Tracker:        tracker,
		Rules:          ruleStore,
		Store:          store,
		AllowedOrigins: cfg.AllowedOrigins,
		RateLimit:      cfg.RateLimit,
		RateBurst:      cfg.RateBurst,
		Logger:         log.Logger,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Msgf("server listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")

	// Stop background services
	cancel()
	sweeper.Stop()

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	// Attempt graceful shutdown
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
