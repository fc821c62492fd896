// Package main is the entry point for the chatfolio triage server.
// The service turns chat messages into portfolio mutations: a rule-based
// classifier extracts intents, a router picks a processing strategy, and
// an executor applies the mutation against the persisted or session store.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/quantive/chatfolio/internal/clients/textgen"
	"github.com/quantive/chatfolio/internal/config"
	"github.com/quantive/chatfolio/internal/database"
	"github.com/quantive/chatfolio/internal/modules/analytics"
	"github.com/quantive/chatfolio/internal/modules/portfolio"
	"github.com/quantive/chatfolio/internal/modules/triage"
	"github.com/quantive/chatfolio/internal/reliability"
	"github.com/quantive/chatfolio/internal/scheduler"
	"github.com/quantive/chatfolio/internal/server"
	"github.com/quantive/chatfolio/pkg/logger"
)

func main() {
	// Load configuration first to get log level
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
		Caller: cfg.LogCaller,
	})
	logger.SetGlobalLogger(log)

	log.Info().Msg("Starting chatfolio")

	// Databases: portfolio.db holds persisted per-user state, analytics.db
	// holds triage traces and is treated as rebuildable cache.
	portfolioDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "portfolio.db"),
		Name:    "portfolio",
		Profile: database.ProfileStandard,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open portfolio database")
	}
	defer portfolioDB.Close()

	analyticsDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "analytics.db"),
		Name:    "analytics",
		Profile: database.ProfileCache,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open analytics database")
	}
	defer analyticsDB.Close()

	if err := portfolioDB.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate portfolio database")
	}
	if err := analyticsDB.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate analytics database")
	}

	// Portfolio stores and the mutation executor
	userStore := portfolio.NewRepository(portfolioDB.Conn(), log)
	sessionStore := portfolio.NewSessionStore(log)
	executor := portfolio.NewExecutor(userStore, sessionStore, log)

	// Text generation client is optional: without an API key the service
	// still handles rule-only traffic and reports hybrid/model-only
	// requests as unavailable.
	textGenTimeout := time.Duration(cfg.TextGenTimeout) * time.Second
	var generator triage.Generator
	modelProvider := ""
	if cfg.GeminiAPIKey != "" {
		genClient, err := textgen.New(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModel, textGenTimeout, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize text generation client")
		}
		generator = genClient
		modelProvider = genClient.Model()
		log.Info().Str("model", cfg.GeminiModel).Msg("Text generation client initialized")
	} else {
		log.Warn().Msg("GEMINI_API_KEY not set, hybrid and model-only strategies disabled")
	}

	// Trace recording: bounded in-memory ring plus durable sqlite sink
	sink := analytics.NewSQLiteSink(analyticsDB.Conn(), log)
	recorder := analytics.NewRecorder(cfg.TraceRingSize, sink, log)

	classifier := triage.NewClassifier(log)
	var completer *triage.Completer
	if generator != nil {
		completer = triage.NewCompleter(generator, textGenTimeout, log)
	}
	processor := triage.NewProcessor(classifier, completer, generator, executor, recorder, modelProvider, log)

	srv := server.New(server.Config{
		Log:         log,
		Config:      cfg,
		PortfolioDB: portfolioDB,
		AnalyticsDB: analyticsDB,
		Processor:   processor,
		Users:       userStore,
		Guests:      sessionStore,
		Sessions:    sessionStore,
		Recorder:    recorder,
		Port:        cfg.Port,
		DevMode:     cfg.DevMode,
	})

	// Background jobs: session eviction, trace retention, and backups
	sched := scheduler.New(log)
	if err := sched.AddJob("@every 5m", &scheduler.SessionEvictionJob{
		Store: sessionStore,
		TTL:   time.Duration(cfg.SessionTTL) * time.Minute,
	}); err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule session eviction")
	}
	if err := sched.AddJob("@daily", &scheduler.TracePruneJob{
		Sink:      sink,
		Retention: time.Duration(cfg.TraceRetention) * 24 * time.Hour,
	}); err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule trace pruning")
	}
	if cfg.Backup.Enabled() {
		backupSvc, err := reliability.NewBackupService(context.Background(), cfg.Backup, cfg.DataDir, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize backup service")
		}
		if err := sched.AddJob("@daily", &scheduler.BackupJob{
			Service: backupSvc,
		}); err != nil {
			log.Fatal().Err(err).Msg("Failed to schedule backups")
		}
		log.Info().Str("bucket", cfg.Backup.Bucket).Msg("Backup service enabled")
	}
	sched.Start()
	defer sched.Stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
