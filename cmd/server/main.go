// Package main is the entry point for the folio portfolio optimization
// service. It exposes constrained mean-variance optimization and
// walk-forward backtesting over HTTP, stores results in SQLite, and prunes
// old runs on a cron schedule.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aristath/folio/internal/backtest"
	"github.com/aristath/folio/internal/config"
	"github.com/aristath/folio/internal/database"
	"github.com/aristath/folio/internal/scheduler"
	"github.com/aristath/folio/internal/server"
	"github.com/aristath/folio/internal/solver"
	"github.com/aristath/folio/internal/storage"
	"github.com/aristath/folio/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Msg("Starting folio")

	db, err := database.New(database.Config{
		Path: filepath.Join(cfg.DataDir, "runs.db"),
		Name: "runs",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open runs database")
	}
	defer db.Close()

	runs, err := storage.NewRunRepository(db.Conn(), log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize run repository")
	}

	dispatcher := solver.NewDispatcher(nil, log)
	engine := backtest.New(dispatcher, log)

	handler := server.NewHandler(dispatcher, engine, runs, server.Defaults{
		Permutations: cfg.DefaultPermutations,
		Seed:         cfg.DefaultSeed,
	}, log)

	srv := server.New(server.Config{
		Port:    cfg.Port,
		Handler: handler,
		Log:     log,
	})

	sched := scheduler.New(log)
	retention := scheduler.NewRetentionJob(runs, cfg.RunRetentionDays, log)
	if err := sched.AddJob(cfg.PruneSchedule, retention); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.PruneSchedule).Msg("Failed to register retention job")
	}
	sched.Start()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil {
			log.Error().Err(err).Msg("Server failed")
		}
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
