// Command ivod-full reconciles the Store against the full upstream IVOD
// catalog over a date range, defaulting to every covered date.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/billy3321/ivod-engine/internal/adminhttp"
	"github.com/billy3321/ivod-engine/internal/bootstrap"
	"github.com/billy3321/ivod-engine/internal/config"
	"github.com/billy3321/ivod-engine/internal/model"
	"github.com/billy3321/ivod-engine/internal/workflow"
)

func main() {
	var overrides config.Overrides
	var startDate, endDate string
	flag.StringVar(&overrides.EnvFile, "env-file", "", "Path to .env file (default: .env)")
	flag.StringVar(&overrides.DBBackend, "db-backend", "", "Database backend (overrides DB_BACKEND)")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "Log level (overrides LOG_LEVEL)")
	flag.StringVar(&overrides.AdminAddr, "admin-addr", "", "Admin HTTP listen address (overrides ADMIN_ADDR)")
	flag.IntVar(&overrides.BatchSize, "batch-size", 0, "Batch size (overrides BATCH_SIZE)")
	flag.StringVar(&startDate, "start-date", "", "Start date Y-M-D (default: earliest covered date)")
	flag.StringVar(&endDate, "end-date", "", "End date Y-M-D (default: today)")
	flag.Parse()

	cfg, err := config.Load(overrides)
	if err != nil {
		zerolog.New(os.Stderr).With().Timestamp().Logger().Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		zerolog.New(os.Stderr).With().Timestamp().Logger().Fatal().Err(err).Msg("invalid config")
	}

	log := bootstrap.NewLogger(cfg)
	log.Info().Str("environment", cfg.Environment).Msg("ivod-full starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := bootstrap.NewEngine(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize engine")
	}
	defer eng.Close()

	var admin *adminhttp.Server
	if cfg.AdminAddr != "" {
		admin = adminhttp.New(cfg.AdminAddr, eng.Store, eng.Index, log)
		go func() {
			if err := admin.Start(); err != nil {
				log.Error().Err(err).Msg("admin http server error")
			}
		}()
	}

	start := workflow.ParseDateArg(startDate, workflow.EarliestDate, log)
	end := workflow.ParseDateArg(endDate, model.Now(), log)

	res, runErr := eng.Engine.Full(ctx, cfg.BatchSize, cfg.CommitInterval, start, end)

	if admin != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		admin.Shutdown(shutdownCtx)
		cancel()
	}

	log.Info().Int("processed", res.Processed).Int("errored", res.Errored).Msg("ivod-full finished")

	if runErr != nil {
		if ctx.Err() != nil {
			fmt.Fprintln(os.Stderr, "interrupted")
			os.Exit(130)
		}
		log.Error().Err(runErr).Msg("ivod-full failed")
		os.Exit(1)
	}
}
