// Command ivod-incremental reconciles recently-changed and previously
// incomplete records against the upstream catalog.
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
)

func main() {
	var overrides config.Overrides
	flag.StringVar(&overrides.EnvFile, "env-file", "", "Path to .env file (default: .env)")
	flag.StringVar(&overrides.DBBackend, "db-backend", "", "Database backend (overrides DB_BACKEND)")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "Log level (overrides LOG_LEVEL)")
	flag.StringVar(&overrides.AdminAddr, "admin-addr", "", "Admin HTTP listen address (overrides ADMIN_ADDR)")
	flag.Parse()

	cfg, err := config.Load(overrides)
	if err != nil {
		zerolog.New(os.Stderr).With().Timestamp().Logger().Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		zerolog.New(os.Stderr).With().Timestamp().Logger().Fatal().Err(err).Msg("invalid config")
	}

	log := bootstrap.NewLogger(cfg)
	log.Info().Str("environment", cfg.Environment).Msg("ivod-incremental starting")

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

	res, runErr := eng.Engine.Incremental(ctx, cfg.CommitInterval)

	if admin != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		admin.Shutdown(shutdownCtx)
		cancel()
	}

	log.Info().Int("processed", res.Processed).Int("errored", res.Errored).Msg("ivod-incremental finished")

	if runErr != nil {
		if ctx.Err() != nil {
			fmt.Fprintln(os.Stderr, "interrupted")
			os.Exit(130)
		}
		log.Error().Err(runErr).Msg("ivod-incremental failed")
		os.Exit(1)
	}
}
