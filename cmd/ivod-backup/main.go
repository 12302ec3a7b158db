// Command ivod-backup streams every Store record into a JSON envelope
// file.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/billy3321/ivod-engine/internal/backup"
	"github.com/billy3321/ivod-engine/internal/bootstrap"
	"github.com/billy3321/ivod-engine/internal/config"
	"github.com/billy3321/ivod-engine/internal/model"
	"github.com/billy3321/ivod-engine/internal/store"
)

func main() {
	var overrides config.Overrides
	var path string
	flag.StringVar(&overrides.EnvFile, "env-file", "", "Path to .env file (default: .env)")
	flag.StringVar(&overrides.DBBackend, "db-backend", "", "Database backend (overrides DB_BACKEND)")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "Log level (overrides LOG_LEVEL)")
	flag.StringVar(&path, "file", "", "Backup file path (default: ivod_backup_<timestamp>.json)")
	flag.Parse()

	cfg, err := config.Load(overrides)
	if err != nil {
		zerolog.New(os.Stderr).With().Timestamp().Logger().Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		zerolog.New(os.Stderr).With().Timestamp().Logger().Fatal().Err(err).Msg("invalid config")
	}

	log := bootstrap.NewLogger(cfg)
	log.Info().Str("environment", cfg.Environment).Msg("ivod-backup starting")

	if path == "" {
		path = fmt.Sprintf("ivod_backup_%s.json", model.Now().Format("20060102_150405"))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer st.Close()

	meta, err := backup.Backup(ctx, st, path, cfg.DBBackend, log)
	if err != nil {
		if ctx.Err() != nil {
			fmt.Fprintln(os.Stderr, "interrupted")
			os.Exit(130)
		}
		log.Error().Err(err).Msg("ivod-backup failed")
		os.Exit(1)
	}

	log.Info().Str("path", path).Int("records", meta.RecordCount).Msg("ivod-backup finished")
}
