// Command ivod-restore re-inserts every record from a backup envelope
// file into the Store.
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
	"github.com/billy3321/ivod-engine/internal/store"
)

func main() {
	var overrides config.Overrides
	var forceCreate, forceClear bool
	flag.StringVar(&overrides.EnvFile, "env-file", "", "Path to .env file (default: .env)")
	flag.StringVar(&overrides.DBBackend, "db-backend", "", "Database backend (overrides DB_BACKEND)")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "Log level (overrides LOG_LEVEL)")
	flag.BoolVar(&forceCreate, "force-create", false, "Create the schema if it does not already exist")
	flag.BoolVar(&forceClear, "force-clear", false, "Delete every existing row before restoring, without prompting")
	flag.Parse()

	path := flag.Arg(0)
	if flag.NArg() > 1 {
		// flag stops at the first positional argument; parse flags given after PATH too.
		flag.CommandLine.Parse(flag.Args()[1:])
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "usage: ivod-restore PATH [--force-create] [--force-clear]")
		os.Exit(1)
	}

	cfg, err := config.Load(overrides)
	if err != nil {
		zerolog.New(os.Stderr).With().Timestamp().Logger().Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		zerolog.New(os.Stderr).With().Timestamp().Logger().Fatal().Err(err).Msg("invalid config")
	}

	log := bootstrap.NewLogger(cfg)
	log.Info().Str("environment", cfg.Environment).Bool("force_create", forceCreate).Bool("force_clear", forceClear).Msg("ivod-restore starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer st.Close()

	count, err := backup.Restore(ctx, st, path, backup.Options{ForceCreate: forceCreate, ForceClear: forceClear}, log)
	if err != nil {
		if ctx.Err() != nil {
			fmt.Fprintln(os.Stderr, "interrupted")
			os.Exit(130)
		}
		log.Error().Err(err).Msg("ivod-restore failed")
		os.Exit(1)
	}

	log.Info().Str("path", path).Int("records", count).Msg("ivod-restore finished")
}
