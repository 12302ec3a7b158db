// Command ivod-fix re-fetches a specific, caller-chosen set of ids: a
// single id, a file of newline-separated ids, or every id currently
// recorded in a Failure Ledger file.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/billy3321/ivod-engine/internal/adminhttp"
	"github.com/billy3321/ivod-engine/internal/bootstrap"
	"github.com/billy3321/ivod-engine/internal/config"
	"github.com/billy3321/ivod-engine/internal/ledger"
)

func main() {
	var overrides config.Overrides
	var ivodID int64
	var filePath, errorLogPath string
	flag.StringVar(&overrides.EnvFile, "env-file", "", "Path to .env file (default: .env)")
	flag.StringVar(&overrides.DBBackend, "db-backend", "", "Database backend (overrides DB_BACKEND)")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "Log level (overrides LOG_LEVEL)")
	flag.StringVar(&overrides.AdminAddr, "admin-addr", "", "Admin HTTP listen address (overrides ADMIN_ADDR)")
	flag.Int64Var(&ivodID, "ivod-id", 0, "Single IVOD id to fix")
	flag.StringVar(&filePath, "file", "", "Path to a file of newline-separated IVOD ids to fix")
	flag.StringVar(&errorLogPath, "error-log", "", "Path to a Failure Ledger file; every id in it is fixed")
	flag.Parse()

	selected := 0
	if ivodID != 0 {
		selected++
	}
	if filePath != "" {
		selected++
	}
	if errorLogPath != "" {
		selected++
	}
	if selected > 1 {
		fmt.Fprintln(os.Stderr, "ivod-fix: --ivod-id, --file, and --error-log are mutually exclusive")
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
	log.Info().Str("environment", cfg.Environment).Msg("ivod-fix starting")

	var ids []int64
	var fromLedger bool
	switch {
	case ivodID != 0:
		ids = []int64{ivodID}
	case filePath != "":
		ids, err = readIDsFromFile(filePath)
		if err != nil {
			log.Fatal().Err(err).Str("path", filePath).Msg("failed to read --file")
		}
	case errorLogPath != "":
		l := ledger.New(errorLogPath, log)
		ids, err = l.ReadIDs()
		if err != nil {
			log.Fatal().Err(err).Str("path", errorLogPath).Msg("failed to read --error-log")
		}
		fromLedger = true
	default:
		l := ledger.New(cfg.LedgerPath, log)
		ids, err = l.ReadIDs()
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.LedgerPath).Msg("failed to read failure ledger")
		}
		fromLedger = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := bootstrap.NewEngine(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize engine")
	}
	defer eng.Close()
	if errorLogPath != "" {
		eng.Engine.Ledger = ledger.New(errorLogPath, log)
	}

	var admin *adminhttp.Server
	if cfg.AdminAddr != "" {
		admin = adminhttp.New(cfg.AdminAddr, eng.Store, eng.Index, log)
		go func() {
			if err := admin.Start(); err != nil {
				log.Error().Err(err).Msg("admin http server error")
			}
		}()
	}

	res, runErr := eng.Engine.Fix(ctx, cfg.CommitInterval, ids, fromLedger)

	if admin != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		admin.Shutdown(shutdownCtx)
		cancel()
	}

	log.Info().Int("processed", res.Processed).Int("errored", res.Errored).Int("requested", len(ids)).Msg("ivod-fix finished")

	if runErr != nil {
		if ctx.Err() != nil {
			fmt.Fprintln(os.Stderr, "interrupted")
			os.Exit(130)
		}
		log.Error().Err(runErr).Msg("ivod-fix failed")
		os.Exit(1)
	}
}

func readIDsFromFile(path string) ([]int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var ids []int64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		id, err := strconv.ParseInt(line, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed id %q: %w", line, err)
		}
		ids = append(ids, id)
	}
	return ids, scanner.Err()
}
