// Command ivod-es aligns the search index against the Store without
// touching the upstream catalog: either every record (--full), an
// explicit id list (--ivod-ids), or ids read from a file
// (--ivod-ids-file).
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

	"github.com/rs/zerolog"

	"github.com/billy3321/ivod-engine/internal/bootstrap"
	"github.com/billy3321/ivod-engine/internal/config"
	"github.com/billy3321/ivod-engine/internal/index"
)

// idList implements flag.Value, accepting a comma-separated list of ids.
type idList struct {
	ids []int64
}

func (l *idList) String() string {
	if l == nil {
		return ""
	}
	parts := make([]string, len(l.ids))
	for i, id := range l.ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

func (l *idList) Set(raw string) error {
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return fmt.Errorf("malformed id %q: %w", part, err)
		}
		l.ids = append(l.ids, id)
	}
	return nil
}

func main() {
	var overrides config.Overrides
	var full bool
	var ids idList
	var idsFile string
	flag.StringVar(&overrides.EnvFile, "env-file", "", "Path to .env file (default: .env)")
	flag.StringVar(&overrides.DBBackend, "db-backend", "", "Database backend (overrides DB_BACKEND)")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "Log level (overrides LOG_LEVEL)")
	flag.BoolVar(&full, "full", false, "Align every record in the Store")
	flag.Var(&ids, "ivod-ids", "Comma-separated list of IVOD ids to align")
	flag.StringVar(&idsFile, "ivod-ids-file", "", "Path to a file of newline-separated IVOD ids to align")
	flag.Parse()

	selected := 0
	if full {
		selected++
	}
	if len(ids.ids) > 0 {
		selected++
	}
	if idsFile != "" {
		selected++
	}
	if selected > 1 {
		fmt.Fprintln(os.Stderr, "ivod-es: --full, --ivod-ids, and --ivod-ids-file are mutually exclusive")
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
	log.Info().Str("environment", cfg.Environment).Msg("ivod-es starting")

	if idsFile != "" {
		fileIDs, err := readIDsFromFile(idsFile)
		if err != nil {
			log.Fatal().Err(err).Str("path", idsFile).Msg("failed to read --ivod-ids-file")
		}
		ids.ids = fileIDs
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := bootstrap.NewEngine(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize engine")
	}
	defer eng.Close()

	sel := index.Selector{Full: full, IDs: ids.ids}
	res, err := eng.Index.Align(ctx, eng.Store, sel)
	log.Info().Int("updated", res.Updated).Int("skipped", res.Skipped).Int("errors", res.Errors).Msg("ivod-es finished")

	if err != nil {
		if ctx.Err() != nil {
			fmt.Fprintln(os.Stderr, "interrupted")
			os.Exit(130)
		}
		log.Error().Err(err).Msg("ivod-es failed")
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
