// Package bootstrap wires the pieces every ivod-* binary needs in the
// same order: config, logger, Store, Fetcher, Ledger, Index Aligner,
// workflow Engine. It is the one place that order is written down, so
// the seven entry points stay identical in how they start up and shut
// down.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/billy3321/ivod-engine/internal/config"
	"github.com/billy3321/ivod-engine/internal/fetcher"
	"github.com/billy3321/ivod-engine/internal/index"
	"github.com/billy3321/ivod-engine/internal/ledger"
	"github.com/billy3321/ivod-engine/internal/store"
	"github.com/billy3321/ivod-engine/internal/workflow"
)

// thresholdWriter implements zerolog.LevelWriter, passing a write through
// only when it meets floor. Pairing two of these via
// zerolog.MultiLevelWriter gives the file and the terminal independent
// minimum levels off one Logger.
type thresholdWriter struct {
	raw   io.Writer
	floor zerolog.Level
}

func (t thresholdWriter) Write(p []byte) (int, error) {
	return t.raw.Write(p)
}

func (t thresholdWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < t.floor {
		return len(p), nil
	}
	return t.raw.Write(p)
}

// NewLogger builds the engine's logger: records at the configured level
// (default INFO) and above go to a file at cfg.LogPath that is rotated by
// size, not by calendar day; WARN-and-above are duplicated to the terminal.
func NewLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	fileWriter := &lumberjack.Logger{
		Filename: cfg.LogPath,
		MaxSize:  100, // megabytes
		MaxAge:   28,  // days
		Compress: true,
	}

	console := zerolog.NewConsoleWriter()

	multi := zerolog.MultiLevelWriter(
		thresholdWriter{raw: fileWriter, floor: level},
		thresholdWriter{raw: console, floor: zerolog.WarnLevel},
	)

	return zerolog.New(multi).With().Timestamp().Logger().Level(level)
}

// Engine bundles the components an ivod-* workflow binary needs, plus
// their close/shutdown hooks.
type Engine struct {
	Config *config.Config
	Log    zerolog.Logger
	Store  store.Store
	Ledger *ledger.Ledger
	Index  *index.Aligner
	Engine *workflow.Engine
}

// NewEngine opens the Store, builds the Fetcher, Ledger, and Index
// Aligner, and assembles a workflow.Engine from them. Call Close when
// done.
func NewEngine(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Engine, error) {
	st, err := store.Open(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: open store: %w", err)
	}

	f := fetcher.New(fetcher.Options{
		Timeout:  cfg.CrawlerTimeout,
		MinSleep: secondsToDuration(cfg.MinSleepSeconds),
		MaxSleep: secondsToDuration(cfg.MaxSleepSeconds),
		SkipSSL:  cfg.SkipSSL,
		Log:      log,
	})

	l := ledger.New(cfg.LedgerPath, log)

	idx, err := index.New(
		fmt.Sprintf("%s://%s:%d", cfg.ESScheme, cfg.ESHost, cfg.ESPort),
		cfg.ESUser, cfg.ESPass, cfg.ESIndex,
		cfg.EnableElasticsearch, log,
	)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("bootstrap: build index aligner: %w", err)
	}

	eng := workflow.New(st, f, l, idx, log)

	return &Engine{
		Config: cfg,
		Log:    log,
		Store:  st,
		Ledger: l,
		Index:  idx,
		Engine: eng,
	}, nil
}

// Close releases the Store's held connections.
func (e *Engine) Close() error {
	return e.Store.Close()
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
