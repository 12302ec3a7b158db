package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is populated entirely from the environment (or a .env file),
// following the same load order as the codebase this was modeled on:
// .env file < real environment < CLI flag overrides.
type Config struct {
	Environment string `env:"DB_ENV" envDefault:"development"`
	Testing     bool   `env:"TESTING" envDefault:"false"`

	DBBackend string `env:"DB_BACKEND" envDefault:"sqlite"`

	SQLitePath string `env:"SQLITE_PATH" envDefault:"./ivod.db"`

	PGHost     string `env:"PG_HOST" envDefault:"localhost"`
	PGPort     int    `env:"PG_PORT" envDefault:"5432"`
	PGUser     string `env:"PG_USER" envDefault:"ivod"`
	PGPassword string `env:"PG_PASSWORD"`
	PGDatabase string `env:"PG_DATABASE" envDefault:"ivod"`

	MySQLHost     string `env:"MYSQL_HOST" envDefault:"localhost"`
	MySQLPort     int    `env:"MYSQL_PORT" envDefault:"3306"`
	MySQLUser     string `env:"MYSQL_USER" envDefault:"ivod"`
	MySQLPassword string `env:"MYSQL_PASSWORD"`
	MySQLDatabase string `env:"MYSQL_DATABASE" envDefault:"ivod"`

	EnableElasticsearch bool   `env:"ENABLE_ELASTICSEARCH" envDefault:"true"`
	ESHost              string `env:"ES_HOST" envDefault:"localhost"`
	ESPort              int    `env:"ES_PORT" envDefault:"9200"`
	ESScheme            string `env:"ES_SCHEME" envDefault:"http"`
	ESUser              string `env:"ES_USER"`
	ESPass              string `env:"ES_PASS"`
	ESIndex             string `env:"ES_INDEX" envDefault:"ivod_transcripts"`

	SkipSSL         bool          `env:"SKIP_SSL" envDefault:"false"`
	CrawlerTimeout  time.Duration `env:"CRAWLER_TIMEOUT" envDefault:"30s"`
	MaxRetries      int           `env:"MAX_RETRIES" envDefault:"5"`
	BatchSize       int           `env:"BATCH_SIZE" envDefault:"100"`
	CommitInterval  int           `env:"COMMIT_INTERVAL" envDefault:"10"`
	MinSleepSeconds float64       `env:"MIN_SLEEP" envDefault:"0.5"`
	MaxSleepSeconds float64       `env:"MAX_SLEEP" envDefault:"2.0"`

	LedgerPath string `env:"ERROR_LOG_PATH" envDefault:"./ivod_errors.log"`
	LogPath    string `env:"LOG_PATH" envDefault:"./ivod.log"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`

	AdminAddr string `env:"ADMIN_ADDR"`
}

// Validate checks the struct for internally inconsistent or out-of-range
// values. It runs once at startup; any error here is fatal before any
// workflow touches the network or the database.
func (c *Config) Validate() error {
	switch c.DBBackend {
	case "sqlite", "postgresql", "mysql":
	default:
		return fmt.Errorf("DB_BACKEND: unsupported backend %q (want sqlite, postgresql, or mysql)", c.DBBackend)
	}
	if c.ESScheme != "http" && c.ESScheme != "https" {
		return fmt.Errorf("ES_SCHEME: must be http or https, got %q", c.ESScheme)
	}
	if c.ESPort < 1 || c.ESPort > 65535 {
		return fmt.Errorf("ES_PORT: out of range: %d", c.ESPort)
	}
	if c.CrawlerTimeout <= 0 {
		return fmt.Errorf("CRAWLER_TIMEOUT: must be positive, got %s", c.CrawlerTimeout)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("MAX_RETRIES: must not be negative, got %d", c.MaxRetries)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("BATCH_SIZE: must be positive, got %d", c.BatchSize)
	}
	if c.CommitInterval <= 0 {
		return fmt.Errorf("COMMIT_INTERVAL: must be positive, got %d", c.CommitInterval)
	}
	if c.MinSleepSeconds < 0 || c.MaxSleepSeconds < c.MinSleepSeconds {
		return fmt.Errorf("MIN_SLEEP/MAX_SLEEP: invalid range [%v, %v]", c.MinSleepSeconds, c.MaxSleepSeconds)
	}
	if c.Testing {
		c.Environment = "testing"
	}
	return nil
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile    string
	DBBackend  string
	SQLitePath string
	LogLevel   string
	AdminAddr  string
	BatchSize  int
}

// Load reads configuration from a .env file, environment variables, and CLI
// overrides. Priority: CLI flags > environment variables > .env file >
// struct defaults.
func Load(overrides Overrides) (*Config, error) {
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if overrides.DBBackend != "" {
		cfg.DBBackend = overrides.DBBackend
	}
	if overrides.SQLitePath != "" {
		cfg.SQLitePath = overrides.SQLitePath
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.AdminAddr != "" {
		cfg.AdminAddr = overrides.AdminAddr
	}
	if overrides.BatchSize != 0 {
		cfg.BatchSize = overrides.BatchSize
	}

	return cfg, nil
}
