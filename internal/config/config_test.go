package config

import (
	"os"
	"testing"
)

func TestLoad(t *testing.T) {
	cleanup := setEnvs(t, map[string]string{
		"DB_BACKEND": "postgresql",
		"PG_HOST":    "db.internal",
	})
	defer cleanup()

	t.Run("defaults", func(t *testing.T) {
		cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.ESIndex != "ivod_transcripts" {
			t.Errorf("ESIndex = %q, want ivod_transcripts", cfg.ESIndex)
		}
		if cfg.BatchSize != 100 {
			t.Errorf("BatchSize = %d, want 100", cfg.BatchSize)
		}
		if cfg.MaxRetries != 5 {
			t.Errorf("MaxRetries = %d, want 5", cfg.MaxRetries)
		}
		if !cfg.EnableElasticsearch {
			t.Error("EnableElasticsearch = false, want true")
		}
	})

	t.Run("cli_overrides_take_priority", func(t *testing.T) {
		cfg, err := Load(Overrides{
			EnvFile:   "nonexistent.env",
			DBBackend: "sqlite",
			LogLevel:  "debug",
			BatchSize: 25,
		})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.DBBackend != "sqlite" {
			t.Errorf("DBBackend = %q, want sqlite", cfg.DBBackend)
		}
		if cfg.LogLevel != "debug" {
			t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
		}
		if cfg.BatchSize != 25 {
			t.Errorf("BatchSize = %d, want 25", cfg.BatchSize)
		}
	})

	t.Run("env_vars_read", func(t *testing.T) {
		cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.DBBackend != "postgresql" {
			t.Errorf("DBBackend = %q, want postgresql", cfg.DBBackend)
		}
		if cfg.PGHost != "db.internal" {
			t.Errorf("PGHost = %q, want db.internal", cfg.PGHost)
		}
	})
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(c *Config) {}, false},
		{"bad backend", func(c *Config) { c.DBBackend = "oracle" }, true},
		{"bad es scheme", func(c *Config) { c.ESScheme = "ftp" }, true},
		{"bad es port", func(c *Config) { c.ESPort = 70000 }, true},
		{"zero batch size", func(c *Config) { c.BatchSize = 0 }, true},
		{"negative max retries", func(c *Config) { c.MaxRetries = -1 }, true},
		{"inverted sleep range", func(c *Config) { c.MinSleepSeconds = 3; c.MaxSleepSeconds = 1 }, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			tc.mutate(cfg)
			err = cfg.Validate()
			if tc.wantErr && err == nil {
				t.Error("expected validation error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestValidateSetsTestingEnvironment(t *testing.T) {
	cleanup := setEnvs(t, map[string]string{"TESTING": "true"})
	defer cleanup()

	cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Environment != "testing" {
		t.Errorf("Environment = %q, want testing", cfg.Environment)
	}
}

// setEnvs sets environment variables and returns a cleanup function.
func setEnvs(t *testing.T, envs map[string]string) func() {
	t.Helper()
	originals := make(map[string]string)
	unset := make([]string, 0)

	for k, v := range envs {
		if orig, ok := os.LookupEnv(k); ok {
			originals[k] = orig
		} else {
			unset = append(unset, k)
		}
		os.Setenv(k, v)
	}

	return func() {
		for k, v := range originals {
			os.Setenv(k, v)
		}
		for _, k := range unset {
			os.Unsetenv(k)
		}
	}
}
