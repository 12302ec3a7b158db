package store

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/billy3321/ivod-engine/internal/config"
)

// Open builds the Store adapter selected by cfg.DBBackend and ensures its
// schema exists.
func Open(ctx context.Context, cfg *config.Config, log zerolog.Logger) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.DBBackend {
	case "postgresql":
		dsn := PostgresDSN(cfg.PGHost, cfg.PGPort, cfg.PGUser, cfg.PGPassword, cfg.PGDatabase)
		s, err = OpenPostgres(ctx, dsn, log)
	case "mysql":
		dsn := MySQLDSN(cfg.MySQLHost, cfg.MySQLPort, cfg.MySQLUser, cfg.MySQLPassword, cfg.MySQLDatabase)
		s, err = OpenMySQL(ctx, dsn, log)
	case "sqlite":
		s, err = OpenSQLite(ctx, cfg.SQLitePath, log)
	default:
		return nil, fmt.Errorf("store: unsupported backend %q", cfg.DBBackend)
	}
	if err != nil {
		return nil, err
	}
	if err := s.EnsureSchema(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return s, nil
}
