package db

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/notifyhub/delivery-queue/internal/config"
)

// Connect creates a pgxpool connection pool and verifies connectivity.
func Connect(ctx context.Context, cfg config.DBConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse database URL")
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, errors.Wrap(err, "create connection pool")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "ping database")
	}

	return pool, nil
}

// Migrate runs all pending up-migrations from sourceURL (normally "file://migrations").
// Already-applied migrations are skipped.
func Migrate(sourceURL, databaseURL string) error {
	m, err := migrate.New(sourceURL, MigrationURL(databaseURL))
	if err != nil {
		return errors.Wrap(err, "create migrator")
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "run migrations")
	}

	return nil
}

// MigrationURL rewrites a postgres:// or postgresql:// URL to the pgx5:// scheme
// golang-migrate's pgx/v5 driver registers.
func MigrationURL(databaseURL string) string {
	for _, scheme := range []string{"postgresql://", "postgres://"} {
		if rest, ok := strings.CutPrefix(databaseURL, scheme); ok {
			return "pgx5://" + rest
		}
	}
	return databaseURL
}
