// Package database holds the Postgres pool behind the offramp attempt ledger
// and its embedded goose migrations.
package database

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/rahataid/rahat-offramp/pkg/logger"
	"github.com/rahataid/rahat-offramp/pkg/metrics"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	maxConns = 10
	minConns = 2
)

type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// DSN renders cfg as a postgres:// URL so credentials with spaces or
// symbols survive.
func (c *Config) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.Database,
	}
	if c.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {c.SSLMode}}.Encode()
	}
	return u.String()
}

// NewPool connects and pings. Queries are traced through otelpgx.
func NewPool(ctx context.Context, cfg *Config) (*pgxpool.Pool, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("database config: %w", err)
	}
	pc.MaxConns = maxConns
	pc.MinConns = minConns
	pc.ConnConfig.Tracer = otelpgx.NewTracer()

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database %s unreachable: %w", cfg.Host, err)
	}
	return pool, nil
}

// Migrate applies the embedded migrations that have not run yet.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	fsys, err := migrationFS()
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	for _, r := range results {
		logger.Info().Int64("version", r.Source.Version).Dur("took", r.Duration).Msg("Applied migration")
	}
	return nil
}

func migrationFS() (fs.FS, error) {
	return fs.Sub(migrations, "migrations")
}

// ReportPoolStats publishes the acquired connection count until ctx ends.
func ReportPoolStats(ctx context.Context, pool *pgxpool.Pool, service string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stat := pool.Stat()
			metrics.RecordDBPoolStats(service, int(stat.AcquiredConns()))
			logger.Debug().
				Int32("acquired", stat.AcquiredConns()).
				Int32("idle", stat.IdleConns()).
				Msg("Database pool stats")
		}
	}
}
