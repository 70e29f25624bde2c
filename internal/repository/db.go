package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/joseph-ayodele/searchable-pdf/internal/common"
)

// Store bundles the job registry with the connections behind it.
type Store struct {
	Jobs JobRepository

	drv  *entsql.Driver
	pool *pgxpool.Pool
	log  *slog.Logger
}

// Open selects a registry implementation by cfg.Driver.
func Open(ctx context.Context, cfg common.RegistryConfig, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Driver {
	case "memory":
		logger.Info("using in-memory job registry")
		return &Store{Jobs: NewMemoryJobRepository(logger), log: logger}, nil
	case "postgres":
		drv, pool, err := OpenPostgres(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return &Store{Jobs: NewSQLJobRepository(drv, logger), drv: drv, pool: pool, log: logger}, nil
	case "sqlite":
		drv, err := OpenSQLite(ctx, cfg.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		return &Store{Jobs: NewSQLJobRepository(drv, logger), drv: drv, log: logger}, nil
	}
	return nil, common.NewAppError("CONFIG_ERROR", "unknown registry driver "+cfg.Driver, common.ErrInvalidInput)
}

// OpenPostgres creates a pgx pool and wraps it as an ent SQL driver.
func OpenPostgres(ctx context.Context, cfg common.RegistryConfig, logger *slog.Logger) (*entsql.Driver, *pgxpool.Pool, error) {
	logger.Info("connecting to database", "driver", "postgres")
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		logger.Error("failed to parse database dsn", "error", err)
		return nil, nil, err
	}

	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	pc.MinConns = cfg.MinConns
	pc.MaxConnLifetime = cfg.MaxConnLifetime
	pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	pc.ConnConfig.RuntimeParams["application_name"] = "searchable-pdf"
	if cfg.StatementTimeout > 0 {
		pc.ConnConfig.RuntimeParams["statement_timeout"] = fmt.Sprint(cfg.StatementTimeout.Milliseconds())
	}

	dialCtx := ctx
	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	pool, err := pgxpool.NewWithConfig(dialCtx, pc)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return nil, nil, err
	}

	// Wrap pool as *sql.DB for ent
	db := stdlib.OpenDBFromPool(pool)
	drv := entsql.OpenDB(dialect.Postgres, db)

	logger.Info("successfully connected to database")
	return drv, pool, nil
}

// OpenSQLite opens (creating if needed) a SQLite database file. path may be
// a full "file:" DSN, used by tests for shared in-memory databases.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*entsql.Driver, error) {
	dsn := path
	if len(path) < 5 || path[:5] != "file:" {
		if dir := filepath.Dir(path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
		}
		dsn = "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	logger.Info("opening database", "driver", "sqlite", "path", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// one writer; claim CAS relies on serialized updates
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		logger.Error("failed to open sqlite database", "error", err)
		return nil, err
	}
	return entsql.OpenDB(dialect.SQLite, db), nil
}

// EnsureSchema migrates SQL-backed stores; memory stores need nothing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if s.drv == nil {
		return nil
	}
	return EnsureSchema(ctx, s.drv, s.log)
}

// Close closes the database connections gracefully
func (s *Store) Close() {
	s.log.Info("closing database connections")
	if s.drv != nil {
		if err := s.drv.Close(); err != nil {
			s.log.Error("failed to close sql driver", "error", err)
		}
	}
	if s.pool != nil {
		s.pool.Close()
	}
	s.log.Info("database connections closed")
}

// HealthCheck pings the backing database.
func (s *Store) HealthCheck(ctx context.Context, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	s.log.Debug("pinging database")
	var err error
	switch {
	case s.pool != nil:
		err = s.pool.Ping(ctx)
	case s.drv != nil:
		err = s.drv.DB().PingContext(ctx)
	}
	if err != nil {
		s.log.Error("database ping failed", "error", err)
		return err
	}
	s.log.Debug("database ping successful")
	return nil
}
