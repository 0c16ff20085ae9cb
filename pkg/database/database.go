// Package database persists everything the map server wants to
// survive a restart: downloaded boundary payloads, the latest live
// event snapshot, the interaction registry, and forecast datasets.
// One schema runs across SQLite, Genji, DuckDB, and PostgreSQL; SQL
// stays declarative and the driver switch stays in one place.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"
)

// Database wraps the SQL connection with the normalized driver name so
// query builders can adjust placeholders without re-parsing config.
type Database struct {
	DB     *sql.DB
	Driver string
}

// Config holds the connection details.
type Config struct {
	DBType    string // sqlite, genji, duckdb, or pgx (PostgreSQL)
	DBPath    string // file path for file-based engines
	DBConn    string // raw DSN for network drivers
	DBHost    string // PostgreSQL host
	DBPort    int    // PostgreSQL port
	DBUser    string // PostgreSQL user
	DBPass    string // PostgreSQL password
	DBName    string // PostgreSQL database name
	PGSSLMode string // PostgreSQL sslmode
	Port      int    // server port, used in default file names
}

// NewDatabase opens the connection and configures pooling.  File-based
// engines are forced into single-connection mode because they do not
// tolerate concurrent writers.
func NewDatabase(config Config) (*Database, error) {
	driverName := strings.ToLower(strings.TrimSpace(config.DBType))
	var (
		dsn                string
		applySQLitePragmas bool
	)

	switch driverName {
	case "sqlite":
		applySQLitePragmas = true
		dsn = config.DBPath
		if dsn == "" {
			dsn = fmt.Sprintf("pulse-%d.%s", config.Port, driverName)
		}
	case "genji":
		// Genji manages its own transaction and caching strategy, so it
		// skips the SQLite PRAGMA tuning.
		dsn = config.DBPath
		if dsn == "" {
			dsn = fmt.Sprintf("pulse-%d.%s", config.Port, driverName)
		}
	case "duckdb":
		// The file is created on first open.
		dsn = config.DBPath
		if dsn == "" {
			dsn = fmt.Sprintf("pulse-%d.duckdb", config.Port)
		}
	case "pgx":
		if strings.TrimSpace(config.DBConn) != "" {
			dsn = config.DBConn
		} else {
			dsn = fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
				config.DBUser, config.DBPass, config.DBHost, config.DBPort, config.DBName, config.PGSSLMode)
		}
	default:
		return nil, fmt.Errorf("unsupported database type: %s", config.DBType)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening the database: %v", err)
	}

	switch driverName {
	case "sqlite", "genji", "duckdb":
		// One physical connection; no concurrent statements at DB layer.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		if applySQLitePragmas {
			tuneCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := tuneSQLiteConnection(tuneCtx, db, log.Printf); err != nil {
				log.Printf("sqlite tuning skipped: %v", err)
			}
			cancel()
		}
	case "pgx":
		db.SetMaxOpenConns(8)
		db.SetMaxIdleConns(4)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	// Liveness check with a timeout so startup never hangs.
	{
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("error connecting to the database: %v", err)
		}
	}

	log.Printf("Using database driver: %s with DSN: %s", driverName, dsn)
	return &Database{DB: db, Driver: driverName}, nil
}

// tuneSQLiteConnection applies WAL/synchronous/busy pragmas.  The
// steps run through a small channel pipeline so the work happens
// outside the caller goroutine, following "Don't communicate by
// sharing memory; share memory by communicating".
func tuneSQLiteConnection(ctx context.Context, db *sql.DB, logf func(string, ...any)) error {
	type pragma struct {
		label     string
		query     string
		expectRow bool
	}

	steps := []pragma{
		{label: "journal_mode", query: "PRAGMA journal_mode=WAL;", expectRow: true},
		{label: "synchronous", query: "PRAGMA synchronous=NORMAL;"},
		{label: "temp_store", query: "PRAGMA temp_store=MEMORY;"},
		{label: "busy_timeout", query: "PRAGMA busy_timeout=5000;"},
	}

	jobs := make(chan pragma)
	errs := make(chan error, 1)

	go func() {
		defer close(errs)
		for step := range jobs {
			select {
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			default:
			}
			if step.expectRow {
				var mode string
				if err := db.QueryRowContext(ctx, step.query).Scan(&mode); err != nil {
					errs <- fmt.Errorf("apply %s: %w", step.label, err)
					return
				}
				logf("SQLite tuning %s -> %s", step.label, mode)
				continue
			}
			if _, err := db.ExecContext(ctx, step.query); err != nil {
				errs <- fmt.Errorf("apply %s: %w", step.label, err)
				return
			}
		}
		errs <- nil
	}()

	go func() {
		defer close(jobs)
		for _, step := range steps {
			select {
			case jobs <- step:
			case <-ctx.Done():
				return
			}
		}
	}()

	return <-errs
}

// rebind rewrites "?" placeholders into "$1..$n" for PostgreSQL.  The
// other engines all accept "?" directly.
func (db *Database) rebind(query string) string {
	if db.Driver != "pgx" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// InitSchema creates the tables when missing.  Types stay on the
// lowest common denominator so the same DDL runs on every engine.
func (db *Database) InitSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS boundary_cache (
			url TEXT PRIMARY KEY,
			payload TEXT,
			fetched_at BIGINT
		)`,
		`CREATE TABLE IF NOT EXISTS live_snapshot (
			id INT PRIMARY KEY,
			payload TEXT,
			fetched_at BIGINT
		)`,
		`CREATE TABLE IF NOT EXISTS interactions (
			id TEXT PRIMARY KEY,
			category TEXT,
			payload TEXT,
			updated_at BIGINT
		)`,
		`CREATE TABLE IF NOT EXISTS forecast_rows (
			label TEXT,
			admin1 TEXT,
			total DOUBLE PRECISION,
			battles DOUBLE PRECISION,
			erv DOUBLE PRECISION,
			violence DOUBLE PRECISION
		)`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_category ON interactions(category)`,
		`CREATE INDEX IF NOT EXISTS idx_forecast_label ON forecast_rows(label)`,
	}
	for _, stmt := range stmts {
		if _, err := db.DB.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// Close releases the connection pool.
func (db *Database) Close() error {
	if db == nil || db.DB == nil {
		return nil
	}
	return db.DB.Close()
}
