// Package sqlite opens the periodize database, keeps its schema in sync with schema.sql and offers transaction
// helpers for the repositories.
package sqlite

import (
	"context"
	"crypto/rand"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaDefinition string

//go:embed fixtures.sql
var fixtures string

// Database holds one single-connection pool for writes and one pool for concurrent reads.
//
// Writers begin transactions with BEGIN IMMEDIATE on a single connection, so two mutations of the same plan
// application can never interleave.
type Database struct {
	ReadWrite *sql.DB
	ReadOnly  *sql.DB
	logger    *slog.Logger
}

// NewDatabase connects, migrates the schema and applies the fixtures. The url is a file path or ":memory:".
func NewDatabase(ctx context.Context, url string, logger *slog.Logger) (*Database, error) {
	db, err := connect(ctx, url, logger)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err = db.migrateTo(ctx, schemaDefinition); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if _, err = db.ReadWrite.ExecContext(ctx, fixtures); err != nil {
		return nil, fmt.Errorf("apply fixtures: %w", err)
	}

	go db.startDatabaseOptimizer(ctx)

	return db, nil
}

//nolint:gochecknoglobals // the driver can only be registered once per process.
var once sync.Once

const optimizedDriver = "sqlite3periodize"

func registerOptimizedDriver() {
	sql.Register(optimizedDriver,
		&sqlite3.SQLiteDriver{
			Extensions: nil,
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				if _, err := conn.Exec(
					// Temporary tables and indices live in memory.
					"PRAGMA temp_store = memory;"+
						"PRAGMA mmap_size = 30000000000;", nil); err != nil {
					return fmt.Errorf("exec connection pragmas: %w", err)
				}
				return nil
			},
		})
}

func dsn(url, mode, txlock string, extra ...string) string {
	params := append([]string{
		"mode=" + mode,
		"_txlock=" + txlock,
		"_loc=UTC",
		"_journal_mode=wal",
		"_busy_timeout=5000",
		"_synchronous=normal",
		"_foreign_keys=on",
	}, extra...)
	// Options with a leading underscore are documented at https://pkg.go.dev/github.com/mattn/go-sqlite3#SQLiteDriver.Open,
	// the rest at https://www.sqlite.org/uri.html.
	return fmt.Sprintf("file:%s?%s", url, strings.Join(params, "&"))
}

// pool describes one of the two connection pools.
type pool struct {
	name     string
	mode     string
	txlock   string
	maxConns int
	extra    []string
}

func (p pool) open(ctx context.Context, url string, logger *slog.Logger) (*sql.DB, error) {
	conf := dsn(url, p.mode, p.txlock, p.extra...)
	db, err := sql.Open(optimizedDriver, conf)
	if err != nil {
		return nil, fmt.Errorf("open %s pool: %w", p.name, err)
	}
	db.SetMaxOpenConns(p.maxConns)
	db.SetMaxIdleConns(p.maxConns)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(time.Hour)
	// sql.DB is lazy. Ping so that a missing file is created before the read-only pool opens it.
	if err = db.PingContext(ctx); err != nil {
		return nil, errors.Join(fmt.Errorf("ping %s pool: %w", p.name, err), db.Close())
	}
	logger.LogAttrs(ctx, slog.LevelDebug, "opened pool", slog.String("pool", p.name), slog.String("dsn", conf))
	return db, nil
}

func connect(ctx context.Context, url string, logger *slog.Logger) (*Database, error) {
	writer := pool{name: "read-write", mode: "rwc", txlock: "immediate", maxConns: 1, extra: nil}
	reader := pool{name: "read-only", mode: "ro", txlock: "deferred", maxConns: 10, extra: []string{"_query_only=true"}} //nolint:mnd // concurrent readers.
	// In-memory databases get a unique name and a shared cache so that both pools see the same data while
	// parallel tests stay isolated. See https://www.sqlite.org/inmemorydb.html.
	if strings.Contains(url, ":memory:") {
		url = rand.Text()
		for _, p := range []*pool{&writer, &reader} {
			p.mode = "memory"
			p.extra = append(p.extra, "cache=shared")
		}
	}

	once.Do(registerOptimizedDriver)

	readWrite, err := writer.open(ctx, url, logger)
	if err != nil {
		return nil, err
	}
	readOnly, err := reader.open(ctx, url, logger)
	if err != nil {
		return nil, errors.Join(err, readWrite.Close())
	}
	logger.LogAttrs(ctx, slog.LevelInfo, "opened database", slog.String("url", url))
	return &Database{ReadWrite: readWrite, ReadOnly: readOnly, logger: logger}, nil
}

// Close closes both pools.
func (db *Database) Close() error {
	return errors.Join(db.ReadOnly.Close(), db.ReadWrite.Close())
}

// WithTx runs fn inside a write transaction. The transaction commits when fn returns nil and rolls back
// otherwise, so callers never observe a partially applied change.
func (db *Database) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.ReadWrite.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer db.rollback(ctx, tx)()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (db *Database) rollback(ctx context.Context, tx *sql.Tx) func() {
	return func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			db.logger.LogAttrs(ctx, slog.LevelError, "failed to rollback transaction",
				slog.Any("error", fmt.Errorf("rollback: %w", err)))
		}
	}
}

// IsUniqueViolation reports whether err comes from a UNIQUE or PRIMARY KEY constraint.
func IsUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
