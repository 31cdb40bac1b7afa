package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"fluxa/utils"
)

// DB wraps the SQLite database connection
type DB struct {
	conn   *sql.DB
	path   string
	logger *utils.Logger

	mu     sync.Mutex
	closed bool
}

// Open creates the database file if needed, opens a single connection with
// foreign keys enforced and applies the schema.
func Open(cfg utils.DatabaseConfig, logger *utils.Logger) (*DB, error) {
	if logger == nil {
		logger = utils.NewNopLogger()
	}

	inMemory := cfg.Path == ":memory:"
	if !inMemory {
		dir := filepath.Dir(cfg.Path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, storeErr("initialize", fmt.Errorf("failed to create database directory: %w", err))
		}
	}

	conn, err := sql.Open("sqlite3", dsn(cfg, inMemory))
	if err != nil {
		return nil, storeErr("initialize", fmt.Errorf("failed to open database: %w", err))
	}

	// One connection: SQLite allows a single writer, and an in-memory
	// database only lives as long as its connection.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	db := &DB{conn: conn, path: cfg.Path, logger: logger}

	ctx, cancel := context.WithTimeout(context.Background(), busyTimeout(cfg)+10*time.Second)
	defer cancel()

	if err := db.initialize(ctx); err != nil {
		conn.Close()
		logger.DatabaseOperation("INITIALIZE", "ALL", err)
		return nil, err
	}

	logger.Info("Database initialized | Path: %s", cfg.Path)
	return db, nil
}

func busyTimeout(cfg utils.DatabaseConfig) time.Duration {
	if cfg.Timeout <= 0 {
		return 5 * time.Second
	}
	return time.Duration(cfg.Timeout * float64(time.Second))
}

func dsn(cfg utils.DatabaseConfig, inMemory bool) string {
	params := url.Values{}
	params.Set("_busy_timeout", fmt.Sprint(busyTimeout(cfg).Milliseconds()))
	params.Set("_foreign_keys", "on")
	if cfg.EnableWAL && !inMemory {
		params.Set("_journal_mode", "WAL")
	}
	if inMemory {
		return "file::memory:?" + params.Encode()
	}
	return "file:" + cfg.Path + "?" + params.Encode()
}

func (db *DB) initialize(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return storeErr("initialize", fmt.Errorf("failed to connect: %w", err))
	}

	var fk int
	if err := db.conn.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk); err != nil {
		return storeErr("initialize", fmt.Errorf("failed to read foreign_keys pragma: %w", err))
	}
	if fk != 1 {
		return storeErr("initialize", errors.New("foreign key enforcement could not be enabled"))
	}

	var mode string
	if err := db.conn.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode); err == nil {
		db.logger.Debug("Journal mode: %s", mode)
	}

	return db.migrate(ctx)
}

// migrate applies the whole schema in one transaction; a failure part way
// leaves nothing behind.
func (db *DB) migrate(ctx context.Context) error {
	err := db.WithTx(ctx, func(tx *Tx) error {
		for _, stmt := range schema {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("migration failed: %w\nSQL: %s", err, stmt)
			}
		}
		return nil
	})
	if err != nil {
		return storeErr("create schema", err)
	}

	db.logger.DatabaseOperation("CREATE_SCHEMA", "ALL", nil)
	return nil
}

// Path returns the database file path
func (db *DB) Path() string {
	return db.path
}

func (db *DB) checkOpen() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return ErrClosed
	}
	return nil
}

// Exec runs a single parameterized statement in autocommit mode
func (db *DB) Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	if err := db.checkOpen(); err != nil {
		return nil, storeErr("execute", err)
	}
	res, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("execute", err)
	}
	return res, nil
}

// ExecMany runs one statement once per argument set inside a single
// transaction. Either every set is applied or none is.
func (db *DB) ExecMany(ctx context.Context, query string, argSets [][]interface{}) (int64, error) {
	var affected int64
	err := db.WithTx(ctx, func(tx *Tx) error {
		stmt, err := tx.tx.PrepareContext(ctx, query)
		if err != nil {
			return storeErr("prepare", err)
		}
		defer stmt.Close()

		for i, args := range argSets {
			res, err := stmt.ExecContext(ctx, args...)
			if err != nil {
				return storeErr(fmt.Sprintf("execute many (set %d)", i), err)
			}
			if n, err := res.RowsAffected(); err == nil {
				affected += n
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}

func (db *DB) query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	return db.conn.QueryContext(ctx, query, args...)
}

func (db *DB) queryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return db.conn.QueryRowContext(ctx, query, args...)
}

// Tx is an explicit unit of work. Commit or Rollback must be called; Rollback
// after Commit is a no-op.
type Tx struct {
	tx *sql.Tx
}

// Begin starts a transaction
func (db *DB) Begin(ctx context.Context) (*Tx, error) {
	if err := db.checkOpen(); err != nil {
		return nil, storeErr("begin", err)
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr("begin", err)
	}
	return &Tx{tx: tx}, nil
}

// Exec runs a parameterized statement inside the transaction
func (t *Tx) Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("execute", err)
	}
	return res, nil
}

// QueryRow runs a query expected to return at most one row inside the transaction
func (t *Tx) QueryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return t.tx.QueryRowContext(ctx, query, args...)
}

// Commit makes the transaction durable
func (t *Tx) Commit() error {
	return storeErr("commit", t.tx.Commit())
}

// Rollback discards the transaction
func (t *Tx) Rollback() error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return storeErr("rollback", err)
}

// WithTx runs fn inside a transaction, committing when fn returns nil and
// rolling back on error or panic.
func (db *DB) WithTx(ctx context.Context, fn func(tx *Tx) error) (err error) {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				db.logger.Error("Rollback failed: %v", rbErr)
			}
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Close closes the database connection. Calling it more than once is safe.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil
	}
	db.closed = true

	if err := db.conn.Close(); err != nil {
		return storeErr("close", err)
	}
	db.logger.Info("Database closed")
	return nil
}

// quoteIdent quotes a table name for PRAGMA statements that take no parameters
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
