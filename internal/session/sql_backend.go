package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	sessionTableName    = "contactsync_session"
	sqlOperationTimeout = 5 * time.Second
)

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

type sqlDialect struct {
	driver string
	create string
	load   string
	save   string
	clear  string
	// setup runs once after the table exists.
	setup []string
}

func postgresDialect(table string) sqlDialect {
	t := quoteIdentifier(table)
	return sqlDialect{
		driver: "postgres",
		create: fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				session_key TEXT PRIMARY KEY,
				document TEXT NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`, t),
		load: fmt.Sprintf("SELECT document FROM %s WHERE session_key = $1", t),
		save: fmt.Sprintf(`
			INSERT INTO %s (session_key, document, updated_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (session_key)
			DO UPDATE SET document = EXCLUDED.document, updated_at = NOW()`, t),
		clear: fmt.Sprintf("DELETE FROM %s WHERE session_key = $1", t),
	}
}

func sqliteDialect(table string) sqlDialect {
	t := quoteIdentifier(table)
	return sqlDialect{
		driver: "sqlite",
		create: fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				session_key TEXT PRIMARY KEY,
				document TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`, t),
		load: fmt.Sprintf("SELECT document FROM %s WHERE session_key = ?", t),
		save: fmt.Sprintf(`
			INSERT INTO %s (session_key, document, updated_at)
			VALUES (?, ?, strftime('%%Y-%%m-%%dT%%H:%%M:%%SZ', 'now'))
			ON CONFLICT (session_key)
			DO UPDATE SET document = excluded.document, updated_at = excluded.updated_at`, t),
		clear: fmt.Sprintf("DELETE FROM %s WHERE session_key = ?", t),
		setup: []string{"PRAGMA journal_mode=WAL"},
	}
}

// SQLBackend stores session documents in one table keyed by session_key.
type SQLBackend struct {
	dsn     string
	dialect sqlDialect
	openDB  sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

func NewPostgresBackend(dsn string) (*SQLBackend, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrInvalidInput
	}
	return &SQLBackend{dsn: dsn, dialect: postgresDialect(sessionTableName), openDB: sql.Open}, nil
}

func NewSQLiteBackend(path string) (*SQLBackend, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, ErrInvalidInput
	}
	return &SQLBackend{dsn: path, dialect: sqliteDialect(sessionTableName), openDB: sql.Open}, nil
}

func (b *SQLBackend) Load(key string) ([]byte, error) {
	if err := b.ensureReady(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), sqlOperationTimeout)
	defer cancel()

	var doc string
	err := b.db.QueryRowContext(ctx, b.dialect.load, key).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(doc), nil
}

func (b *SQLBackend) Save(key string, data []byte) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidInput
	}
	if err := b.ensureReady(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), sqlOperationTimeout)
	defer cancel()
	_, err := b.db.ExecContext(ctx, b.dialect.save, key, string(data))
	return err
}

func (b *SQLBackend) Clear(key string) error {
	if err := b.ensureReady(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), sqlOperationTimeout)
	defer cancel()
	_, err := b.db.ExecContext(ctx, b.dialect.clear, key)
	return err
}

func (b *SQLBackend) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

func (b *SQLBackend) ensureReady() error {
	if b == nil {
		return ErrInvalidInput
	}
	b.initOnce.Do(func() {
		db, err := b.openDB(b.dialect.driver, b.dsn)
		if err != nil {
			b.initErr = err
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), sqlOperationTimeout)
		defer cancel()

		for _, stmt := range append([]string{b.dialect.create}, b.dialect.setup...) {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				_ = db.Close()
				b.initErr = fmt.Errorf("prepare session table: %w", err)
				return
			}
		}
		b.db = db
	})
	return b.initErr
}

func quoteIdentifier(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return "\"\""
	}
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}
