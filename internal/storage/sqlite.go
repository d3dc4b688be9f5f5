package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// DB is a SQLite-backed store. Each named area maps onto rows of a single
// kv table, so one database file serves every namespace.
type DB struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the SQLite database at dbPath and runs
// migrations. Use ":memory:" for an ephemeral database in tests.
func OpenSQLite(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	// WAL mode for better concurrent read performance.
	if _, err = db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	s := &DB{db: db}
	if err = s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *DB) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			area  TEXT NOT NULL,
			key   TEXT NOT NULL,
			value BLOB NOT NULL,
			PRIMARY KEY (area, key)
		);
	`)
	return err
}

// Area returns the key/value namespace with the given name.
func (s *DB) Area(name string) Area {
	return &sqliteArea{db: s.db, area: name}
}

// Close closes the underlying database connection.
func (s *DB) Close() error {
	return s.db.Close()
}

type sqliteArea struct {
	db   *sql.DB
	area string
}

func (a *sqliteArea) Get(ctx context.Context, keys ...string) (map[string][]byte, error) {
	query := `SELECT key, value FROM kv WHERE area = ?`
	args := []any{a.area}
	if len(keys) > 0 {
		query += ` AND key IN (` + placeholders(len(keys)) + `)`
		for _, k := range keys {
			args = append(args, k)
		}
	}

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get from area %s: %w", a.area, err)
	}
	defer rows.Close()

	items := make(map[string][]byte)
	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan area %s: %w", a.area, err)
		}
		items[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate area %s: %w", a.area, err)
	}
	return items, nil
}

func (a *sqliteArea) Set(ctx context.Context, items map[string][]byte) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin set on area %s: %w", a.area, err)
	}
	defer tx.Rollback()

	for key, value := range items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO kv (area, key, value) VALUES (?, ?, ?)
			ON CONFLICT (area, key) DO UPDATE SET value = excluded.value
		`, a.area, key, value)
		if err != nil {
			return fmt.Errorf("set %s in area %s: %w", key, a.area, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit set on area %s: %w", a.area, err)
	}
	return nil
}

func (a *sqliteArea) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	args := []any{a.area}
	for _, k := range keys {
		args = append(args, k)
	}
	_, err := a.db.ExecContext(ctx,
		`DELETE FROM kv WHERE area = ? AND key IN (`+placeholders(len(keys))+`)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("remove from area %s: %w", a.area, err)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
