// Package sqlite stores gist attributes in a single SQLite table.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	pr "github.com/unkn0wn-root/gist/provider"
)

const schema = `CREATE TABLE IF NOT EXISTS attributes (
	key   TEXT PRIMARY KEY,
	value BLOB NOT NULL
)`

// SQLite is a persistent attribute store. One row per (attribute, file).
type SQLite struct {
	db      *sql.DB
	closeDB bool
}

var _ pr.Provider = (*SQLite)(nil)

// Open opens (or creates) the database at path. Use ":memory:" for a
// throwaway store.
func Open(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// one connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)
	p, err := New(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	p.closeDB = true
	return p, nil
}

// New uses an existing handle; the caller keeps ownership of db.
func New(ctx context.Context, db *sql.DB) (*SQLite, error) {
	if db == nil {
		return nil, errors.New("sqlite provider: nil db")
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to create attributes table: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (p *SQLite) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var b []byte
	err := p.db.QueryRowContext(ctx, `SELECT value FROM attributes WHERE key = ?`, key).Scan(&b)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (p *SQLite) Set(ctx context.Context, key string, value []byte) (bool, error) {
	if value == nil {
		value = []byte{}
	}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO attributes(key, value) VALUES(?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return false, err
	}
	return true, nil
}

func (p *SQLite) Del(ctx context.Context, key string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM attributes WHERE key = ?`, key)
	return err
}

// Len reports the number of stored attribute values.
func (p *SQLite) Len(ctx context.Context) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM attributes`).Scan(&n)
	return n, err
}

func (p *SQLite) Close(context.Context) error {
	if p.closeDB {
		return p.db.Close()
	}
	return nil
}
