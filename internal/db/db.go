package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is one row of the kv table.
type Entry struct {
	Namespace string
	Key       string
	Value     []byte
	UpdatedAt time.Time
}

const schema = `CREATE TABLE IF NOT EXISTS kv (
	namespace  TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      BLOB NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (namespace, key)
)`

// Open opens (and creates) the sqlite database at path.
func Open(path string) (*sql.DB, error) {
	if path == "" {
		path = "worklist.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc serialises writers; one connection avoids SQLITE_BUSY.
	conn.SetMaxOpenConns(1)
	if _, err := conn.Exec(schema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("create kv table: %w", err)
	}
	return conn, nil
}

// Queries wraps the statements the store layer needs, in the shape sqlc
// would generate.
type Queries struct {
	db *sql.DB
}

func New(db *sql.DB) *Queries {
	return &Queries{db: db}
}

func (q *Queries) GetEntry(ctx context.Context, namespace, key string) (Entry, error) {
	row := q.db.QueryRowContext(ctx,
		"SELECT namespace, key, value, updated_at FROM kv WHERE namespace = ? AND key = ?",
		namespace, key,
	)
	var e Entry
	var updated int64
	if err := row.Scan(&e.Namespace, &e.Key, &e.Value, &updated); err != nil {
		return Entry{}, err
	}
	e.UpdatedAt = time.UnixMilli(updated).UTC()
	return e, nil
}

func (q *Queries) PutEntry(ctx context.Context, arg Entry) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO kv (namespace, key, value, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(namespace, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		arg.Namespace, arg.Key, arg.Value, arg.UpdatedAt.UnixMilli(),
	)
	return err
}

func (q *Queries) DeleteEntry(ctx context.Context, namespace, key string) error {
	_, err := q.db.ExecContext(ctx, "DELETE FROM kv WHERE namespace = ? AND key = ?", namespace, key)
	return err
}

func (q *Queries) DeleteNamespace(ctx context.Context, namespace string) error {
	_, err := q.db.ExecContext(ctx, "DELETE FROM kv WHERE namespace = ?", namespace)
	return err
}

func (q *Queries) ListKeys(ctx context.Context, namespace string) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, "SELECT key FROM kv WHERE namespace = ? ORDER BY key", namespace)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
