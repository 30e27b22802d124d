package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"radiology-worklist/internal/db"
)

type SQLiteStore struct {
	q    *db.Queries
	conn *sql.DB
}

// NewSQLiteStore opens the database at path and prepares the kv table.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	conn, err := db.Open(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{q: db.New(conn), conn: conn}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	e, err := s.q.GetEntry(ctx, namespace, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", namespace, key, err)
	}
	return e.Value, nil
}

func (s *SQLiteStore) Set(ctx context.Context, namespace, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	err := s.q.PutEntry(ctx, db.Entry{
		Namespace: namespace,
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", namespace, key, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, namespace, key string) error {
	if err := s.q.DeleteEntry(ctx, namespace, key); err != nil {
		return fmt.Errorf("delete %s/%s: %w", namespace, key, err)
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context, namespace string) error {
	if err := s.q.DeleteNamespace(ctx, namespace); err != nil {
		return fmt.Errorf("clear %s: %w", namespace, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

// Open selects a driver by name.
func Open(driver, sqlitePath string) (Store, error) {
	switch driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(sqlitePath)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}
