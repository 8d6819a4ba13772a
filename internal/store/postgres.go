package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresBackend keeps each name as one row of the collections table.
type PostgresBackend struct {
	db *sql.DB
}

func NewPostgresBackend(db *sql.DB) *PostgresBackend {
	return &PostgresBackend{db: db}
}

func (b *PostgresBackend) Read(ctx context.Context, name string) ([]byte, error) {
	var body string
	err := b.db.QueryRowContext(ctx, `SELECT body FROM collections WHERE name=$1`, name).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoData
	}
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", name, err)
	}
	return []byte(body), nil
}

func (b *PostgresBackend) Write(ctx context.Context, name string, data []byte) error {
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO collections (name, body, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO UPDATE SET body = EXCLUDED.body, updated_at = NOW()
	`, name, string(data))
	if err != nil {
		return fmt.Errorf("upsert %s: %w", name, err)
	}
	return nil
}

func (b *PostgresBackend) Ping(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

func (b *PostgresBackend) Close() error {
	return b.db.Close()
}
