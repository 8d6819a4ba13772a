package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(2)
	db.SetMaxOpenConns(5)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

// OpenPostgresBackend connects, applies pending migrations and returns the backend.
func OpenPostgresBackend(ctx context.Context, databaseURL, migrationsDir string, logger *slog.Logger) (*PostgresBackend, error) {
	db, err := Open(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	applied, err := ApplyMigrations(ctx, db, migrationsDir)
	if err != nil {
		db.Close()
		return nil, err
	}
	for _, version := range applied {
		logger.Info("applied migration", "version", version)
	}
	return NewPostgresBackend(db), nil
}
