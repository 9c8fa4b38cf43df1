package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// OpenPostgres opens the pgx-backed pool and applies pending migrations.
func OpenPostgres(ctx context.Context, databaseURL, migrationsDir string) (*PostgresKV, error) {
	conn, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	conn.SetConnMaxIdleTime(5 * time.Minute)
	conn.SetConnMaxLifetime(30 * time.Minute)
	conn.SetMaxIdleConns(2)
	conn.SetMaxOpenConns(5)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	migrations, err := MigrationsFS(migrationsDir)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := ApplyMigrations(ctx, conn, migrations); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return NewPostgresKV(conn), nil
}
