package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Open picks a backend from the URL scheme: mongodb:// and mongodb+srv://
// select MongoDB, postgres:// and postgresql:// select PostgreSQL (with
// migrations applied), memory:// keeps everything in process.
func Open(ctx context.Context, databaseURL string) (Store, error) {
	scheme, _, _ := strings.Cut(databaseURL, "://")
	switch strings.ToLower(scheme) {
	case "mongodb", "mongodb+srv":
		return OpenMongo(ctx, databaseURL)
	case "postgres", "postgresql":
		db, err := OpenPostgres(ctx, databaseURL)
		if err != nil {
			return nil, err
		}
		if err := ApplyMigrations(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		return NewPostgresStore(db), nil
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported database url scheme %q", scheme)
	}
}

func OpenPostgres(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(10)
	db.SetMaxOpenConns(20)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}
