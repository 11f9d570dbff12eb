package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

var (
	mu sync.Mutex
	db *sql.DB
)

var ErrNotConfigured = errors.New("database host not configured")

type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

func (cfg *Config) ConnectionString() string {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.DBName, cfg.SSLMode,
	)

	if cfg.Password != "" {
		connStr += fmt.Sprintf(" password=%s", cfg.Password)
	}
	return connStr
}

// Initialize opens the shared pool and applies migrations.
func Initialize(ctx context.Context, cfg *Config, logger *zap.Logger) (*sql.DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg == nil || cfg.Host == "" {
		return nil, ErrNotConfigured
	}

	mu.Lock()
	defer mu.Unlock()
	if db != nil {
		return db, nil
	}

	conn, err := sql.Open("postgres", cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(pingCtx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	db = conn
	logger.Info("database connection established", zap.String("host", cfg.Host), zap.String("db", cfg.DBName))
	return db, nil
}

var migrations = []string{
	`
	CREATE TABLE IF NOT EXISTS play_history (
		id BIGSERIAL PRIMARY KEY,
		track_id TEXT NOT NULL,
		title TEXT NOT NULL,
		artists TEXT NOT NULL,
		album TEXT NOT NULL,
		played_ms BIGINT NOT NULL,
		finished_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	`,
	`CREATE INDEX IF NOT EXISTS play_history_finished_at_idx ON play_history (finished_at);`,
}

func runMigrations(ctx context.Context, conn *sql.DB) error {
	for _, m := range migrations {
		if _, err := conn.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("failed to execute migration: %w\nQuery: %s", err, m)
		}
	}
	return nil
}

func GetDB() *sql.DB {
	mu.Lock()
	defer mu.Unlock()
	return db
}

func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if db == nil {
		return nil
	}
	err := db.Close()
	db = nil
	return err
}
