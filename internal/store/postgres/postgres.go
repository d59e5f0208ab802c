// Package postgres is the write-only relational summary sink. Each processed
// event becomes one row in engagement_summaries; the table's query semantics
// belong to the downstream analytics service, not to this engine.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/fenlow/streampulse/internal/forward"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SummarySink writes processed-event summaries to PostgreSQL.
type SummarySink struct {
	db *sql.DB
}

// Compile-time check that SummarySink implements forward.Sink.
var _ forward.Sink = (*SummarySink)(nil)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
func New(databaseURL string) (*SummarySink, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SummarySink{db: db}, nil
}

// newWithDB wraps an existing connection without migrating (tests).
func newWithDB(db *sql.DB) *SummarySink {
	return &SummarySink{db: db}
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

func (s *SummarySink) Name() string { return "summary" }

// Write inserts one summary row.
func (s *SummarySink) Write(ctx context.Context, rec *forward.Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO engagement_summaries (
			user_id, session_id, feature, action,
			engagement_score, response_time, click_count, error_count,
			session_duration, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.UserID,
		rec.SessionID,
		rec.Feature,
		rec.Action,
		rec.EngagementScore,
		rec.ResponseTime,
		rec.ClickCount,
		rec.ErrorCount,
		rec.SessionDuration,
		rec.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert engagement summary: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SummarySink) Close() error {
	return s.db.Close()
}
