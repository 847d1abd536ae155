// Package postgres implements the store.Store interface backed by PostgreSQL.
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

	"github.com/alfredjeanlab/taskflow/internal/model"
	"github.com/alfredjeanlab/taskflow/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements store.Store backed by a PostgreSQL database.
// Its UNIQUE constraint on platform_tasks.source_event_id makes the
// idempotency check safe across processes.
type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements store.Store.
var _ store.Store = (*PostgresStore)(nil)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
func New(databaseURL string) (*PostgresStore, error) {
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

	return &PostgresStore{db: db}, nil
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

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) SaveMessage(ctx context.Context, m *model.Message) error {
	return querySaveMessage(ctx, s.db, m)
}

func (s *PostgresStore) GetMessage(ctx context.Context, id string) (*model.Message, error) {
	return queryGetMessage(ctx, s.db, id)
}

func (s *PostgresStore) ListMessages(ctx context.Context, limit int) ([]*model.Message, error) {
	return queryListMessages(ctx, s.db, limit)
}

func (s *PostgresStore) SaveTask(ctx context.Context, t *model.ExtractedTask) error {
	return querySaveTask(ctx, s.db, t)
}

func (s *PostgresStore) GetTask(ctx context.Context, id string) (*model.ExtractedTask, error) {
	return queryGetTask(ctx, s.db, id)
}

func (s *PostgresStore) ListTasks(ctx context.Context, limit int) ([]*model.ExtractedTask, error) {
	return queryListTasks(ctx, s.db, limit)
}

func (s *PostgresStore) SavePlatformTask(ctx context.Context, eventID string, t *model.PlatformTask) error {
	return querySavePlatformTask(ctx, s.db, eventID, t)
}

func (s *PostgresStore) PlatformTaskForEvent(ctx context.Context, eventID string) (*model.PlatformTask, error) {
	return queryPlatformTaskForEvent(ctx, s.db, eventID)
}

func (s *PostgresStore) ListPlatformTasks(ctx context.Context, limit int) ([]*model.PlatformTask, error) {
	return queryListPlatformTasks(ctx, s.db, limit)
}
