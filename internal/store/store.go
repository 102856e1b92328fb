package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/mohitjoer/customer-support-voice-agent/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

//go:embed schema.sql
var schemaSQL string

// ErrOrderNotFound is returned when no order matches the requested key
var ErrOrderNotFound = errors.New("order not found")

// Mutator applies changes to an order in place. Returning an error aborts the update.
type Mutator func(order *models.Order) error

// OrderStore is the capability the gateway needs from order persistence.
// Update gives no concurrency guarantee beyond a single call.
type OrderStore interface {
	Get(ctx context.Context, key string) (*models.Order, error)
	Update(ctx context.Context, key string, mutate Mutator) error
}

// Store is the Postgres backed order and audit store
type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate creates the orders, audit and call session tables when they do not exist
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
