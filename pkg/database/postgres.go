// Package database provides connection utilities for the Catalog DB.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/xnovu/notification-engine/pkg/config"
	"github.com/xnovu/notification-engine/pkg/logger"
)

// PostgresDB wraps the sqlx connection pool used by the Catalog Access Layer.
//
// Tenant scoping is enforced entirely through parameter-bound WHERE clauses
// in the Catalog Access Layer's queries (see internal/catalog). This package
// deliberately does not offer a "SET app.tenant_id" session-variable helper:
// interpolating a tenant id into a SET statement is a SQL injection surface,
// and session variables do not survive connection-pool reuse safely across
// requests handled by different goroutines sharing the pool.
type PostgresDB struct {
	*sqlx.DB
	config *config.CatalogConfig
	log    *logger.Logger
}

// NewPostgres creates a new PostgreSQL database connection.
func NewPostgres(cfg *config.CatalogConfig, log *logger.Logger) (*PostgresDB, error) {
	db, err := sqlx.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("connected to catalog database")

	return &PostgresDB{DB: db, config: cfg, log: log}, nil
}

// Close closes the database connection.
func (db *PostgresDB) Close() error {
	db.log.Info().Msg("closing catalog database connection")
	return db.DB.Close()
}

// Health checks the database connection health.
func (db *PostgresDB) Health(ctx context.Context) error {
	return db.PingContext(ctx)
}

// Transaction executes a function within a database transaction.
func (db *PostgresDB) Transaction(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	return db.TransactionWithOptions(ctx, nil, fn)
}

// TransactionWithOptions executes a function within a transaction with custom options.
func (db *PostgresDB) TransactionWithOptions(ctx context.Context, opts *sql.TxOptions, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("failed to rollback transaction: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Stats returns database statistics.
func (db *PostgresDB) Stats() sql.DBStats {
	return db.DB.Stats()
}
